package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/taskstore"
)

var (
	flagTaskSummary     string
	flagTaskDescription string
	flagTaskPriority    int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and seed the task store",
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create a pending task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		task := &core.Task{
			ID:          args[0],
			Summary:     flagTaskSummary,
			Description: flagTaskDescription,
			Priority:    flagTaskPriority,
		}
		if err := store.Create(task); err != nil {
			return err
		}
		fmt.Printf("created task %s in pending\n", task.ID)
		return nil
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks by state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		for _, state := range core.TaskStates {
			tasks, err := store.List(state)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d):\n", state, len(tasks))
			for _, t := range tasks {
				line := fmt.Sprintf("  %s: %s", t.ID, t.Summary)
				if t.CompletedBy != "" {
					line += fmt.Sprintf("  [by %s @ %s]", t.CompletedBy, t.MergedCommit)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func openStore() (*taskstore.Store, error) {
	cfg, err := loadSwarm()
	if err != nil {
		return nil, err
	}
	return taskstore.New(cfg.TasksRoot())
}

func init() {
	tasksAddCmd.Flags().StringVarP(&flagTaskSummary, "summary", "s", "", "task summary (required)")
	tasksAddCmd.Flags().StringVarP(&flagTaskDescription, "description", "d", "", "task description")
	tasksAddCmd.Flags().IntVarP(&flagTaskPriority, "priority", "p", 0, "task priority")
	_ = tasksAddCmd.MarkFlagRequired("summary")

	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksListCmd)
	rootCmd.AddCommand(tasksCmd)
}
