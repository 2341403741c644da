package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/events"
)

var statusCmd = &cobra.Command{
	Use:   "status [swarm-id]",
	Short: "Summarize swarm runs from their event files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSwarm()
		if err != nil {
			return err
		}
		runsRoot := cfg.RunsRoot()

		ids, err := events.ListRuns(runsRoot)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			ids = []string{args[0]}
		}
		if len(ids) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		for _, id := range ids {
			run, err := events.ReadRun(runsRoot, id)
			if err != nil {
				return err
			}
			printRun(run)
		}
		return nil
	},
}

func printRun(run *events.Run) {
	state := "dead"
	switch {
	case run.Alive():
		state = "running"
	case run.Stopped != nil:
		state = string(run.Stopped.Reason)
	}
	fmt.Printf("swarm %s  %s", run.SwarmID, state)
	if run.Started != nil {
		fmt.Printf("  started %s  pid %d", run.Started.StartedAt, run.Started.PID)
	}
	fmt.Println()

	// All aggregation derives from scanning event files.
	perWorker := make(map[string]map[core.CycleOutcome]int)
	for _, cycle := range run.Cycles {
		if perWorker[cycle.WorkerID] == nil {
			perWorker[cycle.WorkerID] = make(map[core.CycleOutcome]int)
		}
		perWorker[cycle.WorkerID][cycle.Outcome]++
	}
	workers := make([]string, 0, len(perWorker))
	for worker := range perWorker {
		workers = append(workers, worker)
	}
	sort.Strings(workers)
	for _, worker := range workers {
		outcomes := perWorker[worker]
		keys := make([]string, 0, len(outcomes))
		for outcome := range outcomes {
			keys = append(keys, string(outcome))
		}
		sort.Strings(keys)
		fmt.Printf("  %s:", worker)
		for _, outcome := range keys {
			fmt.Printf(" %s=%d", outcome, outcomes[core.CycleOutcome(outcome)])
		}
		fmt.Println()
	}
	if len(run.Reviews) > 0 {
		fmt.Printf("  review rounds: %d\n", len(run.Reviews))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
