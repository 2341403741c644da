package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/swarm"
)

var flagSkipProbe bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the swarm declared in the config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadSwarm()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		coordinator, err := swarm.NewCoordinator(cfg, harness.NewRegistry(), logger)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if !flagSkipProbe {
			if err := coordinator.Preflight(ctx); err != nil {
				return err
			}
		}

		logger.Info("swarm starting", "swarm_id", coordinator.SwarmID(), "config", cfg.Origin)
		return coordinator.Run(ctx)
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagSkipProbe, "skip-probe", false, "skip harness probes and resource preflight")
	rootCmd.AddCommand(runCmd)
}
