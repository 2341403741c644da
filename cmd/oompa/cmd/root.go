package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oompa-dev/oompa/internal/config"
	"github.com/oompa-dev/oompa/internal/logging"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:           "oompa",
	Short:         "Orchestrate a swarm of agent workers over a shared repository",
	Long:          "oompa launches parallel agent CLI workers in isolated git workspaces,\ncoordinates them through a filesystem task queue, reviews and merges their\nwork, and records an append-only event log of everything that happened.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "swarm config file (default ./swarm.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: auto, text, json")
}

// loadSwarm loads and validates the swarm configuration.
func loadSwarm() (*config.Swarm, error) {
	loader := config.NewLoader()
	if flagConfig != "" {
		loader = loader.WithConfigFile(flagConfig)
	}
	return loader.Load()
}

// newLogger builds the process logger, letting flags override the config.
func newLogger(cfg *config.Swarm) *logging.Logger {
	logCfg := logging.DefaultConfig()
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
	}
	if flagLogLevel != "" {
		logCfg.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		logCfg.Format = flagLogFormat
	}
	return logging.New(logCfg)
}
