package cmd

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment a swarm needs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ok := true

		if _, err := exec.LookPath("git"); err != nil {
			fmt.Println("git: MISSING")
			ok = false
		} else {
			fmt.Println("git: ok")
		}

		registry := harness.NewRegistry()
		cfg, cfgErr := loadSwarm()
		if cfgErr == nil {
			workerConfigs, err := cfg.WorkerConfigs()
			if err != nil {
				return err
			}
			for _, wc := range workerConfigs {
				h, err := registry.Get(wc.Harness)
				if err != nil {
					fmt.Printf("%s (%s): UNKNOWN HARNESS\n", wc.ID, wc.Harness)
					ok = false
					continue
				}
				if !h.CheckAvailable() {
					fmt.Printf("%s (%s): binary MISSING\n", wc.ID, wc.Harness)
					ok = false
					continue
				}
				if err := harness.Probe(context.Background(), h, wc.Model); err != nil {
					fmt.Printf("%s (%s, %s): probe FAILED: %v\n", wc.ID, wc.Harness, wc.Model, err)
					ok = false
					continue
				}
				fmt.Printf("%s (%s, %s): ok\n", wc.ID, wc.Harness, wc.Model)
			}
		} else {
			fmt.Printf("config: not loaded (%v); probing skipped\n", cfgErr)
			for _, kind := range registry.Kinds() {
				h, _ := registry.Get(kind)
				state := "missing"
				if h.CheckAvailable() {
					state = "ok"
				}
				fmt.Printf("harness %s: %s\n", kind, state)
			}
		}

		report := diagnostics.Preflight(".")
		fmt.Printf("memory free: %d MiB\n", report.FreeMemory>>20)
		fmt.Printf("disk free: %d MiB\n", report.FreeDisk>>20)
		for _, w := range report.Warnings {
			fmt.Println("warning:", w)
		}
		for _, e := range report.Errors {
			fmt.Println("error:", e)
			ok = false
		}

		if !ok {
			return fmt.Errorf("environment not ready")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
