// Package diagnostics runs resource preflight checks before a swarm spawns
// its workers. A box out of memory or disk fails agents in confusing ways;
// checking up front turns that into a launch-time error.
package diagnostics

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Thresholds below which a launch is refused or warned about.
const (
	MinFreeMemoryBytes = 256 << 20 // 256 MiB
	MinFreeDiskBytes   = 512 << 20 // 512 MiB
	warnFreeMemory     = 1 << 30   // 1 GiB
	warnFreeDisk       = 2 << 30   // 2 GiB
)

// Report is the outcome of a preflight pass.
type Report struct {
	OK         bool
	Errors     []string
	Warnings   []string
	FreeMemory uint64
	FreeDisk   uint64
}

// Preflight checks free memory and free disk at path.
func Preflight(path string) *Report {
	report := &Report{OK: true}

	if vm, err := mem.VirtualMemory(); err == nil {
		report.FreeMemory = vm.Available
		switch {
		case vm.Available < MinFreeMemoryBytes:
			report.OK = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("only %d MiB memory available", vm.Available>>20))
		case vm.Available < warnFreeMemory:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("low memory: %d MiB available", vm.Available>>20))
		}
	}

	if du, err := disk.Usage(path); err == nil {
		report.FreeDisk = du.Free
		switch {
		case du.Free < MinFreeDiskBytes:
			report.OK = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("only %d MiB disk free at %s", du.Free>>20, path))
		case du.Free < warnFreeDisk:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("low disk: %d MiB free at %s", du.Free>>20, path))
		}
	}

	return report
}
