package events

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

// Run is the reader-side view of one swarm's event directory.
type Run struct {
	SwarmID string
	Started *Started
	Stopped *Stopped
	Cycles  []*Cycle
	Reviews []*Review
}

// Alive derives liveness from the triplet: started exists, stopped absent,
// OS reports the orchestrator PID alive. No other file matters.
func (r *Run) Alive() bool {
	if r.Started == nil || r.Stopped != nil {
		return false
	}
	return pidAlive(r.Started.PID)
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ListRuns enumerates swarm IDs under runsRoot, sorted by name.
func ListRuns(runsRoot string) ([]string, error) {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadRun scans one run directory into memory.
func ReadRun(runsRoot, swarmID string) (*Run, error) {
	runDir := filepath.Join(runsRoot, swarmID)
	run := &Run{SwarmID: swarmID}

	var started Started
	ok, err := readEvent(filepath.Join(runDir, "started"+eventExt), &started)
	if err != nil {
		return nil, err
	}
	if ok {
		run.Started = &started
	}

	var stopped Stopped
	ok, err = readEvent(filepath.Join(runDir, "stopped"+eventExt), &stopped)
	if err != nil {
		return nil, err
	}
	if ok {
		run.Stopped = &stopped
	}

	cycleFiles, err := listEventFiles(filepath.Join(runDir, "cycles"))
	if err != nil {
		return nil, err
	}
	for _, path := range cycleFiles {
		var cycle Cycle
		if ok, err := readEvent(path, &cycle); err != nil {
			return nil, err
		} else if ok {
			run.Cycles = append(run.Cycles, &cycle)
		}
	}

	reviewFiles, err := listEventFiles(filepath.Join(runDir, "reviews"))
	if err != nil {
		return nil, err
	}
	for _, path := range reviewFiles {
		var review Review
		if ok, err := readEvent(path, &review); err != nil {
			return nil, err
		} else if ok {
			run.Reviews = append(run.Reviews, &review)
		}
	}

	return run, nil
}

func listEventFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), eventExt) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func readEvent(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
