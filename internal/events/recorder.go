package events

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oompa-dev/oompa/internal/fsutil"
)

const eventExt = ".yaml"

// Recorder writes immutable event files for one swarm run. Writes go
// through tmp+rename, and a final path is never opened for write: readers
// observe either no file or a complete one.
type Recorder struct {
	runDir string
}

// NewRecorder creates a recorder under {runsRoot}/{swarmID}.
func NewRecorder(runsRoot, swarmID string) (*Recorder, error) {
	runDir := filepath.Join(runsRoot, swarmID)
	for _, sub := range []string{"cycles", "reviews"} {
		if err := fsutil.EnsureDir(filepath.Join(runDir, sub)); err != nil {
			return nil, fmt.Errorf("creating run dir: %w", err)
		}
	}
	return &Recorder{runDir: runDir}, nil
}

// RunDir returns the run directory.
func (r *Recorder) RunDir() string {
	return r.runDir
}

// RecordStarted writes the started event.
func (r *Recorder) RecordStarted(ev *Started) error {
	return r.write(filepath.Join(r.runDir, "started"+eventExt), ev)
}

// RecordStopped writes the stopped event.
func (r *Recorder) RecordStopped(ev *Stopped) error {
	return r.write(filepath.Join(r.runDir, "stopped"+eventExt), ev)
}

// RecordCycle writes one cycle event.
func (r *Recorder) RecordCycle(ev *Cycle) error {
	name := fmt.Sprintf("%s-c%d%s", ev.WorkerID, ev.Cycle, eventExt)
	return r.write(filepath.Join(r.runDir, "cycles", name), ev)
}

// RecordReview writes one review-round event.
func (r *Recorder) RecordReview(ev *Review) error {
	name := fmt.Sprintf("%s-c%d-r%d%s", ev.WorkerID, ev.Cycle, ev.Round, eventExt)
	return r.write(filepath.Join(r.runDir, "reviews", name), ev)
}

func (r *Recorder) write(path string, ev any) error {
	data, err := yaml.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := fsutil.WriteFileExclusive(path, data, 0o644); err != nil {
		return fmt.Errorf("writing event %s: %w", filepath.Base(path), err)
	}
	return nil
}
