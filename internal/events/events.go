// Package events is the append-only record of what happened in a swarm.
// Every event is one immutable file; dashboards and status commands derive
// all state by scanning these files, never from live snapshots.
package events

import (
	"time"

	"github.com/oompa-dev/oompa/internal/core"
)

// StopReason is the canonical completion signal of a swarm.
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopInterrupted StopReason = "interrupted"
	StopError       StopReason = "error"
)

// AgentRecord captures one agent binding inside the started event.
type AgentRecord struct {
	ID          string   `yaml:"id"`
	Harness     string   `yaml:"harness"`
	Model       string   `yaml:"model,omitempty"`
	Reasoning   string   `yaml:"reasoning,omitempty"`
	MaxCycles   int      `yaml:"max_cycles,omitempty"`
	PromptFiles []string `yaml:"prompt_files,omitempty"`
	CanPlan     bool     `yaml:"can_plan"`
}

// Started is written once at swarm launch.
type Started struct {
	SwarmID    string        `yaml:"swarm_id"`
	StartedAt  string        `yaml:"started_at"` // ISO-8601
	PID        int           `yaml:"pid"`
	ConfigFile string        `yaml:"config_file"`
	Workers    []AgentRecord `yaml:"workers"`
	Planner    *AgentRecord  `yaml:"planner,omitempty"`
	Reviewer   *AgentRecord  `yaml:"reviewer,omitempty"`
}

// Stopped is written once at swarm end.
type Stopped struct {
	StoppedAt string     `yaml:"stopped_at"` // ISO-8601
	Reason    StopReason `yaml:"reason"`
	Error     string     `yaml:"error,omitempty"`
}

// Cycle is written once per cycle per worker.
type Cycle struct {
	WorkerID       string            `yaml:"worker_id"`
	Cycle          int               `yaml:"cycle"`
	Outcome        core.CycleOutcome `yaml:"outcome"`
	Timestamp      string            `yaml:"timestamp"` // ISO-8601
	DurationMS     int64             `yaml:"duration_ms"`
	ClaimedTaskIDs []string          `yaml:"claimed_task_ids,omitempty"`
	RecycledTasks  []string          `yaml:"recycled_tasks,omitempty"`
	ErrorSnippet   string            `yaml:"error_snippet,omitempty"`
	ReviewRounds   int               `yaml:"review_rounds"`
	SessionID      string            `yaml:"session_id,omitempty"`
}

// Review is written once per review round.
type Review struct {
	WorkerID  string       `yaml:"worker_id"`
	Cycle     int          `yaml:"cycle"`
	Round     int          `yaml:"round"`
	Verdict   core.Verdict `yaml:"verdict"`
	Timestamp string       `yaml:"timestamp"` // ISO-8601
	RawOutput string       `yaml:"raw_output"`
	DiffFiles []string     `yaml:"diff_files,omitempty"`
}

// Timestamp formats a time for event records.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
