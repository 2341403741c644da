package core

import (
	"fmt"
	"strings"
	"time"
)

// WorkerKind distinguishes the roles a configured worker can play.
type WorkerKind string

const (
	WorkerExecutor WorkerKind = "executor"
	WorkerPlanner  WorkerKind = "planner"
	WorkerReviewer WorkerKind = "reviewer"
)

// WorkerConfig is immutable after swarm start.
type WorkerConfig struct {
	ID              string        // positional: w0, w1, ...
	Kind            WorkerKind    // executor, planner or reviewer
	Harness         string        // harness kind from the adapter registry
	Model           string        // model name passed through to the harness
	Reasoning       string        // optional reasoning-effort tag
	MaxCycles       int           // cycles before the worker is exhausted
	PromptFiles     []string      // concatenated into the fresh-start prompt
	CanPlan         bool          // false = backpressure-wait on an empty task store
	WaitBetween     time.Duration // optional inter-cycle sleep
	Reviewer        string        // optional reviewer binding (worker id)
	MaxReviewRounds int           // bounded propose-fix iterations, default 3
	MaxResumes      int           // working-resumes before stuck detection, default 8
}

// DefaultMaxReviewRounds bounds the review loop when the config is silent.
const DefaultMaxReviewRounds = 3

// DefaultMaxResumes bounds signal-free resumes before the stuck nudge.
const DefaultMaxResumes = 8

// Validate checks a worker configuration at launch time.
func (c *WorkerConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrValidation("WORKER_ID_REQUIRED", "worker id required")
	}
	if strings.TrimSpace(c.Harness) == "" {
		return ErrValidation("WORKER_HARNESS_REQUIRED", fmt.Sprintf("worker %s: harness required", c.ID))
	}
	if c.MaxCycles <= 0 {
		return ErrValidation("WORKER_MAX_CYCLES", fmt.Sprintf("worker %s: max-cycles must be positive", c.ID))
	}
	return nil
}

// WorkerMetrics holds the per-worker counters accumulated across cycles.
type WorkerMetrics struct {
	Merges            int
	Rejections        int
	Errors            int
	Recycled          int
	ReviewRoundsTotal int
	Claims            int
}

// WorkerStatus is the terminal status of a worker's loop.
type WorkerStatus string

const (
	WorkerStatusExhausted   WorkerStatus = "exhausted"
	WorkerStatusError       WorkerStatus = "error"
	WorkerStatusInterrupted WorkerStatus = "interrupted"
)

// WorkerState is the mutable runtime companion of a WorkerConfig.
type WorkerState struct {
	Config WorkerConfig

	Cycle          int    // completed-cycle count
	ConsecErrors   int    // consecutive error cycles
	SessionID      string // harness-dependent, empty when reset
	WorkingResumes int    // consecutive signal-free cycles on this session
	ClaimedTasks   []string

	Metrics WorkerMetrics
}

// ResetSession clears the harness session and the resume counter.
func (s *WorkerState) ResetSession() {
	s.SessionID = ""
	s.WorkingResumes = 0
}

// AddClaims records task IDs claimed by this worker; they stay held across
// cycles until TakeClaims clears them.
func (s *WorkerState) AddClaims(ids []string) {
	s.ClaimedTasks = append(s.ClaimedTasks, ids...)
	s.Metrics.Claims += len(ids)
}

// TakeClaims returns and clears the claimed set.
func (s *WorkerState) TakeClaims() []string {
	ids := s.ClaimedTasks
	s.ClaimedTasks = nil
	return ids
}
