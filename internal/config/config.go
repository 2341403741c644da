package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
)

// AgentSpec configures one agent binding in the swarm file.
type AgentSpec struct {
	Harness     string   `mapstructure:"harness" yaml:"harness"`
	Model       string   `mapstructure:"model" yaml:"model"`
	Reasoning   string   `mapstructure:"reasoning" yaml:"reasoning,omitempty"`
	MaxCycles   int      `mapstructure:"max_cycles" yaml:"max_cycles,omitempty"`
	Prompts     []string `mapstructure:"prompts" yaml:"prompts,omitempty"`
	CanPlan     *bool    `mapstructure:"can_plan" yaml:"can_plan,omitempty"`
	WaitBetween string   `mapstructure:"wait_between" yaml:"wait_between,omitempty"`
	Review      bool     `mapstructure:"review" yaml:"review,omitempty"`
	MaxResumes  int      `mapstructure:"max_resumes" yaml:"max_resumes,omitempty"`
}

// ReviewerSpec configures the swarm's single reviewer binding.
type ReviewerSpec struct {
	Harness   string `mapstructure:"harness" yaml:"harness"`
	Model     string `mapstructure:"model" yaml:"model"`
	Reasoning string `mapstructure:"reasoning" yaml:"reasoning,omitempty"`
	MaxRounds int    `mapstructure:"max_rounds" yaml:"max_rounds,omitempty"`
	Prompt    string `mapstructure:"prompt" yaml:"prompt,omitempty"`
}

// LogSpec configures logging.
type LogSpec struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty"`
}

// Swarm is the parsed swarm configuration file.
type Swarm struct {
	Project  string        `mapstructure:"project" yaml:"project,omitempty"`
	TasksDir string        `mapstructure:"tasks_dir" yaml:"tasks_dir,omitempty"`
	RunsDir  string        `mapstructure:"runs_dir" yaml:"runs_dir,omitempty"`
	Log      LogSpec       `mapstructure:"log" yaml:"log,omitempty"`
	Workers  []AgentSpec   `mapstructure:"workers" yaml:"workers"`
	Planner  *AgentSpec    `mapstructure:"planner" yaml:"planner,omitempty"`
	Reviewer *ReviewerSpec `mapstructure:"reviewer" yaml:"reviewer,omitempty"`

	// Origin is the config-file path the swarm was loaded from.
	Origin string `mapstructure:"-" yaml:"-"`
}

// Defaults applied when the file is silent.
const (
	DefaultTasksDir  = "tasks"
	DefaultRunsDir   = "runs"
	DefaultMaxCycles = 10
)

// ApplyDefaults fills unset fields.
func (s *Swarm) ApplyDefaults() {
	if s.Project == "" {
		s.Project = "."
	}
	if s.TasksDir == "" {
		s.TasksDir = DefaultTasksDir
	}
	if s.RunsDir == "" {
		s.RunsDir = DefaultRunsDir
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.Log.Format == "" {
		s.Log.Format = "auto"
	}
}

// TasksRoot resolves the task-store root against the project directory.
func (s *Swarm) TasksRoot() string {
	return resolveAgainst(s.Project, s.TasksDir)
}

// RunsRoot resolves the event-log root against the project directory.
func (s *Swarm) RunsRoot() string {
	return resolveAgainst(s.Project, s.RunsDir)
}

func resolveAgainst(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func (a *AgentSpec) workerConfig(id string, kind core.WorkerKind, reviewerBound bool) (core.WorkerConfig, error) {
	cfg := core.WorkerConfig{
		ID:          id,
		Kind:        kind,
		Harness:     a.Harness,
		Model:       a.Model,
		Reasoning:   a.Reasoning,
		MaxCycles:   a.MaxCycles,
		PromptFiles: a.Prompts,
		CanPlan:     true,
		MaxResumes:  a.MaxResumes,
	}
	if cfg.MaxCycles == 0 {
		cfg.MaxCycles = DefaultMaxCycles
	}
	if cfg.MaxResumes == 0 {
		cfg.MaxResumes = core.DefaultMaxResumes
	}
	if a.CanPlan != nil {
		cfg.CanPlan = *a.CanPlan
	}
	if kind == core.WorkerPlanner {
		cfg.CanPlan = true
	}
	if a.WaitBetween != "" {
		d, err := time.ParseDuration(a.WaitBetween)
		if err != nil {
			return cfg, core.ErrValidation("BAD_WAIT_BETWEEN",
				fmt.Sprintf("worker %s: invalid wait_between %q", id, a.WaitBetween))
		}
		cfg.WaitBetween = d
	}
	if reviewerBound && a.Review {
		cfg.Reviewer = "reviewer"
	}
	return cfg, nil
}

// WorkerConfigs expands the swarm file into the runtime worker
// configurations: positional executors first, then the optional planner.
func (s *Swarm) WorkerConfigs() ([]core.WorkerConfig, error) {
	hasReviewer := s.Reviewer != nil
	configs := make([]core.WorkerConfig, 0, len(s.Workers)+1)
	for i, w := range s.Workers {
		cfg, err := w.workerConfig(fmt.Sprintf("w%d", i), core.WorkerExecutor, hasReviewer)
		if err != nil {
			return nil, err
		}
		if hasReviewer {
			cfg.MaxReviewRounds = s.Reviewer.MaxRounds
			if cfg.MaxReviewRounds == 0 {
				cfg.MaxReviewRounds = core.DefaultMaxReviewRounds
			}
		}
		configs = append(configs, cfg)
	}
	if s.Planner != nil {
		cfg, err := s.Planner.workerConfig("planner", core.WorkerPlanner, false)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
