package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oompa-dev/oompa/internal/core"
)

// Validate checks the structural rules of a swarm configuration. Harness
// kinds are validated separately against the adapter registry at launch.
func Validate(s *Swarm) error {
	if len(s.Workers) == 0 && s.Planner == nil {
		return core.ErrValidation("NO_WORKERS", "config declares no workers and no planner")
	}

	for i, w := range s.Workers {
		if err := validateAgent(fmt.Sprintf("workers[%d]", i), &w, s.Project); err != nil {
			return err
		}
	}
	if s.Planner != nil {
		if err := validateAgent("planner", s.Planner, s.Project); err != nil {
			return err
		}
	}
	if s.Reviewer != nil {
		if s.Reviewer.Harness == "" {
			return core.ErrValidation("REVIEWER_HARNESS_REQUIRED", "reviewer: harness required")
		}
		if s.Reviewer.MaxRounds < 0 {
			return core.ErrValidation("REVIEWER_MAX_ROUNDS", "reviewer: max_rounds must not be negative")
		}
	}

	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return core.ErrValidation("BAD_LOG_LEVEL", fmt.Sprintf("unknown log level %q", s.Log.Level))
	}
	switch s.Log.Format {
	case "auto", "text", "json":
	default:
		return core.ErrValidation("BAD_LOG_FORMAT", fmt.Sprintf("unknown log format %q", s.Log.Format))
	}

	return nil
}

func validateAgent(where string, a *AgentSpec, projectDir string) error {
	if a.Harness == "" {
		return core.ErrValidation("HARNESS_REQUIRED", fmt.Sprintf("%s: harness required", where))
	}
	if a.MaxCycles < 0 {
		return core.ErrValidation("BAD_MAX_CYCLES", fmt.Sprintf("%s: max_cycles must not be negative", where))
	}
	for _, p := range a.Prompts {
		path := p
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return core.ErrValidation("PROMPT_FILE_MISSING",
				fmt.Sprintf("%s: prompt file %s not readable", where, p)).WithCause(err)
		}
	}
	return nil
}
