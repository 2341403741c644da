package swarm

import (
	"context"
	"fmt"
	"strings"
	"time"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/events"
	"github.com/oompa-dev/oompa/internal/logging"
)

// DiffLimit bounds the diff handed to the reviewer.
const DiffLimit = 8000

// defaultReviewPrompt is used when the config declares no reviewer prompt.
const defaultReviewPrompt = "Review the following diff for correctness and scope. " +
	"Respond with a line `VERDICT: APPROVED`, `VERDICT: NEEDS_CHANGES` or " +
	"`VERDICT: REJECTED`, followed by your findings."

// FixFunc invokes the worker's own agent in its workspace with accumulated
// reviewer feedback.
type FixFunc func(ctx context.Context, feedback string) error

// ReviewLoop drives the bounded propose-fix iteration between a worker and
// the reviewer subprocess. The reviewer is stateless: every round runs in a
// new session.
type ReviewLoop struct {
	runner     *harness.Runner
	model      string
	reasoning  string
	promptText string
	maxRounds  int
	wsManager  *gitadapter.WorkspaceManager
	recorder   *events.Recorder
	logger     *logging.Logger
}

// NewReviewLoop creates a review loop for one reviewer binding.
func NewReviewLoop(runner *harness.Runner, model, reasoning, promptText string, maxRounds int,
	wsManager *gitadapter.WorkspaceManager, recorder *events.Recorder, logger *logging.Logger) *ReviewLoop {
	if promptText == "" {
		promptText = defaultReviewPrompt
	}
	if maxRounds <= 0 {
		maxRounds = core.DefaultMaxReviewRounds
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ReviewLoop{
		runner:     runner,
		model:      model,
		reasoning:  reasoning,
		promptText: promptText,
		maxRounds:  maxRounds,
		wsManager:  wsManager,
		recorder:   recorder,
		logger:     logger,
	}
}

// Run reviews the workspace diff for up to maxRounds. It returns the final
// verdict and the number of rounds executed. A nil loop (no reviewer
// configured) short-circuits to approved with zero rounds.
func (l *ReviewLoop) Run(ctx context.Context, workerID string, cycle int, ws *gitadapter.Workspace, fix FixFunc) (core.Verdict, int, error) {
	if l == nil {
		return core.VerdictApproved, 0, nil
	}

	var feedback []string
	for round := 1; ; round++ {
		diff, err := l.wsManager.Diff(ctx, ws)
		if err != nil {
			return core.VerdictNeedsChanges, round - 1, fmt.Errorf("capturing diff: %w", err)
		}
		diffFiles, err := l.wsManager.DiffFilenames(ctx, ws)
		if err != nil {
			return core.VerdictNeedsChanges, round - 1, fmt.Errorf("listing diff files: %w", err)
		}

		prompt := l.buildPrompt(diff, feedback)

		result, err := l.runner.Invoke(ctx, harness.InvokeOptions{
			Cwd:       ws.Dir,
			Model:     l.model,
			Reasoning: l.reasoning,
			SessionID: l.runner.Harness().MakeSessionID(),
			Prompt:    prompt,
		})
		if err != nil {
			return core.VerdictNeedsChanges, round - 1, fmt.Errorf("reviewer round %d: %w", round, err)
		}
		if result.ExitCode != 0 {
			return core.VerdictNeedsChanges, round - 1,
				core.ErrExecution("REVIEWER_EXIT", fmt.Sprintf("reviewer exited %d", result.ExitCode))
		}

		output := l.runner.Harness().ParseOutput(result.Stdout, "").Text
		verdict := core.ParseVerdict(output)

		if err := l.recorder.RecordReview(&events.Review{
			WorkerID:  workerID,
			Cycle:     cycle,
			Round:     round,
			Verdict:   verdict,
			Timestamp: events.Timestamp(time.Now()),
			RawOutput: output,
			DiffFiles: diffFiles,
		}); err != nil {
			l.logger.Warn("review: recording event failed", "round", round, "error", err)
		}

		l.logger.Info("review: round complete", "worker", workerID, "cycle", cycle,
			"round", round, "verdict", verdict)

		switch verdict {
		case core.VerdictApproved, core.VerdictRejected:
			return verdict, round, nil
		}

		feedback = append(feedback, fmt.Sprintf("Round %d feedback:\n%s", round, output))
		if round == l.maxRounds {
			return core.VerdictNeedsChanges, round, nil
		}

		if err := fix(ctx, core.FormatFeedback(feedback)); err != nil {
			return core.VerdictNeedsChanges, round, fmt.Errorf("fix subprocess: %w", err)
		}
	}
}

func (l *ReviewLoop) buildPrompt(diff string, feedback []string) string {
	var sb strings.Builder
	sb.WriteString(l.promptText)
	sb.WriteString("\n\n```diff\n")
	sb.WriteString(core.TruncateDiff(diff, DiffLimit))
	sb.WriteString("\n```\n")
	if len(feedback) > 0 {
		sb.WriteString("\nPrevious rounds raised the issues below. ")
		sb.WriteString("Verify only whether they were addressed; do not raise new issues.\n\n")
		sb.WriteString(core.FormatFeedback(feedback))
	}
	return sb.String()
}
