package swarm

import (
	"context"
	"strings"
	"time"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/events"
	"github.com/oompa-dev/oompa/internal/logging"
	"github.com/oompa-dev/oompa/internal/taskstore"
)

// MaxConsecErrors terminates a worker after this many error cycles in a row.
const MaxConsecErrors = 3

// errorSnippetLimit bounds the stderr/stdout excerpt in error events.
const errorSnippetLimit = 1000

// Worker drives a single worker through up to max-cycles cycles, reacting
// to agent signals and maintaining per-worker metrics. One Worker runs on
// one goroutine; all cross-worker coordination happens through the task
// store, the merge coordinator, and the event directory.
type Worker struct {
	state     *core.WorkerState
	runner    *harness.Runner
	store     *taskstore.Store
	wsManager *gitadapter.WorkspaceManager
	merger    *MergeCoordinator
	review    *ReviewLoop // nil when no reviewer is bound
	recorder  *events.Recorder
	prompts   *PromptBuilder
	tokens    map[string]string
	shutdown  *ShutdownController
	logger    *logging.Logger

	ws          *gitadapter.Workspace
	override    string // queued resume prompt (claim results, stuck nudge)
	lastSession string // session id of the just-torn-down cycle, for events
}

// NewWorker wires one worker's dependencies.
func NewWorker(state *core.WorkerState, runner *harness.Runner, store *taskstore.Store,
	wsManager *gitadapter.WorkspaceManager, merger *MergeCoordinator, review *ReviewLoop,
	recorder *events.Recorder, prompts *PromptBuilder, tokens map[string]string,
	shutdown *ShutdownController, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		state:     state,
		runner:    runner,
		store:     store,
		wsManager: wsManager,
		merger:    merger,
		review:    review,
		recorder:  recorder,
		prompts:   prompts,
		tokens:    tokens,
		shutdown:  shutdown,
		logger:    logger.WithWorker(state.Config.ID),
	}
}

// Run executes the worker loop until exhaustion, the consecutive-error cap,
// or shutdown. A failure inside one worker never reaches another worker.
func (w *Worker) Run(ctx context.Context) core.WorkerStatus {
	cfg := w.state.Config
	for cycle := 1; ; cycle++ {
		if w.shutdown.Requested() {
			w.interrupt(cycle, time.Now())
			return core.WorkerStatusInterrupted
		}
		if cycle > cfg.MaxCycles {
			w.finalize()
			return core.WorkerStatusExhausted
		}

		if cycle > 1 && cfg.WaitBetween > 0 {
			w.sleep(ctx, cfg.WaitBetween)
		}
		if !cfg.CanPlan {
			w.store.WaitNonEmpty(ctx)
		}
		if w.shutdown.Requested() {
			w.interrupt(cycle, time.Now())
			return core.WorkerStatusInterrupted
		}

		status, terminal := w.runCycle(ctx, cycle)
		w.state.Cycle = cycle
		if terminal {
			return status
		}
	}
}

// runCycle performs one cycle. The boolean reports whether the worker loop
// is over; status is only meaningful when it is.
func (w *Worker) runCycle(ctx context.Context, cycle int) (core.WorkerStatus, bool) {
	cfg := w.state.Config
	start := time.Now()
	fresh := w.ws == nil

	if fresh {
		ws, err := w.wsManager.Acquire(ctx, cfg.ID, cycle)
		if err != nil {
			w.logger.Error("cycle: workspace acquire failed", "cycle", cycle, "error", err)
			return w.cycleError(cycle, start, err.Error())
		}
		w.ws = ws
	}

	// A carried workspace with a reset session (after __DONE__) starts a
	// new session in place: same worktree, fresh conversation.
	resume := !fresh && w.state.SessionID != ""
	if w.state.SessionID == "" {
		w.state.SessionID = w.runner.Harness().MakeSessionID()
	}

	prompt, err := w.cyclePrompt(resume)
	if err != nil {
		w.logger.Error("cycle: prompt assembly failed", "cycle", cycle, "error", err)
		return w.cycleError(cycle, start, err.Error())
	}

	result, err := w.runner.Invoke(ctx, harness.InvokeOptions{
		Cwd:       w.ws.Dir,
		Model:     cfg.Model,
		Reasoning: cfg.Reasoning,
		SessionID: w.state.SessionID,
		Resume:    resume,
		Prompt:    prompt,
	})
	w.override = ""

	if err != nil {
		if w.shutdown.Requested() || ctx.Err() != nil {
			w.interrupt(cycle, start)
			return core.WorkerStatusInterrupted, true
		}
		return w.cycleError(cycle, start, err.Error())
	}
	if result.ExitCode != 0 {
		return w.cycleError(cycle, start, snippet(result.Stderr, result.Stdout))
	}

	parsed := w.runner.Harness().ParseOutput(result.Stdout, w.state.SessionID)
	if parsed.SessionID != "" {
		w.state.SessionID = parsed.SessionID
	}

	switch sig := core.ParseSignal(parsed.Text); sig.Kind {
	case core.SignalDone:
		// Planners and executors both just reset the session and continue.
		// Claims and the workspace stay in place: __DONE__ ends the
		// conversation, not the work.
		w.resetSession()
		w.endCycle(cycle, start, core.OutcomeDone, nil, nil, "", 0)
		return "", false

	case core.SignalClaim:
		w.state.WorkingResumes = 0
		results := w.store.ClaimByIDs(sig.ClaimIDs)
		var won []string
		for _, id := range sig.ClaimIDs {
			if results[id] == core.ClaimClaimed {
				won = append(won, id)
			}
		}
		w.state.AddClaims(won)
		w.override = ClaimResultsPrompt(results)
		w.logger.Info("cycle: claimed tasks", "cycle", cycle, "won", won)
		w.endCycle(cycle, start, core.OutcomeClaimed, won, nil, "", 0)
		return "", false

	case core.SignalComplete:
		w.state.WorkingResumes = 0
		return w.completeFlow(ctx, cycle, start)

	default: // no signal
		w.state.WorkingResumes++
		max := cfg.MaxResumes
		switch {
		case w.state.WorkingResumes <= max:
			if w.state.WorkingResumes == max {
				w.override = StuckNudgePrompt
			}
			w.endCycle(cycle, start, core.OutcomeWorking, nil, nil, "", 0)
			return "", false
		default:
			recycled := w.recycleClaims()
			w.teardownCycle()
			w.endCycle(cycle, start, core.OutcomeStuck, nil, recycled, "", 0)
			return "", false
		}
	}
}

// completeFlow handles COMPLETE_AND_READY_FOR_MERGE: skip on an unchanged
// worktree, merge task-only diffs directly, otherwise review then sync then
// merge.
func (w *Worker) completeFlow(ctx context.Context, cycle int, start time.Time) (core.WorkerStatus, bool) {
	cfg := w.state.Config

	hasChanges, err := w.wsManager.HasChanges(ctx, w.ws)
	if err != nil {
		return w.cycleError(cycle, start, err.Error())
	}
	if !hasChanges {
		recycled := w.recycleClaims()
		w.teardownCycle()
		w.endCycle(cycle, start, core.OutcomeNoChanges, nil, recycled, "", 0)
		return "", false
	}

	taskOnly, err := w.wsManager.TaskOnlyDiff(ctx, w.ws)
	if err != nil {
		return w.cycleError(cycle, start, err.Error())
	}

	rounds := 0
	if !taskOnly {
		verdict, reviewRounds, err := w.review.Run(ctx, cfg.ID, cycle, w.ws, w.fixFunc())
		rounds = reviewRounds
		w.state.Metrics.ReviewRoundsTotal += reviewRounds
		if err != nil {
			if w.shutdown.Requested() || ctx.Err() != nil {
				w.interrupt(cycle, start)
				return core.WorkerStatusInterrupted, true
			}
			return w.cycleError(cycle, start, err.Error())
		}
		if verdict != core.VerdictApproved {
			w.state.Metrics.Rejections++
			recycled := w.recycleClaims()
			w.teardownCycle()
			w.endCycle(cycle, start, core.OutcomeRejected, nil, recycled, "", rounds)
			return "", false
		}

		// Conflict resolution runs outside the merge lock.
		if res := w.wsManager.SyncWithMain(ctx, w.ws, w.conflictResolver()); res == gitadapter.SyncFailed {
			recycled := w.recycleClaims()
			w.teardownCycle()
			w.endCycle(cycle, start, core.OutcomeSyncFailed, nil, recycled, "", rounds)
			return "", false
		}
	}

	claimed := append([]string(nil), w.state.ClaimedTasks...)
	if w.merger.Merge(ctx, cfg.ID, w.ws, claimed, rounds) {
		w.state.Metrics.Merges++
		w.state.TakeClaims() // moved to complete/ by the coordinator
		w.teardownCycle()
		w.endCycle(cycle, start, core.OutcomeMerged, claimed, nil, "", rounds)
		return "", false
	}

	recycled := w.recycleClaims()
	w.teardownCycle()
	w.endCycle(cycle, start, core.OutcomeMergeFailed, nil, recycled, "", rounds)
	return "", false
}

// cyclePrompt picks the prompt for this invocation: full assembly when a
// new session starts, the queued override or the minimal continue prompt on
// resume.
func (w *Worker) cyclePrompt(resume bool) (string, error) {
	if !resume {
		return w.prompts.FreshStart(w.state.Config, w.tokens)
	}
	if w.override != "" {
		return w.override, nil
	}
	return ContinuePrompt, nil
}

// fixFunc resumes the worker's own session with reviewer feedback.
func (w *Worker) fixFunc() FixFunc {
	return func(ctx context.Context, feedback string) error {
		prompt := "A reviewer requested changes to your work. Address every point below, " +
			"then stop.\n\n" + feedback
		result, err := w.runner.Invoke(ctx, harness.InvokeOptions{
			Cwd:       w.ws.Dir,
			Model:     w.state.Config.Model,
			Reasoning: w.state.Config.Reasoning,
			SessionID: w.state.SessionID,
			Resume:    true,
			Prompt:    prompt,
		})
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return core.ErrExecution("FIX_EXIT", snippet(result.Stderr, result.Stdout))
		}
		return nil
	}
}

// conflictResolver runs a one-shot agent over conflicted files.
func (w *Worker) conflictResolver() gitadapter.ConflictResolver {
	return func(ctx context.Context, dir string, conflicted []string) error {
		result, err := w.runner.Invoke(ctx, harness.InvokeOptions{
			Cwd:       dir,
			Model:     w.state.Config.Model,
			Reasoning: w.state.Config.Reasoning,
			SessionID: w.runner.Harness().MakeSessionID(),
			Prompt:    ConflictPrompt(conflicted),
		})
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return core.ErrExecution("RESOLVER_EXIT", snippet(result.Stderr, result.Stdout))
		}
		return nil
	}
}

// cycleError ends the cycle with outcome error and stops the worker once
// the consecutive-error cap is hit.
func (w *Worker) cycleError(cycle int, start time.Time, detail string) (core.WorkerStatus, bool) {
	recycled := w.recycleClaims()
	w.teardownCycle()
	w.state.ConsecErrors++
	w.state.Metrics.Errors++
	w.endCycle(cycle, start, core.OutcomeError, nil, recycled, detail, 0)
	if w.state.ConsecErrors >= MaxConsecErrors {
		w.logger.Error("worker stopping: consecutive error cap reached", "cycle", cycle)
		return core.WorkerStatusError, true
	}
	return "", false
}

// interrupt ends the current (or would-be) cycle on shutdown.
func (w *Worker) interrupt(cycle int, start time.Time) {
	recycled := w.recycleClaims()
	w.teardownCycle()
	w.endCycle(cycle, start, core.OutcomeInterrupted, nil, recycled, "", 0)
}

// finalize cleans up when the worker leaves its loop without a cycle event
// (exhaustion).
func (w *Worker) finalize() {
	w.recycleClaims()
	w.teardownCycle()
}

// teardownCycle destroys the workspace and resets the session.
func (w *Worker) teardownCycle() {
	if w.ws != nil {
		// Release uses a fresh context: teardown still runs when the
		// swarm context is already cancelled.
		if err := w.wsManager.Release(context.Background(), w.ws); err != nil {
			w.logger.Warn("cycle: workspace release failed", "slug", w.ws.Slug, "error", err)
		}
		w.ws = nil
	}
	w.resetSession()
}

// resetSession clears the harness session, remembering its id for the
// cycle event being written.
func (w *Worker) resetSession() {
	w.lastSession = w.state.SessionID
	w.state.ResetSession()
	w.override = ""
}

// recycleClaims returns every claimed task to pending. Recycling twice is a
// no-op, so crashes between recycle and event write lose nothing.
func (w *Worker) recycleClaims() []string {
	ids := w.state.TakeClaims()
	if len(ids) == 0 {
		return nil
	}
	if err := w.store.RecycleByIDs(ids); err != nil {
		w.logger.Error("cycle: recycling tasks failed", "tasks", ids, "error", err)
	}
	w.state.Metrics.Recycled += len(ids)
	return ids
}

// endCycle records the cycle event and maintains the error accumulator.
func (w *Worker) endCycle(cycle int, start time.Time, outcome core.CycleOutcome,
	claimed, recycled []string, errSnippet string, reviewRounds int) {
	if outcome != core.OutcomeError {
		w.state.ConsecErrors = 0
	}
	if len(claimed) == 0 {
		// Aborting cycles list what they recycled; working cycles list
		// what they still hold.
		if len(recycled) > 0 {
			claimed = recycled
		} else {
			claimed = append([]string(nil), w.state.ClaimedTasks...)
		}
	}
	session := w.state.SessionID
	if session == "" {
		session = w.lastSession
	}
	ev := &events.Cycle{
		WorkerID:       w.state.Config.ID,
		Cycle:          cycle,
		Outcome:        outcome,
		Timestamp:      events.Timestamp(time.Now()),
		DurationMS:     time.Since(start).Milliseconds(),
		ClaimedTaskIDs: claimed,
		RecycledTasks:  recycled,
		ErrorSnippet:   errSnippet,
		ReviewRounds:   reviewRounds,
		SessionID:      session,
	}
	if err := w.recorder.RecordCycle(ev); err != nil {
		w.logger.Error("cycle: recording event failed", "cycle", cycle, "error", err)
	}
	w.logger.Info("cycle complete", "cycle", cycle, "outcome", outcome,
		"duration_ms", ev.DurationMS)
}

// sleep waits between cycles, waking early on shutdown.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func snippet(stderr, stdout string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		s = strings.TrimSpace(stdout)
	}
	if len(s) > errorSnippetLimit {
		s = s[:errorSnippetLimit]
	}
	return s
}
