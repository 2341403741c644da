package swarm

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/config"
	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/diagnostics"
	"github.com/oompa-dev/oompa/internal/events"
	"github.com/oompa-dev/oompa/internal/logging"
	"github.com/oompa-dev/oompa/internal/taskstore"
)

// NewSwarmID mints the 8-hex-char identifier of one invocation.
func NewSwarmID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}

// Coordinator reads a swarm config, spawns one goroutine per worker, and
// waits. It owns the only process-wide state: the merge mutex (inside the
// merge coordinator), the shutdown flag, and the stopped-event guard.
type Coordinator struct {
	cfg      *config.Swarm
	registry *harness.Registry
	logger   *logging.Logger

	swarmID       string
	git           *gitadapter.Client
	store         *taskstore.Store
	recorder      *events.Recorder
	stoppedOnce   atomic.Bool
	workerConfigs []core.WorkerConfig
}

// NewCoordinator validates the environment and builds a launch-ready
// coordinator. Configuration and environment failures surface here, before
// any worker starts.
func NewCoordinator(cfg *config.Swarm, registry *harness.Registry, logger *logging.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	workerConfigs, err := cfg.WorkerConfigs()
	if err != nil {
		return nil, err
	}
	for i := range workerConfigs {
		if err := workerConfigs[i].Validate(); err != nil {
			return nil, err
		}
		if _, err := registry.Get(workerConfigs[i].Harness); err != nil {
			return nil, err
		}
	}
	if cfg.Reviewer != nil {
		if _, err := registry.Get(cfg.Reviewer.Harness); err != nil {
			return nil, err
		}
	}

	git, err := gitadapter.NewClient(cfg.Project)
	if err != nil {
		return nil, err
	}
	clean, err := git.IsClean(context.Background())
	if err != nil {
		return nil, err
	}
	if !clean {
		return nil, core.ErrValidation("DIRTY_TREE",
			"working tree has uncommitted changes; commit or stash before launching a swarm")
	}

	store, err := taskstore.New(cfg.TasksRoot())
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		cfg:           cfg,
		registry:      registry,
		logger:        logger,
		swarmID:       NewSwarmID(),
		git:           git,
		store:         store,
		workerConfigs: workerConfigs,
	}, nil
}

// SwarmID returns the identifier of this invocation.
func (c *Coordinator) SwarmID() string {
	return c.swarmID
}

// Preflight probes every unique harness+model pair and checks system
// resources. The run aborts if any probe fails.
func (c *Coordinator) Preflight(ctx context.Context) error {
	report := diagnostics.Preflight(c.cfg.Project)
	for _, warning := range report.Warnings {
		c.logger.Warn("preflight warning", "warning", warning)
	}
	if !report.OK {
		return core.ErrValidation("PREFLIGHT_FAILED", fmt.Sprintf("%v", report.Errors))
	}

	type pair struct{ kind, model string }
	seen := make(map[pair]bool)
	probeOne := func(kind, model string) error {
		p := pair{kind, model}
		if seen[p] {
			return nil
		}
		seen[p] = true
		h, err := c.registry.Get(kind)
		if err != nil {
			return err
		}
		c.logger.Info("probing harness", "harness", kind, "model", model)
		return harness.Probe(ctx, h, model)
	}

	for _, wc := range c.workerConfigs {
		if err := probeOne(wc.Harness, wc.Model); err != nil {
			return err
		}
	}
	if c.cfg.Reviewer != nil {
		if err := probeOne(c.cfg.Reviewer.Harness, c.cfg.Reviewer.Model); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the swarm to completion. The returned error is non-nil only
// for launch or framework failures; individual worker failures are events,
// not errors.
func (c *Coordinator) Run(parent context.Context) (err error) {
	mainBranch, branchErr := c.git.CurrentBranch(parent)
	if branchErr != nil {
		return branchErr
	}

	c.recorder, err = events.NewRecorder(c.cfg.RunsRoot(), c.swarmID)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v", r)
			c.writeStopped(events.StopError, detail)
			err = core.ErrInternal(detail)
		}
	}()

	if err := c.recordStarted(); err != nil {
		return err
	}

	// Claims left in current/ by a dead prior run would otherwise be lost.
	c.recycleStale()

	shutdown, ctx := NewShutdownController(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	workersDone := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Info("shutdown requested", "signal", sig.String())
			shutdown.Trigger()
			select {
			case <-workersDone:
			case <-time.After(GraceWindowSeconds * time.Second):
				c.writeStopped(events.StopInterrupted, "")
				os.Exit(1)
			}
		case <-workersDone:
		}
	}()

	merger := NewMergeCoordinator(c.git, c.store, mainBranch, c.logger)
	wsManager := gitadapter.NewWorkspaceManager(c.git, mainBranch, c.cfg.TasksRoot(), c.logger)
	prompts := NewPromptBuilder(c.cfg.Project, c.store)

	workers := make([]*Worker, 0, len(c.workerConfigs))
	for _, wc := range c.workerConfigs {
		worker, buildErr := c.buildWorker(wc, wsManager, merger, shutdown, prompts)
		if buildErr != nil {
			close(workersDone)
			c.writeStopped(events.StopError, buildErr.Error())
			return buildErr
		}
		workers = append(workers, worker)
	}

	var g errgroup.Group
	for i, worker := range workers {
		wc := c.workerConfigs[i]
		g.Go(func() error {
			status := worker.Run(ctx)
			c.logger.Info("worker finished", "worker", wc.ID, "status", status)
			return nil
		})
	}

	_ = g.Wait()
	close(workersDone)

	if shutdown.Requested() {
		c.writeStopped(events.StopInterrupted, "")
	} else {
		c.writeStopped(events.StopCompleted, "")
	}
	return nil
}

func (c *Coordinator) buildWorker(wc core.WorkerConfig, wsManager *gitadapter.WorkspaceManager,
	merger *MergeCoordinator, shutdown *ShutdownController, prompts *PromptBuilder) (*Worker, error) {
	h, err := c.registry.Get(wc.Harness)
	if err != nil {
		return nil, err
	}
	runner := harness.NewRunner(h, 0, c.logger)

	var review *ReviewLoop
	if wc.Reviewer != "" && c.cfg.Reviewer != nil {
		rh, err := c.registry.Get(c.cfg.Reviewer.Harness)
		if err != nil {
			return nil, err
		}
		review = NewReviewLoop(
			harness.NewRunner(rh, 0, c.logger),
			c.cfg.Reviewer.Model,
			c.cfg.Reviewer.Reasoning,
			c.cfg.Reviewer.Prompt,
			c.cfg.Reviewer.MaxRounds,
			wsManager,
			c.recorder,
			c.logger,
		)
	}

	state := &core.WorkerState{Config: wc}
	tokens := map[string]string{
		"context_header": fmt.Sprintf("swarm %s, worker %s", c.swarmID, wc.ID),
		"mode_hint":      string(wc.Kind),
	}
	return NewWorker(state, runner, c.store, wsManager, merger, review,
		c.recorder, prompts, tokens, shutdown, c.logger), nil
}

func (c *Coordinator) recordStarted() error {
	started := &events.Started{
		SwarmID:    c.swarmID,
		StartedAt:  events.Timestamp(time.Now()),
		PID:        os.Getpid(),
		ConfigFile: c.cfg.Origin,
	}
	for _, wc := range c.workerConfigs {
		record := agentRecord(wc)
		if wc.Kind == core.WorkerPlanner {
			started.Planner = &record
		} else {
			started.Workers = append(started.Workers, record)
		}
	}
	if c.cfg.Reviewer != nil {
		started.Reviewer = &events.AgentRecord{
			ID:      "reviewer",
			Harness: c.cfg.Reviewer.Harness,
			Model:   c.cfg.Reviewer.Model,
		}
	}
	return c.recorder.RecordStarted(started)
}

func agentRecord(wc core.WorkerConfig) events.AgentRecord {
	return events.AgentRecord{
		ID:          wc.ID,
		Harness:     wc.Harness,
		Model:       wc.Model,
		Reasoning:   wc.Reasoning,
		MaxCycles:   wc.MaxCycles,
		PromptFiles: wc.PromptFiles,
		CanPlan:     wc.CanPlan,
	}
}

// writeStopped records the stopped event exactly once; the clean-exit path
// and the grace-window path share this guard.
func (c *Coordinator) writeStopped(reason events.StopReason, detail string) {
	if !c.stoppedOnce.CompareAndSwap(false, true) {
		return
	}
	if err := c.recorder.RecordStopped(&events.Stopped{
		StoppedAt: events.Timestamp(time.Now()),
		Reason:    reason,
		Error:     detail,
	}); err != nil {
		c.logger.Error("recording stopped event failed", "error", err)
	}
}

// recycleStale returns tasks stranded in current/ by a previous run. No
// other swarm can be live here: launching requires a clean tree, and the
// liveness triplet is derived by readers, not by the store.
func (c *Coordinator) recycleStale() {
	ids, err := c.store.IDs(core.TaskCurrent)
	if err != nil || len(ids) == 0 {
		return
	}
	stale := make([]string, 0, len(ids))
	for id := range ids {
		stale = append(stale, id)
	}
	c.logger.Warn("recycling tasks stranded by a prior run", "tasks", stale)
	if err := c.store.RecycleByIDs(stale); err != nil {
		c.logger.Error("recycling stale tasks failed", "error", err)
	}
}
