package swarm_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/adapters/harness"
	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/events"
	"github.com/oompa-dev/oompa/internal/swarm"
	"github.com/oompa-dev/oompa/internal/taskstore"
	"github.com/oompa-dev/oompa/internal/testutil"
)

type fixture struct {
	repo     *testutil.GitRepo
	client   *gitadapter.Client
	store    *taskstore.Store
	manager  *gitadapter.WorkspaceManager
	merger   *swarm.MergeCoordinator
	recorder *events.Recorder
	prompts  *swarm.PromptBuilder
	runsRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := testutil.NewGitRepo(t)
	repo.CommitFile("README.md", "# project\n", "initial commit")

	client, err := gitadapter.NewClient(repo.Path)
	testutil.AssertNoError(t, err)

	store, err := taskstore.New(filepath.Join(repo.Path, "tasks"))
	testutil.AssertNoError(t, err)

	runsRoot := t.TempDir()
	recorder, err := events.NewRecorder(runsRoot, "testswarm")
	testutil.AssertNoError(t, err)

	manager := gitadapter.NewWorkspaceManager(client, "main", store.Root(), nil)
	merger := swarm.NewMergeCoordinator(client, store, "main", nil)
	prompts := swarm.NewPromptBuilder(repo.Path, store)

	return &fixture{
		repo:     repo,
		client:   client,
		store:    store,
		manager:  manager,
		merger:   merger,
		recorder: recorder,
		prompts:  prompts,
		runsRoot: runsRoot,
	}
}

func (f *fixture) worker(t *testing.T, fake *testutil.FakeHarness, shutdown *swarm.ShutdownController,
	mutate func(*core.WorkerConfig)) (*swarm.Worker, *core.WorkerState) {
	t.Helper()

	cfg := core.WorkerConfig{
		ID:         "w0",
		Kind:       core.WorkerExecutor,
		Harness:    "fake",
		MaxCycles:  5,
		CanPlan:    true,
		MaxResumes: core.DefaultMaxResumes,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	state := &core.WorkerState{Config: cfg}
	runner := harness.NewRunner(fake, 0, nil)
	worker := swarm.NewWorker(state, runner, f.store, f.manager, f.merger, nil,
		f.recorder, f.prompts, nil, shutdown, nil)
	return worker, state
}

func (f *fixture) seed(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		testutil.AssertNoError(t, f.store.Create(&core.Task{ID: id, Summary: "work on " + id}))
	}
}

func (f *fixture) run(t *testing.T) *events.Run {
	t.Helper()
	run, err := events.ReadRun(f.runsRoot, "testswarm")
	testutil.AssertNoError(t, err)
	return run
}

func outcomes(run *events.Run) []core.CycleOutcome {
	var got []core.CycleOutcome
	for _, c := range run.Cycles {
		got = append(got, c.Outcome)
	}
	return got
}

func TestWorker_ClaimThenCompleteMerges(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-001")

	fake := testutil.NewFakeHarness(
		testutil.Say("CLAIM(task-001)"),
		testutil.Shell("echo change > feature.txt && echo COMPLETE_AND_READY_FOR_MERGE"),
	)
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, state := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) { c.MaxCycles = 2 })

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusExhausted)

	// Task landed in complete/ with its annotation.
	task, taskState, err := fix.store.Get("task-001")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, taskState, core.TaskComplete)
	testutil.AssertEqual(t, task.CompletedBy, "w0")
	testutil.AssertTrue(t, task.MergedCommit != "", "merged commit recorded")

	// The modification reached main.
	if _, err := os.Stat(filepath.Join(fix.repo.Path, "feature.txt")); err != nil {
		t.Fatalf("feature.txt should be on main: %v", err)
	}

	run := fix.run(t)
	got := outcomes(run)
	testutil.AssertLen(t, got, 2)
	testutil.AssertEqual(t, got[0], core.OutcomeClaimed)
	testutil.AssertEqual(t, got[1], core.OutcomeMerged)
	testutil.AssertLen(t, run.Reviews, 0)
	testutil.AssertEqual(t, run.Cycles[1].ClaimedTaskIDs[0], "task-001")

	testutil.AssertEqual(t, state.Metrics.Merges, 1)
	testutil.AssertEqual(t, state.Metrics.Claims, 1)

	// The claim-results prompt was injected on the resume.
	prompts := fake.Prompts()
	testutil.AssertContains(t, prompts[1], "task-001: claimed")
}

func TestWorker_ConsecutiveErrorsStopTheWorker(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-1")

	fake := testutil.NewFakeHarness(
		testutil.Say("CLAIM(task-1)"),
		testutil.Exit(1),
	)
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, state := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) { c.MaxCycles = 10 })

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusError)
	testutil.AssertEqual(t, state.ConsecErrors, swarm.MaxConsecErrors)

	// The claim from cycle 1 went back to pending on the first error.
	_, taskState, err := fix.store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, taskState, core.TaskPending)

	got := outcomes(fix.run(t))
	testutil.AssertLen(t, got, 4)
	testutil.AssertEqual(t, got[0], core.OutcomeClaimed)
	for _, o := range got[1:] {
		testutil.AssertEqual(t, o, core.OutcomeError)
	}

	// The first error cycle recorded the recycle.
	run := fix.run(t)
	testutil.AssertEqual(t, run.Cycles[1].RecycledTasks[0], "task-1")
}

func TestWorker_DoneResetsSessionButKeepsWorkspaceAndClaims(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-1")

	// Cycle 1 claims; cycle 2 leaves progress in the worktree before a
	// conversational __DONE__; cycle 3 only succeeds if the same worktree
	// carried over. A torn-down workspace would make the `test -f` fail.
	fake := testutil.NewFakeHarness(
		testutil.Say("CLAIM(task-1)"),
		testutil.Shell("echo notes > progress.txt && echo __DONE__"),
		testutil.Shell("test -f progress.txt && echo __DONE__ || exit 1"),
	)
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, state := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) { c.MaxCycles = 3 })

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusExhausted)

	got := outcomes(fix.run(t))
	testutil.AssertLen(t, got, 3)
	testutil.AssertEqual(t, got[0], core.OutcomeClaimed)
	testutil.AssertEqual(t, got[1], core.OutcomeDone)
	testutil.AssertEqual(t, got[2], core.OutcomeDone)

	// The claim survived both __DONE__s; exhaustion finalization returned
	// it to pending afterwards.
	run := fix.run(t)
	testutil.AssertEqual(t, run.Cycles[1].ClaimedTaskIDs[0], "task-1")
	testutil.AssertEqual(t, run.Cycles[2].ClaimedTaskIDs[0], "task-1")
	_, taskState, err := fix.store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, taskState, core.TaskPending)
	testutil.AssertEqual(t, state.Metrics.Claims, 1)

	// Each __DONE__ reset the session: the next invocation opened with the
	// full fresh-start prompt instead of the resume prompt.
	prompts := fake.Prompts()
	testutil.AssertContains(t, prompts[2], "You are worker w0")
}

func TestWorker_CompleteWithoutChangesIsNoChanges(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)

	fake := testutil.NewFakeHarness(testutil.Say("COMPLETE_AND_READY_FOR_MERGE"))
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, _ := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) { c.MaxCycles = 1 })

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusExhausted)

	got := outcomes(fix.run(t))
	testutil.AssertLen(t, got, 1)
	testutil.AssertEqual(t, got[0], core.OutcomeNoChanges)
}

func TestWorker_StuckNudgeThenStuck(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)

	fake := testutil.NewFakeHarness(testutil.Say("still thinking"))
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, _ := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) {
		c.MaxCycles = 2
		c.MaxResumes = 1
	})

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusExhausted)

	got := outcomes(fix.run(t))
	testutil.AssertLen(t, got, 2)
	testutil.AssertEqual(t, got[0], core.OutcomeWorking)
	testutil.AssertEqual(t, got[1], core.OutcomeStuck)

	// The second invocation carried the stuck nudge.
	prompts := fake.Prompts()
	testutil.AssertEqual(t, prompts[1], swarm.StuckNudgePrompt)
}

func TestWorker_TaskOnlyDiffSkipsReviewAndMerges(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)

	// A planner-style cycle: create a task file in the workspace and
	// complete. The diff is task-only, so it merges without review.
	fake := testutil.NewFakeHarness(
		testutil.Shell("mkdir -p tasks/pending && printf 'id: planned-1\\nsummary: planned\\n' > tasks/pending/planned-1.yaml && echo COMPLETE_AND_READY_FOR_MERGE"),
	)
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, _ := fix.worker(t, fake, shutdown, func(c *core.WorkerConfig) { c.MaxCycles = 1 })

	status := worker.Run(ctx)
	testutil.AssertEqual(t, status, core.WorkerStatusExhausted)

	got := outcomes(fix.run(t))
	testutil.AssertLen(t, got, 1)
	testutil.AssertEqual(t, got[0], core.OutcomeMerged)

	// The planned task reached the shared store through the merge.
	if _, err := os.Stat(filepath.Join(fix.repo.Path, "tasks", "pending", "planned-1.yaml")); err != nil {
		t.Fatalf("planned task should be on main: %v", err)
	}
}

func TestWorker_ShutdownMidCycleRecyclesClaims(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-Y")

	fake := testutil.NewFakeHarness(
		testutil.Say("CLAIM(task-Y)"),
		testutil.Shell("sleep 5 && echo still working"),
	)
	shutdown, ctx := swarm.NewShutdownController(context.Background())
	worker, _ := fix.worker(t, fake, shutdown, nil)

	done := make(chan core.WorkerStatus, 1)
	go func() { done <- worker.Run(ctx) }()

	// Wait for the claim to land, then interrupt cycle 2 in flight.
	deadline := time.Now().Add(10 * time.Second)
	for {
		ids, err := fix.store.IDs(core.TaskCurrent)
		testutil.AssertNoError(t, err)
		if ids["task-Y"] {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("claim never happened")
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	shutdown.Trigger()

	status := <-done
	testutil.AssertEqual(t, status, core.WorkerStatusInterrupted)

	// The claimed task is back in pending.
	_, taskState, err := fix.store.Get("task-Y")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, taskState, core.TaskPending)

	run := fix.run(t)
	interrupted := 0
	for _, c := range run.Cycles {
		if c.Outcome == core.OutcomeInterrupted {
			interrupted++
			testutil.AssertEqual(t, c.RecycledTasks[0], "task-Y")
		}
	}
	testutil.AssertEqual(t, interrupted, 1)
}
