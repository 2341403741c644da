package taskstore_test

import (
	"sync"
	"testing"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/taskstore"
	"github.com/oompa-dev/oompa/internal/testutil"
)

func newStore(t *testing.T) *taskstore.Store {
	t.Helper()
	store, err := taskstore.New(t.TempDir())
	testutil.AssertNoError(t, err)
	return store
}

func seed(t *testing.T, store *taskstore.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		testutil.AssertNoError(t, store.Create(&core.Task{ID: id, Summary: "summary of " + id}))
	}
}

func TestCreateAndList(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "b-task", "a-task")

	tasks, err := store.List(core.TaskPending)
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, tasks, 2)
	// Ordered by filename.
	testutil.AssertEqual(t, tasks[0].ID, "a-task")
	testutil.AssertEqual(t, tasks[1].ID, "b-task")
}

func TestCreateRejectsDuplicate(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "x")
	testutil.AssertError(t, store.Create(&core.Task{ID: "x", Summary: "again"}))
}

func TestCreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	testutil.AssertError(t, store.Create(&core.Task{ID: "", Summary: "s"}))
	testutil.AssertError(t, store.Create(&core.Task{ID: "i", Summary: ""}))
}

func TestClaimByIDs(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-1")

	results := store.ClaimByIDs([]string{"task-1", "ghost"})
	testutil.AssertEqual(t, results["task-1"], core.ClaimClaimed)
	testutil.AssertEqual(t, results["ghost"], core.ClaimNotFound)

	// Second claim of the same id reports already-claimed.
	again := store.ClaimByIDs([]string{"task-1"})
	testutil.AssertEqual(t, again["task-1"], core.ClaimAlreadyClaimed)

	current, err := store.IDs(core.TaskCurrent)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, current["task-1"], "task-1 should be current")
}

func TestClaimRace_ExactlyOneWinner(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-A", "task-B")

	const claimers = 8
	var wg sync.WaitGroup
	results := make([]map[string]core.ClaimResult, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.ClaimByIDs([]string{"task-A", "task-B"})
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"task-A", "task-B"} {
		winners := 0
		for _, r := range results {
			if r[id] == core.ClaimClaimed {
				winners++
			}
		}
		testutil.AssertEqual(t, winners, 1)
	}

	// No task lost: both are in current, none left in pending.
	current, err := store.IDs(core.TaskCurrent)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(current), 2)
	pending, err := store.IDs(core.TaskPending)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(pending), 0)
}

func TestCompleteAndAnnotate(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-1")
	store.ClaimByIDs([]string{"task-1"})

	testutil.AssertNoError(t, store.CompleteByIDs([]string{"task-1"}))
	testutil.AssertNoError(t, store.AnnotateCompleted("task-1", "w0", 2, "abc1234"))

	task, state, err := store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, state, core.TaskComplete)
	testutil.AssertEqual(t, task.CompletedBy, "w0")
	testutil.AssertEqual(t, task.ReviewRounds, 2)
	testutil.AssertEqual(t, task.MergedCommit, "abc1234")
	testutil.AssertTrue(t, task.CompletedAt != "", "completed_at must be stamped")
}

func TestRecycleIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-1")
	store.ClaimByIDs([]string{"task-1"})

	testutil.AssertNoError(t, store.RecycleByIDs([]string{"task-1"}))
	// Second recycle with the same id is a no-op.
	testutil.AssertNoError(t, store.RecycleByIDs([]string{"task-1"}))

	_, state, err := store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, state, core.TaskPending)
}

func TestTaskExistsInExactlyOneState(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-1")
	store.ClaimByIDs([]string{"task-1"})

	for _, state := range []core.TaskState{core.TaskPending, core.TaskComplete} {
		ids, err := store.IDs(state)
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, ids["task-1"], "task must only be current")
	}
}

func TestFilenameDerivation(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	testutil.AssertNoError(t, store.Create(&core.Task{ID: "fix: odd/name", Summary: "s"}))

	ids, err := store.IDs(core.TaskPending)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ids["fix-odd-name"], "filename should normalize the id")
}
