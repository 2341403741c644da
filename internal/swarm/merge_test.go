package swarm_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/testutil"
)

func TestMerge_SuccessCompletesAndAnnotates(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-1")
	fix.store.ClaimByIDs([]string{"task-1"})
	ctx := context.Background()

	ws, err := fix.manager.Acquire(ctx, "w0", 1)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(ws.Dir, "done.txt"), []byte("done\n"), 0o644))

	ok := fix.merger.Merge(ctx, "w0", ws, []string{"task-1"}, 2)
	testutil.AssertTrue(t, ok, "merge should succeed")

	task, state, err := fix.store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, state, core.TaskComplete)
	testutil.AssertEqual(t, task.CompletedBy, "w0")
	testutil.AssertEqual(t, task.ReviewRounds, 2)
	testutil.AssertTrue(t, task.MergedCommit != "", "merged commit recorded")

	if _, err := os.Stat(filepath.Join(fix.repo.Path, "done.txt")); err != nil {
		t.Fatalf("done.txt should be on main: %v", err)
	}
}

func TestMerge_ConflictAbortsAndReturnsFalse(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	fix.seed(t, "task-1")
	fix.store.ClaimByIDs([]string{"task-1"})
	ctx := context.Background()

	ws, err := fix.manager.Acquire(ctx, "w0", 1)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(ws.Dir, "README.md"), []byte("# branch\n"), 0o644))

	// Main diverges on the same file after the workspace was cut.
	fix.repo.CommitFile("README.md", "# main moved on\n", "divergent change")

	ok := fix.merger.Merge(ctx, "w0", ws, []string{"task-1"}, 0)
	testutil.AssertFalse(t, ok, "conflicting merge must fail")

	// No merge left in progress on main.
	if _, err := os.Stat(filepath.Join(fix.repo.Path, ".git", "MERGE_HEAD")); !os.IsNotExist(err) {
		t.Fatal("merge should have been aborted")
	}

	// The task did not move to complete.
	_, state, err := fix.store.Get("task-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, state, core.TaskCurrent)
}

func TestMerge_SerializedAcrossWorkers(t *testing.T) {
	t.Parallel()
	fix := newFixture(t)
	ctx := context.Background()

	// Each worker contributes a disjoint file; merges race on the shared
	// main branch and must all land under the mutex.
	const workers = 4
	workspaces := make([]*workerMergeCase, workers)
	for i := 0; i < workers; i++ {
		id := workerID(i)
		ws, err := fix.manager.Acquire(ctx, id, 1)
		testutil.AssertNoError(t, err)
		name := id + ".txt"
		testutil.AssertNoError(t, os.WriteFile(filepath.Join(ws.Dir, name), []byte(name+"\n"), 0o644))
		workspaces[i] = &workerMergeCase{id: id, ws: ws, file: name}
	}

	var wg sync.WaitGroup
	for _, c := range workspaces {
		wg.Add(1)
		go func(c *workerMergeCase) {
			defer wg.Done()
			c.ok = fix.merger.Merge(ctx, c.id, c.ws, nil, 0)
		}(c)
	}
	wg.Wait()

	for _, c := range workspaces {
		testutil.AssertTrue(t, c.ok, "merge for "+c.id)
		if _, err := os.Stat(filepath.Join(fix.repo.Path, c.file)); err != nil {
			t.Fatalf("%s should be on main: %v", c.file, err)
		}
	}
}

type workerMergeCase struct {
	id   string
	ws   *gitadapter.Workspace
	file string
	ok   bool
}

func workerID(i int) string {
	return string(rune('a'+i)) + "w"
}
