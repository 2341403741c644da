package taskstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/testutil"
)

func TestWaitNonEmpty_ImmediateWhenTasksExist(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	seed(t, store, "task-1")

	start := time.Now()
	testutil.AssertTrue(t, store.WaitNonEmpty(context.Background()), "should see pending task")
	if time.Since(start) > time.Second {
		t.Fatal("wait should return immediately when tasks exist")
	}
}

func TestWaitNonEmpty_WakesOnCreate(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = store.Create(&core.Task{ID: "late", Summary: "arrives later"})
	}()

	start := time.Now()
	got := store.WaitNonEmpty(context.Background())
	testutil.AssertTrue(t, got, "should observe the late task")
	if time.Since(start) > 30*time.Second {
		t.Fatal("wait should wake well before the cap")
	}
}

func TestWaitNonEmpty_CancelledContext(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testutil.AssertFalse(t, store.WaitNonEmpty(ctx), "empty store with cancelled ctx")
}
