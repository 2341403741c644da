package events_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/events"
	"github.com/oompa-dev/oompa/internal/testutil"
)

func newRecorder(t *testing.T) (*events.Recorder, string) {
	t.Helper()
	root := t.TempDir()
	rec, err := events.NewRecorder(root, "deadbeef")
	testutil.AssertNoError(t, err)
	return rec, root
}

func TestRecorderLayout(t *testing.T) {
	t.Parallel()
	rec, root := newRecorder(t)

	testutil.AssertNoError(t, rec.RecordStarted(&events.Started{
		SwarmID:   "deadbeef",
		StartedAt: events.Timestamp(time.Now()),
		PID:       os.Getpid(),
	}))
	testutil.AssertNoError(t, rec.RecordCycle(&events.Cycle{
		WorkerID: "w0", Cycle: 1, Outcome: core.OutcomeClaimed,
		Timestamp: events.Timestamp(time.Now()),
	}))
	testutil.AssertNoError(t, rec.RecordReview(&events.Review{
		WorkerID: "w0", Cycle: 2, Round: 1, Verdict: core.VerdictApproved,
		Timestamp: events.Timestamp(time.Now()),
	}))
	testutil.AssertNoError(t, rec.RecordStopped(&events.Stopped{
		StoppedAt: events.Timestamp(time.Now()), Reason: events.StopCompleted,
	}))

	for _, rel := range []string{
		"deadbeef/started.yaml",
		"deadbeef/stopped.yaml",
		"deadbeef/cycles/w0-c1.yaml",
		"deadbeef/reviews/w0-c2-r1.yaml",
	} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("expected %s: %v", rel, err)
		}
	}
}

func TestEventsAreImmutable(t *testing.T) {
	t.Parallel()
	rec, _ := newRecorder(t)

	cycle := &events.Cycle{WorkerID: "w0", Cycle: 1, Outcome: core.OutcomeWorking,
		Timestamp: events.Timestamp(time.Now())}
	testutil.AssertNoError(t, rec.RecordCycle(cycle))
	// A second write to the same final path must be refused.
	testutil.AssertError(t, rec.RecordCycle(cycle))
}

func TestReadRunRoundtrip(t *testing.T) {
	t.Parallel()
	rec, root := newRecorder(t)

	testutil.AssertNoError(t, rec.RecordStarted(&events.Started{
		SwarmID:    "deadbeef",
		StartedAt:  events.Timestamp(time.Now()),
		PID:        os.Getpid(),
		ConfigFile: "swarm.yaml",
		Workers:    []events.AgentRecord{{ID: "w0", Harness: "claude", CanPlan: true}},
	}))
	testutil.AssertNoError(t, rec.RecordCycle(&events.Cycle{
		WorkerID: "w0", Cycle: 1, Outcome: core.OutcomeMerged,
		Timestamp:      events.Timestamp(time.Now()),
		DurationMS:     1234,
		ClaimedTaskIDs: []string{"task-001"},
		ReviewRounds:   2,
	}))

	run, err := events.ReadRun(root, "deadbeef")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, run.Started.SwarmID, "deadbeef")
	testutil.AssertEqual(t, run.Started.Workers[0].Harness, "claude")
	testutil.AssertLen(t, run.Cycles, 1)
	testutil.AssertEqual(t, run.Cycles[0].Outcome, core.OutcomeMerged)
	testutil.AssertEqual(t, run.Cycles[0].ClaimedTaskIDs[0], "task-001")

	// Liveness: started exists, stopped absent, our own PID is alive.
	testutil.AssertTrue(t, run.Alive(), "run should read as alive")

	testutil.AssertNoError(t, rec.RecordStopped(&events.Stopped{
		StoppedAt: events.Timestamp(time.Now()), Reason: events.StopInterrupted,
	}))
	run, err = events.ReadRun(root, "deadbeef")
	testutil.AssertNoError(t, err)
	testutil.AssertFalse(t, run.Alive(), "stopped run is not alive")
	testutil.AssertEqual(t, run.Stopped.Reason, events.StopInterrupted)
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	for _, id := range []string{"bbbbbbbb", "aaaaaaaa"} {
		_, err := events.NewRecorder(root, id)
		testutil.AssertNoError(t, err)
	}
	ids, err := events.ListRuns(root)
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, ids, 2)
	testutil.AssertEqual(t, ids[0], "aaaaaaaa")

	none, err := events.ListRuns(filepath.Join(root, "missing"))
	testutil.AssertNoError(t, err)
	testutil.AssertLen(t, none, 0)
}
