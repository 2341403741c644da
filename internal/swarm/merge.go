package swarm

import (
	"context"
	"sync"

	gitadapter "github.com/oompa-dev/oompa/internal/adapters/git"
	"github.com/oompa-dev/oompa/internal/logging"
	"github.com/oompa-dev/oompa/internal/taskstore"
)

// MergeCoordinator serializes integration of approved work onto the main
// branch. The mutex is the only explicit mutual-exclusion primitive in the
// orchestrator: the shared repository index tolerates exactly one mutator.
type MergeCoordinator struct {
	mu         sync.Mutex
	git        *gitadapter.Client
	store      *taskstore.Store
	mainBranch string
	logger     *logging.Logger
}

// NewMergeCoordinator creates a merge coordinator.
func NewMergeCoordinator(git *gitadapter.Client, store *taskstore.Store, mainBranch string, logger *logging.Logger) *MergeCoordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MergeCoordinator{
		git:        git,
		store:      store,
		mainBranch: mainBranch,
		logger:     logger,
	}
}

// Merge integrates a workspace branch into main. On success the claimed
// tasks move current -> complete and receive their completion annotation.
// Ordering across workers is unspecified; the only contract is that at most
// one worker is inside this critical section.
func (m *MergeCoordinator) Merge(ctx context.Context, workerID string, ws *gitadapter.Workspace, claimedIDs []string, reviewRounds int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.CommitAll(ctx, ws.Dir, "work: "+ws.Slug); err != nil {
		m.logger.Error("merge: committing workspace failed", "slug", ws.Slug, "error", err)
		return false
	}

	if err := m.git.Checkout(ctx, m.mainBranch); err != nil {
		m.logger.Error("merge: checkout main failed", "error", err)
		return false
	}

	if err := m.git.Merge(ctx, ws.Branch); err != nil {
		m.logger.Warn("merge: merging branch failed", "branch", ws.Branch, "error", err)
		m.recover(ctx)
		return false
	}

	commit, err := m.git.ShortHead(ctx)
	if err != nil {
		commit = ""
	}

	if err := m.store.CompleteByIDs(claimedIDs); err != nil {
		m.logger.Error("merge: completing tasks failed", "error", err)
	}
	for _, id := range claimedIDs {
		if err := m.store.AnnotateCompleted(id, workerID, reviewRounds, commit); err != nil {
			m.logger.Warn("merge: annotating task failed", "task", id, "error", err)
		}
	}

	m.logger.Info("merge: integrated", "worker", workerID, "branch", ws.Branch, "commit", commit)
	return true
}

// recover aborts a failed merge; when even the abort fails, a hard reset
// brings main back to HEAD so the next worker finds a usable index.
func (m *MergeCoordinator) recover(ctx context.Context) {
	if err := m.git.MergeAbort(ctx, m.git.RepoPath()); err != nil {
		m.logger.Warn("merge: abort failed, hard resetting", "error", err)
		if err := m.git.ResetHard(ctx); err != nil {
			m.logger.Error("merge: hard reset failed", "error", err)
		}
	}
}
