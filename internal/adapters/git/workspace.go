package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oompa-dev/oompa/internal/logging"
)

// BranchPrefix namespaces per-cycle workspace branches.
const BranchPrefix = "oompa/"

// Workspace is an isolated per-cycle checkout a worker mutates freely.
type Workspace struct {
	Dir    string // absolute directory path
	Branch string // oompa/{worker-id}-c{cycle}
	Slug   string // {worker-id}-c{cycle}
}

// SyncResult is the outcome of merging main into a workspace.
type SyncResult string

const (
	SyncSynced   SyncResult = "synced"
	SyncResolved SyncResult = "resolved"
	SyncFailed   SyncResult = "failed"
)

// ConflictResolver is a one-shot subprocess invoked with the conflicted
// files when a sync hits a merge conflict. It runs outside the merge lock.
type ConflictResolver func(ctx context.Context, dir string, conflicted []string) error

// WorkspaceManager creates and destroys per-cycle workspaces.
type WorkspaceManager struct {
	git        *Client
	mainBranch string
	tasksDir   string // task-store root, for task-only-diff checks
	logger     *logging.Logger
}

// NewWorkspaceManager creates a workspace manager.
func NewWorkspaceManager(git *Client, mainBranch, tasksDir string, logger *logging.Logger) *WorkspaceManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkspaceManager{
		git:        git,
		mainBranch: mainBranch,
		tasksDir:   tasksDir,
		logger:     logger,
	}
}

// Slug returns the stable dir-slug for a worker's cycle.
func Slug(workerID string, cycle int) string {
	return fmt.Sprintf("%s-c%d", workerID, cycle)
}

// Acquire force-removes any stale workspace and branch for the slug, then
// creates a fresh worktree from current main. Repeating an Acquire with the
// same slug therefore always converges on a clean workspace.
func (m *WorkspaceManager) Acquire(ctx context.Context, workerID string, cycle int) (*Workspace, error) {
	slug := Slug(workerID, cycle)
	ws := &Workspace{
		Dir:    filepath.Join(m.git.RepoPath(), "."+slug),
		Branch: BranchPrefix + slug,
		Slug:   slug,
	}

	// Stale leftovers from a crashed prior run occupy the slug.
	if err := m.git.WorktreeRemove(ctx, ws.Dir); err != nil {
		return nil, fmt.Errorf("removing stale worktree %s: %w", ws.Dir, err)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return nil, fmt.Errorf("clearing workspace dir %s: %w", ws.Dir, err)
	}
	if err := m.git.BranchDelete(ctx, ws.Branch); err != nil {
		return nil, fmt.Errorf("deleting stale branch %s: %w", ws.Branch, err)
	}

	if err := m.git.WorktreeAdd(ctx, ws.Dir, ws.Branch, m.mainBranch); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", slug, err)
	}

	m.logger.Debug("workspace acquired", "slug", slug, "dir", ws.Dir, "branch", ws.Branch)
	return ws, nil
}

// Release force-removes the workspace directory and deletes its branch.
// Idempotent.
func (m *WorkspaceManager) Release(ctx context.Context, ws *Workspace) error {
	if ws == nil {
		return nil
	}
	if err := m.git.WorktreeRemove(ctx, ws.Dir); err != nil {
		return err
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return err
	}
	if err := m.git.BranchDelete(ctx, ws.Branch); err != nil {
		return err
	}
	m.logger.Debug("workspace released", "slug", ws.Slug)
	return nil
}

// HasChanges reports whether the workspace carries uncommitted changes or
// commits ahead of main.
func (m *WorkspaceManager) HasChanges(ctx context.Context, ws *Workspace) (bool, error) {
	dirty, err := m.git.HasUncommitted(ctx, ws.Dir)
	if err != nil {
		return false, err
	}
	if dirty {
		return true, nil
	}
	return m.git.AheadOf(ctx, ws.Dir, m.mainBranch)
}

// DiffFilenames lists files changed in the workspace versus main.
func (m *WorkspaceManager) DiffFilenames(ctx context.Context, ws *Workspace) ([]string, error) {
	return m.git.DiffNames(ctx, ws.Dir, m.mainBranch)
}

// Diff returns the workspace's patch versus main.
func (m *WorkspaceManager) Diff(ctx context.Context, ws *Workspace) (string, error) {
	return m.git.Diff(ctx, ws.Dir, m.mainBranch)
}

// TaskOnlyDiff reports whether every changed path is under the task-store
// root. Such cycles carry bookkeeping only and skip review.
func (m *WorkspaceManager) TaskOnlyDiff(ctx context.Context, ws *Workspace) (bool, error) {
	names, err := m.DiffFilenames(ctx, ws)
	if err != nil {
		return false, err
	}
	if len(names) == 0 {
		return false, nil
	}
	rel, err := filepath.Rel(m.git.RepoPath(), m.tasksDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Task store outside the repository: no diff can be task-only.
		return false, nil
	}
	prefix := filepath.ToSlash(rel) + "/"
	for _, name := range names {
		if !strings.HasPrefix(filepath.ToSlash(name), prefix) {
			return false, nil
		}
	}
	return true, nil
}

// SyncWithMain merges main into the workspace branch. On a clean merge it
// returns synced. On conflict it hands the conflicted files to the resolver
// and, if no markers remain, commits the resolution; otherwise the merge is
// aborted and failed is returned. Runs outside the merge-coordinator lock.
func (m *WorkspaceManager) SyncWithMain(ctx context.Context, ws *Workspace, resolve ConflictResolver) SyncResult {
	// The merge needs a clean index in the worktree.
	if err := m.git.CommitAll(ctx, ws.Dir, "wip: pre-sync snapshot"); err != nil {
		m.logger.Warn("sync: pre-merge commit failed", "slug", ws.Slug, "error", err)
		return SyncFailed
	}

	if err := m.git.MergeInto(ctx, ws.Dir, m.mainBranch); err == nil {
		return SyncSynced
	}

	conflicted, err := m.git.ConflictedFiles(ctx, ws.Dir)
	if err != nil || len(conflicted) == 0 {
		m.abortSync(ctx, ws)
		return SyncFailed
	}

	m.logger.Info("sync: merge conflict, invoking resolver",
		"slug", ws.Slug, "conflicted", len(conflicted))

	if resolve == nil {
		m.abortSync(ctx, ws)
		return SyncFailed
	}
	if err := resolve(ctx, ws.Dir, conflicted); err != nil {
		m.logger.Warn("sync: resolver failed", "slug", ws.Slug, "error", err)
		m.abortSync(ctx, ws)
		return SyncFailed
	}

	dirtyMarkers, err := m.git.HasConflictMarkers(ctx, ws.Dir, conflicted)
	if err != nil || dirtyMarkers {
		m.abortSync(ctx, ws)
		return SyncFailed
	}

	if err := m.git.CommitAll(ctx, ws.Dir, "merge: resolve conflicts with main"); err != nil {
		m.abortSync(ctx, ws)
		return SyncFailed
	}
	return SyncResolved
}

func (m *WorkspaceManager) abortSync(ctx context.Context, ws *Workspace) {
	if err := m.git.MergeAbort(ctx, ws.Dir); err != nil {
		m.logger.Warn("sync: merge abort failed", "slug", ws.Slug, "error", err)
	}
}
