// Package git wraps the git binary for the workspace manager and the merge
// coordinator. The binary is a launch-time requirement; nothing here links
// a git library.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
)

// Client wraps git CLI operations against one repository.
type Client struct {
	repoPath string
	timeout  time.Duration
	gitPath  string
}

// NewClient creates a new git client rooted at repoPath.
func NewClient(repoPath string) (*Client, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, core.ErrNotFound("binary", "git")
	}

	client := &Client{
		repoPath: absPath,
		timeout:  60 * time.Second,
		gitPath:  gitPath,
	}

	if _, err := client.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, core.ErrValidation("NOT_GIT_REPO", fmt.Sprintf("%s is not a git repository", absPath))
	}
	return client, nil
}

// RepoPath returns the repository root.
func (c *Client) RepoPath() string {
	return c.repoPath
}

// run executes a git command in the repository root.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	return c.runDir(ctx, c.repoPath, args...)
}

// runDir executes a git command in an arbitrary directory (a worktree).
// exec.CommandContext does not invoke a shell, so arguments are not subject
// to shell interpolation.
func (c *Client) runDir(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout("git command timed out")
		}
		return strings.TrimSpace(stdout.String()),
			fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// CurrentBranch returns the checked-out branch in the repository root.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// IsClean reports whether the repository root has no uncommitted changes.
func (c *Client) IsClean(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// ShortHead returns the abbreviated HEAD commit hash.
func (c *Client) ShortHead(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--short", "HEAD")
}

// WorktreeAdd creates a worktree at dir on a new branch from base.
func (c *Client) WorktreeAdd(ctx context.Context, dir, branch, base string) error {
	_, err := c.run(ctx, "worktree", "add", "-b", branch, dir, base)
	return err
}

// WorktreeRemove force-removes a worktree and prunes stale metadata.
// Idempotent: a missing worktree is not an error.
func (c *Client) WorktreeRemove(ctx context.Context, dir string) error {
	if _, err := c.run(ctx, "worktree", "remove", "--force", dir); err != nil {
		if _, pruneErr := c.run(ctx, "worktree", "prune"); pruneErr != nil {
			return pruneErr
		}
	}
	return nil
}

// BranchDelete force-deletes a branch. Idempotent.
func (c *Client) BranchDelete(ctx context.Context, branch string) error {
	if !c.BranchExists(ctx, branch) {
		return nil
	}
	_, err := c.run(ctx, "branch", "-D", branch)
	return err
}

// BranchExists reports whether a local branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) bool {
	_, err := c.run(ctx, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// HasUncommitted reports whether the worktree at dir has uncommitted changes.
func (c *Client) HasUncommitted(ctx context.Context, dir string) (bool, error) {
	out, err := c.runDir(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// AheadOf reports whether the worktree at dir has commits not on ref.
func (c *Client) AheadOf(ctx context.Context, dir, ref string) (bool, error) {
	out, err := c.runDir(ctx, dir, "rev-list", "--count", ref+"..HEAD")
	if err != nil {
		return false, err
	}
	return out != "" && out != "0", nil
}

// DiffNames lists files changed in the worktree at dir versus ref,
// including uncommitted and untracked paths.
func (c *Client) DiffNames(ctx context.Context, dir, ref string) ([]string, error) {
	committed, err := c.runDir(ctx, dir, "diff", "--name-only", ref)
	if err != nil {
		return nil, err
	}
	untracked, err := c.runDir(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, block := range []string{committed, untracked} {
		for _, line := range strings.Split(block, "\n") {
			if line = strings.TrimSpace(line); line != "" && !seen[line] {
				seen[line] = true
				names = append(names, line)
			}
		}
	}
	return names, nil
}

// Diff returns the patch of the worktree at dir versus ref.
func (c *Client) Diff(ctx context.Context, dir, ref string) (string, error) {
	return c.runDir(ctx, dir, "diff", ref)
}

// CommitAll stages and commits everything in the worktree at dir.
// Committing a clean tree is a no-op.
func (c *Client) CommitAll(ctx context.Context, dir, message string) error {
	if _, err := c.runDir(ctx, dir, "add", "-A"); err != nil {
		return err
	}
	dirty, err := c.HasUncommitted(ctx, dir)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	_, err = c.runDir(ctx, dir, "commit", "-m", message)
	return err
}

// Checkout switches the repository root to ref.
func (c *Client) Checkout(ctx context.Context, ref string) error {
	_, err := c.run(ctx, "checkout", ref)
	return err
}

// Merge merges ref into the current branch of the repository root.
func (c *Client) Merge(ctx context.Context, ref string) error {
	_, err := c.run(ctx, "merge", "--no-edit", ref)
	return err
}

// MergeInto merges ref into the worktree at dir.
func (c *Client) MergeInto(ctx context.Context, dir, ref string) error {
	_, err := c.runDir(ctx, dir, "merge", "--no-edit", ref)
	return err
}

// MergeAbort aborts an in-progress merge in dir.
func (c *Client) MergeAbort(ctx context.Context, dir string) error {
	_, err := c.runDir(ctx, dir, "merge", "--abort")
	return err
}

// ResetHard discards all changes in the repository root back to HEAD.
func (c *Client) ResetHard(ctx context.Context) error {
	_, err := c.run(ctx, "reset", "--hard", "HEAD")
	return err
}

// ConflictedFiles lists unmerged paths in the worktree at dir.
func (c *Client) ConflictedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := c.runDir(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// HasConflictMarkers reports whether any of the files under dir still carry
// conflict markers.
func (c *Client) HasConflictMarkers(ctx context.Context, dir string, files []string) (bool, error) {
	for _, f := range files {
		out, err := c.runDir(ctx, dir, "grep", "-l", "-e", "<<<<<<<", "--", f)
		if err == nil && out != "" {
			return true, nil
		}
	}
	return false, nil
}
