// Package testutil holds shared fixtures for package tests: typed asserts,
// a scratch git repository sized for workspace and merge tests, and the
// scripted fake harness.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoError fails the test when err is non-nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

// AssertError fails the test when err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("err = nil, want an error")
	}
}

// AssertEqual fails the test when got differs from want.
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertContains fails the test when substr is not inside s.
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%q not found in %q", substr, s)
	}
}

// AssertLen fails the test when the slice length differs from want.
func AssertLen[T any](t *testing.T, s []T, want int) {
	t.Helper()
	if len(s) != want {
		t.Fatalf("len = %d, want %d (%v)", len(s), want, s)
	}
}

// AssertTrue fails the test with msg when b is false.
func AssertTrue(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Fatal("not true: " + msg)
	}
}

// AssertFalse fails the test with msg when b is true.
func AssertFalse(t *testing.T, b bool, msg string) {
	t.Helper()
	if b {
		t.Fatal("not false: " + msg)
	}
}

// GitRepo is a throwaway repository with main checked out, the shape the
// workspace manager and merge coordinator expect to operate on.
type GitRepo struct {
	Path string
	t    *testing.T
}

// NewGitRepo initializes a repository on a main branch with a local
// identity, leaving the first commit to the caller.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	r := &GitRepo{Path: t.TempDir(), t: t}
	r.Git("init", "-b", "main")
	r.Git("config", "user.name", "swarm-tests")
	r.Git("config", "user.email", "swarm-tests@localhost")
	return r
}

// Git runs one git command in the repository and fails the test if it
// does not exit cleanly.
func (r *GitRepo) Git(args ...string) string {
	r.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = r.Path
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile puts a file into the working tree without committing it.
func (r *GitRepo) WriteFile(name, content string) {
	r.t.Helper()

	path := filepath.Join(r.Path, name)
	AssertNoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
	AssertNoError(r.t, os.WriteFile(path, []byte(content), 0o644))
}

// Commit stages everything and commits it.
func (r *GitRepo) Commit(message string) {
	r.t.Helper()
	r.Git("add", "-A")
	r.Git("commit", "-m", message, "--allow-empty")
}

// CommitFile writes one file and lands it on main in a single step; most
// tests advance main exactly this way.
func (r *GitRepo) CommitFile(name, content, message string) {
	r.t.Helper()
	r.WriteFile(name, content)
	r.Commit(message)
}
