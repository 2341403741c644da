// Package taskstore is the only mechanism by which tasks move between
// states. Task state is encoded by the containing directory, and every
// transition is a single atomic rename, so racing workers resolve each
// claim deterministically without locks.
package taskstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/fsutil"
)

const taskExt = ".yaml"

// Store manages the pending/current/complete directory trio.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating the state directories.
func New(root string) (*Store, error) {
	for _, state := range core.TaskStates {
		if err := fsutil.EnsureDir(filepath.Join(root, string(state))); err != nil {
			return nil, fmt.Errorf("creating task dir %s: %w", state, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the task-store root directory.
func (s *Store) Root() string {
	return s.root
}

// PendingDir returns the pending directory path.
func (s *Store) PendingDir() string {
	return s.stateDir(core.TaskPending)
}

func (s *Store) stateDir(state core.TaskState) string {
	return filepath.Join(s.root, string(state))
}

func (s *Store) taskPath(state core.TaskState, id string) string {
	return filepath.Join(s.stateDir(state), core.NormalizeTaskID(id)+taskExt)
}

// Create writes a new task file into pending. The filename derives from the
// id with non-alphanumeric runs mapped to a dash.
func (s *Store) Create(task *core.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	path := s.taskPath(core.TaskPending, task.ID)
	if s.findState(task.ID) != "" {
		return core.ErrConflict("TASK_EXISTS", fmt.Sprintf("task %s already exists", task.ID))
	}
	data, err := yaml.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", task.ID, err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// List enumerates tasks in the given state, ordered by filename.
func (s *Store) List(state core.TaskState) ([]*core.Task, error) {
	entries, err := os.ReadDir(s.stateDir(state))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), taskExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tasks := make([]*core.Task, 0, len(names))
	for _, name := range names {
		task, err := s.readFile(filepath.Join(s.stateDir(state), name))
		if err != nil {
			// A racing rename can remove the file between ReadDir and read.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// IDs returns the normalized task IDs present in the given state.
func (s *Store) IDs(state core.TaskState) (map[string]bool, error) {
	entries, err := os.ReadDir(s.stateDir(state))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), taskExt) {
			ids[strings.TrimSuffix(e.Name(), taskExt)] = true
		}
	}
	return ids, nil
}

// Get reads a task by id, reporting the state it was found in.
func (s *Store) Get(id string) (*core.Task, core.TaskState, error) {
	for _, state := range core.TaskStates {
		task, err := s.readFile(s.taskPath(state, id))
		if err == nil {
			return task, state, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
	}
	return nil, "", core.ErrNotFound("task", id)
}

// ClaimByIDs attempts pending -> current for each id with one atomic rename
// per id. Concurrent claims resolve atomically: exactly one caller wins.
func (s *Store) ClaimByIDs(ids []string) map[string]core.ClaimResult {
	results := make(map[string]core.ClaimResult, len(ids))
	for _, id := range ids {
		results[id] = s.claimOne(id)
	}
	return results
}

func (s *Store) claimOne(id string) core.ClaimResult {
	src := s.taskPath(core.TaskPending, id)
	dst := s.taskPath(core.TaskCurrent, id)
	if err := os.Rename(src, dst); err == nil {
		return core.ClaimClaimed
	}
	switch s.findState(id) {
	case core.TaskCurrent, core.TaskComplete:
		return core.ClaimAlreadyClaimed
	default:
		return core.ClaimNotFound
	}
}

// CompleteByIDs renames current -> complete. Used only by the framework
// after a successful merge.
func (s *Store) CompleteByIDs(ids []string) error {
	return s.renameAll(ids, core.TaskCurrent, core.TaskComplete)
}

// RecycleByIDs renames current -> pending, returning claimed tasks to the
// queue when a cycle aborts. Recycling an id already back in pending is a
// no-op, so double recycles are safe.
func (s *Store) RecycleByIDs(ids []string) error {
	var firstErr error
	for _, id := range ids {
		src := s.taskPath(core.TaskCurrent, id)
		dst := s.taskPath(core.TaskPending, id)
		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) && fsutil.Exists(dst) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("recycling task %s: %w", id, err)
			}
		}
	}
	return firstErr
}

func (s *Store) renameAll(ids []string, from, to core.TaskState) error {
	for _, id := range ids {
		src := s.taskPath(from, id)
		dst := s.taskPath(to, id)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("moving task %s %s->%s: %w", id, from, to, err)
		}
	}
	return nil
}

// AnnotateCompleted rewrites a completed task file with the metadata the
// framework appends after a merge.
func (s *Store) AnnotateCompleted(id, workerID string, reviewRounds int, mergedCommit string) error {
	path := s.taskPath(core.TaskComplete, id)
	task, err := s.readFile(path)
	if err != nil {
		return fmt.Errorf("annotating task %s: %w", id, err)
	}
	task.MarkCompleted(workerID, time.Now(), reviewRounds, mergedCommit)
	data, err := yaml.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", id, err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// findState reports which state directory holds the id, or "" if none.
func (s *Store) findState(id string) core.TaskState {
	for _, state := range core.TaskStates {
		if fsutil.Exists(s.taskPath(state, id)) {
			return state
		}
	}
	return ""
}

func (s *Store) readFile(path string) (*core.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var task core.Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decoding task file %s: %w", filepath.Base(path), err)
	}
	return &task, nil
}
