package swarm

import (
	"context"
	"sync/atomic"
)

// GraceWindowSeconds is how long the controller waits for workers to finish
// their current cycle after a termination signal before forcing exit.
const GraceWindowSeconds = 10

// ShutdownController is the process-wide stop flag. Workers check it
// between cycles; subprocesses in flight are cancelled through the derived
// context. Cancellation is cooperative everywhere else.
type ShutdownController struct {
	requested atomic.Bool
	cancel    context.CancelFunc
}

// NewShutdownController wraps a parent context; the returned context is
// cancelled when shutdown triggers.
func NewShutdownController(parent context.Context) (*ShutdownController, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &ShutdownController{cancel: cancel}, ctx
}

// Trigger sets the flag and cancels the swarm context. Safe to call more
// than once.
func (s *ShutdownController) Trigger() {
	s.requested.Store(true)
	s.cancel()
}

// Requested reports whether shutdown has been requested.
func (s *ShutdownController) Requested() bool {
	return s.requested.Load()
}
