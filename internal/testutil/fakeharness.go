package testutil

import (
	"fmt"
	"sync"

	"github.com/oompa-dev/oompa/internal/adapters/harness"
)

// FakeStep is one scripted agent invocation.
type FakeStep struct {
	Argv []string
}

// Say scripts an invocation that prints output and does nothing else.
func Say(output string) FakeStep {
	return FakeStep{Argv: []string{"echo", output}}
}

// Shell scripts an invocation running a shell snippet in the workspace.
func Shell(script string) FakeStep {
	return FakeStep{Argv: []string{"sh", "-c", script}}
}

// Exit scripts an invocation that fails with the given code.
func Exit(code int) FakeStep {
	return FakeStep{Argv: []string{"sh", "-c", fmt.Sprintf("exit %d", code)}}
}

// FakeHarness is a scripted adapter for engine tests. Each BuildCmd call
// consumes the next step (the last step repeats), so the runner's real
// subprocess machinery is exercised end to end.
type FakeHarness struct {
	mu      sync.Mutex
	steps   []FakeStep
	calls   int
	prompts []string
}

// NewFakeHarness scripts the successive agent invocations.
func NewFakeHarness(steps ...FakeStep) *FakeHarness {
	return &FakeHarness{steps: steps}
}

// Name returns the harness kind.
func (f *FakeHarness) Name() string { return "fake" }

// Calls reports how many invocations were built.
func (f *FakeHarness) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Prompts returns every prompt handed to BuildCmd, in order.
func (f *FakeHarness) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// BuildCmd hands out the next scripted step's argv.
func (f *FakeHarness) BuildCmd(opts harness.InvokeOptions) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, opts.Prompt)
	idx := f.calls
	f.calls++
	if len(f.steps) == 0 {
		return []string{"true"}
	}
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	return f.steps[idx].Argv
}

// ProcessStdin closes stdin.
func (f *FakeHarness) ProcessStdin(string) string { return "" }

// MakeSessionID mints a deterministic session id.
func (f *FakeHarness) MakeSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("fake-session-%d", f.calls)
}

// ParseOutput returns stdout verbatim.
func (f *FakeHarness) ParseOutput(raw, currentSessionID string) harness.Output {
	return harness.Output{Text: raw, SessionID: currentSessionID}
}

// CheckAvailable always succeeds.
func (f *FakeHarness) CheckAvailable() bool { return true }

// BuildProbeCmd builds a trivially succeeding probe.
func (f *FakeHarness) BuildProbeCmd(string) []string { return []string{"true"} }
