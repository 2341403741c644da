package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/logging"
)

// DefaultTimeout bounds one agent subprocess.
const DefaultTimeout = 300 * time.Second

// Runner executes harness invocations as subprocesses.
type Runner struct {
	harness Harness
	timeout time.Duration
	logger  *logging.Logger
}

// NewRunner creates a runner for one harness.
func NewRunner(h Harness, timeout time.Duration, logger *logging.Logger) *Runner {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{harness: h, timeout: timeout, logger: logger}
}

// Harness returns the wrapped adapter.
func (r *Runner) Harness() Harness {
	return r.harness
}

// Invoke runs one agent subprocess to completion. A non-zero exit is not an
// error here: the engine inspects Result.ExitCode and decides. Errors are
// reserved for failures to run at all (missing binary, timeout, cancel).
func (r *Runner) Invoke(ctx context.Context, opts InvokeOptions) (*Result, error) {
	argv := r.harness.BuildCmd(opts)
	if len(argv) == 0 {
		return nil, core.ErrInternal(fmt.Sprintf("harness %s built empty argv", r.harness.Name()))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// #nosec G204 -- argv is built by the adapter from validated config
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), "OOMPA_MANAGED=true")

	if stdin := r.harness.ProcessStdin(opts.Prompt); stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("harness: invoking",
		"harness", r.harness.Name(),
		"argv0", argv[0],
		"cwd", opts.Cwd,
		"resume", opts.Resume,
		"prompt_length", len(opts.Prompt),
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, core.ErrTimeout(fmt.Sprintf("agent timed out after %v", r.timeout))
	}
	if ctx.Err() == context.Canceled {
		return result, core.ErrState("CANCELLED", "invocation cancelled")
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug("harness: nonzero exit",
				"harness", r.harness.Name(),
				"exit_code", result.ExitCode,
				"duration", duration,
			)
			return result, nil
		}
		return result, fmt.Errorf("running %s: %w", argv[0], err)
	}

	return result, nil
}
