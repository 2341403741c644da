package harness

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/oompa-dev/oompa/internal/core"
)

// ProbeTimeout bounds one startup probe.
const ProbeTimeout = 60 * time.Second

// Probe runs the harness's "say ok" command to validate a harness+model
// pair before the swarm starts. The launcher aborts the run on failure.
func Probe(ctx context.Context, h Harness, model string) error {
	if !h.CheckAvailable() {
		return core.ErrNotFound("harness binary", h.Name())
	}

	argv := h.BuildProbeCmd(model)
	if len(argv) == 0 {
		return core.ErrInternal(fmt.Sprintf("harness %s built empty probe argv", h.Name()))
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	// #nosec G204 -- argv is built by the adapter from validated config
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin := h.ProcessStdin("say ok"); stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return core.ErrExecution("PROBE_FAILED",
			fmt.Sprintf("probe for %s (model %q) failed: %s", h.Name(), model, detail)).WithCause(err)
	}
	return nil
}
