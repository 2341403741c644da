package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oompa-dev/oompa/internal/logging"
)

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})
	logger.Info("cycle complete", "worker", "w0", "outcome", "merged")

	out := buf.String()
	for _, want := range []string{`"msg":"cycle complete"`, `"worker":"w0"`, `"outcome":"merged"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "warn", Format: "text", Output: &buf})
	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Fatal("warn should pass at warn level")
	}
}

func TestAutoFallsBackToJSONForNonTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "auto", Output: &buf})
	logger.Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("non-terminal auto output should be JSON, got %q", buf.String())
	}
}

func TestWithWorker(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})
	logger.WithWorker("w3").Info("claimed")
	if !strings.Contains(buf.String(), `"worker":"w3"`) {
		t.Fatalf("worker attr missing: %q", buf.String())
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	t.Parallel()
	logging.NewNop().Error("nothing happens")
}
