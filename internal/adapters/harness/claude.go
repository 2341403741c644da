package harness

import (
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/google/uuid"
)

// ClaudeHarness invokes the Claude CLI. Sessions are explicit: the
// framework mints a UUID up front and resumes it across cycle steps.
type ClaudeHarness struct {
	path string
}

// NewClaudeHarness creates a Claude adapter.
func NewClaudeHarness() Harness {
	return &ClaudeHarness{path: "claude"}
}

// Name returns the harness kind.
func (c *ClaudeHarness) Name() string {
	return "claude"
}

// BuildCmd constructs the argv for one invocation.
func (c *ClaudeHarness) BuildCmd(opts InvokeOptions) []string {
	args := []string{c.path, "--print", "--dangerously-skip-permissions"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Resume && opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	} else if opts.SessionID != "" {
		args = append(args, "--session-id", opts.SessionID)
	}
	if opts.Format {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	return args
}

// ProcessStdin pipes the prompt on stdin.
func (c *ClaudeHarness) ProcessStdin(prompt string) string {
	return prompt
}

// MakeSessionID mints a fresh session identifier.
func (c *ClaudeHarness) MakeSessionID() string {
	return uuid.NewString()
}

// ParseOutput extracts assistant text from the stream-json output, or
// returns the raw stdout when the CLI ran in plain mode.
func (c *ClaudeHarness) ParseOutput(raw, currentSessionID string) Output {
	out := Output{SessionID: currentSessionID}
	var text strings.Builder

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var event struct {
			Type      string `json:"type"`
			Subtype   string `json:"subtype"`
			Result    string `json:"result"`
			SessionID string `json:"session_id"`
			Message   *struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.SessionID != "" {
			out.SessionID = event.SessionID
		}
		switch event.Type {
		case "assistant":
			if event.Message != nil {
				for _, content := range event.Message.Content {
					if content.Type == "text" && content.Text != "" {
						text.WriteString(content.Text)
						text.WriteString("\n")
					}
				}
			}
		case "result":
			if event.Subtype == "success" && event.Result != "" {
				text.WriteString(event.Result)
				text.WriteString("\n")
			}
		}
	}

	if text.Len() == 0 {
		out.Text = raw
		return out
	}
	out.Text = text.String()
	return out
}

// CheckAvailable reports whether the claude binary is on PATH.
func (c *ClaudeHarness) CheckAvailable() bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

// BuildProbeCmd constructs the startup-validation argv.
func (c *ClaudeHarness) BuildProbeCmd(model string) []string {
	args := []string{c.path, "--print"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}
