package swarm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oompa-dev/oompa/internal/core"
	"github.com/oompa-dev/oompa/internal/taskstore"
)

// ContinuePrompt is the minimal resume prompt when no override is queued.
const ContinuePrompt = "Continue working on your current task."

// StuckNudgePrompt is queued when a session produced no terminal signal for
// max consecutive resumes.
const StuckNudgePrompt = "You have been working for a while without signaling. " +
	"Wrap up now: emit COMPLETE_AND_READY_FOR_MERGE if your work is ready, " +
	"or __DONE__ if there is nothing left to do."

// PromptBuilder assembles worker prompts. Prompt file contents are opaque
// to the framework; only token substitution and the status block are ours.
type PromptBuilder struct {
	projectDir string
	store      *taskstore.Store
}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder(projectDir string, store *taskstore.Store) *PromptBuilder {
	return &PromptBuilder{projectDir: projectDir, store: store}
}

// FreshStart composes the cycle-opening prompt: task header, status block,
// then the worker's prompt files with {token} substitution applied from the
// caller-built context.
func (b *PromptBuilder) FreshStart(cfg core.WorkerConfig, tokens map[string]string) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are worker %s in a swarm working on this repository.\n", cfg.ID)
	sb.WriteString("Claim tasks with CLAIM(id, ...), finish with COMPLETE_AND_READY_FOR_MERGE, ")
	sb.WriteString("or emit __DONE__ when nothing remains.\n\n")

	status, err := b.statusBlock()
	if err != nil {
		return "", err
	}
	sb.WriteString(status)

	for _, file := range cfg.PromptFiles {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(b.projectDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt file %s: %w", file, err)
		}
		sb.WriteString("\n")
		sb.WriteString(substituteTokens(string(data), tokens))
	}

	return sb.String(), nil
}

func (b *PromptBuilder) statusBlock() (string, error) {
	pending, err := b.store.List(core.TaskPending)
	if err != nil {
		return "", err
	}
	current, err := b.store.IDs(core.TaskCurrent)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task queue: %d pending, %d in progress.\n", len(pending), len(current))
	for _, t := range pending {
		fmt.Fprintf(&sb, "  - %s: %s\n", t.ID, t.Summary)
	}
	return sb.String(), nil
}

// substituteTokens replaces {token} placeholders with context values built
// by the prompt-context collaborator. Unknown tokens pass through verbatim.
func substituteTokens(text string, tokens map[string]string) string {
	if len(tokens) == 0 {
		return text
	}
	pairs := make([]string, 0, len(tokens)*2)
	for k, v := range tokens {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// ClaimResultsPrompt is the injected resume prompt after a CLAIM signal,
// reporting the per-id outcome of the atomic claim.
func ClaimResultsPrompt(results map[string]core.ClaimResult) string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("Claim results:\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "  %s: %s\n", id, results[id])
	}
	sb.WriteString("Work only on the tasks you claimed. ")
	sb.WriteString("Emit COMPLETE_AND_READY_FOR_MERGE when your changes are ready.")
	return sb.String()
}

// ConflictPrompt describes conflicted files to the one-shot resolver agent.
func ConflictPrompt(files []string) string {
	var sb strings.Builder
	sb.WriteString("A merge from the main branch left conflicts in this worktree. ")
	sb.WriteString("Resolve every conflict marker, keep both sides' intent where possible, ")
	sb.WriteString("and stage the resolved files. Conflicted files:\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "  - %s\n", f)
	}
	return sb.String()
}
