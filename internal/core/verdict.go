package core

import (
	"regexp"
	"strings"
)

// Verdict is the reviewer's decision for one round.
type Verdict string

const (
	VerdictApproved     Verdict = "approved"
	VerdictNeedsChanges Verdict = "needs-changes"
	VerdictRejected     Verdict = "rejected"
)

var (
	verdictLinePattern = regexp.MustCompile(`(?m)^\s*VERDICT:\s*(APPROVED|NEEDS_CHANGES|REJECTED)\s*$`)
	approvedPattern    = regexp.MustCompile(`(?i)\bAPPROVED\b`)
	rejectedPattern    = regexp.MustCompile(`(?i)\bREJECTED\b`)
)

// ParseVerdict extracts the reviewer's verdict from raw output. An explicit
// `VERDICT: ...` line wins; otherwise the first bare APPROVED or REJECTED
// word decides; anything else reads as needs-changes.
func ParseVerdict(output string) Verdict {
	if m := verdictLinePattern.FindStringSubmatch(output); m != nil {
		switch m[1] {
		case "APPROVED":
			return VerdictApproved
		case "REJECTED":
			return VerdictRejected
		default:
			return VerdictNeedsChanges
		}
	}

	approved := approvedPattern.FindStringIndex(output)
	rejected := rejectedPattern.FindStringIndex(output)
	switch {
	case approved != nil && (rejected == nil || approved[0] < rejected[0]):
		return VerdictApproved
	case rejected != nil:
		return VerdictRejected
	}
	return VerdictNeedsChanges
}

// TruncateDiff bounds a diff for inclusion in a review prompt.
func TruncateDiff(diff string, limit int) string {
	if len(diff) <= limit {
		return diff
	}
	return diff[:limit] + "\n... [diff truncated]"
}

// FormatFeedback joins accumulated per-round reviewer feedback into the
// block handed to the fix subprocess and to later review rounds.
func FormatFeedback(rounds []string) string {
	var b strings.Builder
	for i, fb := range rounds {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fb)
	}
	return b.String()
}
