package core

import (
	"regexp"
	"strings"
)

// SignalKind identifies the terminal token an agent emitted on stdout.
type SignalKind string

const (
	SignalNone     SignalKind = ""
	SignalClaim    SignalKind = "claim"
	SignalComplete SignalKind = "complete"
	SignalDone     SignalKind = "done"
)

// The recognized tokens. They are deliberately text-shaped so a human can
// type them into a session while debugging.
const (
	TokenDone     = "__DONE__"
	TokenComplete = "COMPLETE_AND_READY_FOR_MERGE"
)

var claimPattern = regexp.MustCompile(`CLAIM\(([^)]*)\)`)

// Signal is the parsed result of scanning one agent output.
type Signal struct {
	Kind     SignalKind
	ClaimIDs []string // populated only for SignalClaim
}

// ParseSignal scans agent output for the recognized tokens. Matching is
// case-sensitive substring for __DONE__ and COMPLETE_AND_READY_FOR_MERGE;
// CLAIM(...) extracts a comma-separated id list. Priority when several
// appear in one output: __DONE__ > COMPLETE_AND_READY_FOR_MERGE > CLAIM.
func ParseSignal(output string) Signal {
	if strings.Contains(output, TokenDone) {
		return Signal{Kind: SignalDone}
	}
	if strings.Contains(output, TokenComplete) {
		return Signal{Kind: SignalComplete}
	}
	if m := claimPattern.FindStringSubmatch(output); m != nil {
		ids := splitClaimIDs(m[1])
		if len(ids) > 0 {
			return Signal{Kind: SignalClaim, ClaimIDs: ids}
		}
	}
	return Signal{Kind: SignalNone}
}

func splitClaimIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
