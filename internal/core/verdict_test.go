package core

import (
	"testing"
)

func TestParseVerdict_ExplicitLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output string
		want   Verdict
	}{
		{"looks fine\nVERDICT: APPROVED\n", VerdictApproved},
		{"VERDICT: NEEDS_CHANGES\nmissing tests", VerdictNeedsChanges},
		{"  VERDICT: REJECTED  \nout of scope", VerdictRejected},
	}
	for _, tt := range tests {
		if got := ParseVerdict(tt.output); got != tt.want {
			t.Fatalf("ParseVerdict(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestParseVerdict_ExplicitLineWinsOverBareWords(t *testing.T) {
	t.Parallel()

	out := "This could be APPROVED eventually.\nVERDICT: REJECTED"
	if got := ParseVerdict(out); got != VerdictRejected {
		t.Fatalf("got %q, want rejected", got)
	}
}

func TestParseVerdict_BareWordFallback(t *testing.T) {
	t.Parallel()

	if got := ParseVerdict("the change is approved, ship it"); got != VerdictApproved {
		t.Fatalf("got %q, want approved", got)
	}
	if got := ParseVerdict("Rejected: wrong file"); got != VerdictRejected {
		t.Fatalf("got %q, want rejected", got)
	}
	if got := ParseVerdict("hmm, not sure yet"); got != VerdictNeedsChanges {
		t.Fatalf("got %q, want needs-changes", got)
	}
}

func TestParseVerdict_FirstBareWordDecides(t *testing.T) {
	t.Parallel()

	if got := ParseVerdict("approved, though nearly rejected"); got != VerdictApproved {
		t.Fatalf("got %q, want approved", got)
	}
}

func TestTruncateDiff(t *testing.T) {
	t.Parallel()

	if got := TruncateDiff("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateDiff(string(long), 100)
	if got == string(long) {
		t.Fatal("expected truncation")
	}
	if got[:100] != string(long[:100]) {
		t.Fatal("truncated prefix should be preserved")
	}
}
