package redis

import "testing"

func TestFormatBound(t *testing.T) {
	t.Parallel()

	if got := formatBound(nil, "-inf"); got != "-inf" {
		t.Fatalf("expected -inf for a nil bound, got %q", got)
	}
	v := 1_700_000_000.0
	if got := formatBound(&v, "+inf"); got != "1700000000" {
		t.Fatalf("expected plain integer formatting, got %q", got)
	}
	frac := 1.5
	if got := formatBound(&frac, "+inf"); got != "1.5" {
		t.Fatalf("expected 1.5, got %q", got)
	}
}
