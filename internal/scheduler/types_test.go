package scheduler

import (
	"testing"
)

func TestComputeDensity(t *testing.T) {
	t.Parallel()

	from := int64(1_700_000_000)
	if got := ComputeDensity(4, from, from+7200); got != "2" {
		t.Fatalf("expected density 2, got %q", got)
	}
	if got := ComputeDensity(10, from, from+3600); got != "10" {
		t.Fatalf("expected density 10, got %q", got)
	}
	// 10 results over 4 hours rounds to 3
	if got := ComputeDensity(10, from, from+4*3600); got != "3" {
		t.Fatalf("expected density 3, got %q", got)
	}
	if got := ComputeDensity(0, from, from+3600); got != "0" {
		t.Fatalf("expected density 0, got %q", got)
	}
}

func TestComputeDensityZeroSpan(t *testing.T) {
	t.Parallel()

	from := int64(1_700_000_000)
	if got := ComputeDensity(42, from, from); got != DensityNA {
		t.Fatalf("expected %q for a zero-length range, got %q", DensityNA, got)
	}
}

func TestFeedHashRoundTrip(t *testing.T) {
	t.Parallel()

	feed := Feed{
		ID:            "12345",
		Source:        "twitter",
		Entity:        EntityAuthor,
		Status:        FeedStatusIdle,
		TimestampTo:   "1700003600",
		Density:       "12",
		LastTimeCrawl: "1700000000",
	}
	got := FeedFromHash(feed.Hash())
	if got != feed {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, feed)
	}
}

func TestFeedHashSkipsEmptyOptionals(t *testing.T) {
	t.Parallel()

	feed := Feed{ID: "a", Source: "rss", Entity: EntityAuthor, Status: FeedStatusSleep}
	h := feed.Hash()
	if len(h) != 4 {
		t.Fatalf("expected 4 fields, got %d: %v", len(h), h)
	}
	for _, field := range []string{"timestamp_to", "density", "last_time_crawl"} {
		if _, ok := h[field]; ok {
			t.Fatalf("expected %q to be omitted", field)
		}
	}
}

func TestDensityValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		density string
		want    float64
		wantOK  bool
	}{
		{"", 0, false},
		{DensityNA, 0, false},
		{"garbage", 0, false},
		{"50", 50, true},
		{"0", 0, true},
	}
	for _, tc := range cases {
		got, ok := Feed{Density: tc.density}.DensityValue()
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("DensityValue(%q) = (%v, %v), want (%v, %v)", tc.density, got, ok, tc.want, tc.wantOK)
		}
	}
}
