package duequeue

import (
	"context"
	"testing"
	"time"

	"github.com/sweetwork/svc-scheduler/internal/store/memory"
)

func TestPopDueReturnsEarliestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(memory.New())
	now := time.Unix(1_700_000_000, 0)

	mustReschedule(t, q, "feed:late", now.Add(-time.Minute))
	mustReschedule(t, q, "feed:early", now.Add(-time.Hour))
	mustReschedule(t, q, "feed:future", now.Add(time.Hour))

	got, err := q.PopDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("PopDue: %v", err)
	}
	if len(got) != 2 || got[0] != "feed:early" || got[1] != "feed:late" {
		t.Fatalf("expected [feed:early feed:late], got %v", got)
	}

	got, _ = q.PopDue(ctx, now, 1)
	if len(got) != 1 || got[0] != "feed:early" {
		t.Fatalf("expected limit to keep the earliest, got %v", got)
	}
}

func TestPopDueEmptyQueue(t *testing.T) {
	t.Parallel()

	q := New(memory.New())
	got, err := q.PopDue(context.Background(), time.Unix(1_700_000_000, 0), 1)
	if err != nil {
		t.Fatalf("PopDue: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing due, got %v", got)
	}
}

func TestRescheduleUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(memory.New())
	now := time.Unix(1_700_000_000, 0)

	mustReschedule(t, q, "feed:a", now)
	mustReschedule(t, q, "feed:a", now.Add(time.Hour))

	score, ok, err := q.Score(ctx, "feed:a")
	if err != nil || !ok {
		t.Fatalf("Score: ok=%v err=%v", ok, err)
	}
	if score != now.Add(time.Hour).Unix() {
		t.Fatalf("expected score %d, got %d", now.Add(time.Hour).Unix(), score)
	}

	got, _ := q.PopDue(ctx, now, 10)
	if len(got) != 0 {
		t.Fatalf("rescheduled feed still due: %v", got)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(memory.New())
	now := time.Unix(1_700_000_000, 0)

	mustReschedule(t, q, "feed:a", now)
	if err := q.Remove(ctx, "feed:a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, ok, _ := q.Score(ctx, "feed:a")
	if ok {
		t.Fatal("removed feed still scored")
	}
}

func mustReschedule(t *testing.T, q *Queue, feedKey string, dueAt time.Time) {
	t.Helper()
	if err := q.Reschedule(context.Background(), feedKey, dueAt); err != nil {
		t.Fatalf("Reschedule(%s): %v", feedKey, err)
	}
}
