package memory

import (
	"context"
	"testing"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

func TestHashSemantics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	got, err := s.HashGetAll(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("absent hash should be nil, got %v, err %v", got, err)
	}

	if err := s.HashSet(ctx, "h", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("HashSet: %v", err)
	}
	if err := s.HashSetField(ctx, "h", "b", "3"); err != nil {
		t.Fatalf("HashSetField: %v", err)
	}

	v, ok, err := s.HashGet(ctx, "h", "b")
	if err != nil || !ok || v != "3" {
		t.Fatalf("expected b=3, got %q ok=%v err=%v", v, ok, err)
	}
	_, ok, _ = s.HashGet(ctx, "h", "c")
	if ok {
		t.Fatal("absent field reported present")
	}

	all, _ := s.HashGetAll(ctx, "h")
	if len(all) != 2 || all["a"] != "1" {
		t.Fatalf("unexpected hash contents: %v", all)
	}
	// the returned map is a copy
	all["a"] = "mutated"
	v, _, _ = s.HashGet(ctx, "h", "a")
	if v != "1" {
		t.Fatal("HashGetAll leaked internal state")
	}
}

func TestSortedSetRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	err := s.SortedSetAdd(ctx, "z",
		scheduler.ScoredMember{Score: 30, Member: "c"},
		scheduler.ScoredMember{Score: 10, Member: "a"},
		scheduler.ScoredMember{Score: 20, Member: "b"},
	)
	if err != nil {
		t.Fatalf("SortedSetAdd: %v", err)
	}

	min, max := 10.0, 20.0
	got, err := s.SortedSetRangeByScore(ctx, "z", scheduler.RangeOptions{Min: &min, Max: &max})
	if err != nil {
		t.Fatalf("SortedSetRangeByScore: %v", err)
	}
	if len(got) != 2 || got[0].Member != "a" || got[1].Member != "b" {
		t.Fatalf("expected [a b] (bounds inclusive, score order), got %v", got)
	}

	got, _ = s.SortedSetRangeByScore(ctx, "z", scheduler.RangeOptions{Limit: 1})
	if len(got) != 1 || got[0].Member != "a" {
		t.Fatalf("expected limit to keep the earliest member, got %v", got)
	}
}

func TestSortedSetUpsertCountScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_ = s.SortedSetAdd(ctx, "z", scheduler.ScoredMember{Score: 10, Member: "a"})
	_ = s.SortedSetAdd(ctx, "z", scheduler.ScoredMember{Score: 99, Member: "a"})

	n, err := s.SortedSetCount(ctx, "z", scheduler.RangeOptions{})
	if err != nil || n != 1 {
		t.Fatalf("expected a single member after upsert, got %d err %v", n, err)
	}
	score, ok, _ := s.SortedSetScore(ctx, "z", "a")
	if !ok || score != 99 {
		t.Fatalf("expected score 99, got %v ok=%v", score, ok)
	}
	_, ok, _ = s.SortedSetScore(ctx, "z", "b")
	if ok {
		t.Fatal("absent member reported present")
	}
}

func TestSortedSetRemoveDropsEmptySet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_ = s.SortedSetAdd(ctx, "z", scheduler.ScoredMember{Score: 1, Member: "a"})
	if err := s.SortedSetRemove(ctx, "z", "a"); err != nil {
		t.Fatalf("SortedSetRemove: %v", err)
	}
	n, _ := s.SortedSetCount(ctx, "z", scheduler.RangeOptions{})
	if n != 0 {
		t.Fatalf("expected empty set, got %d", n)
	}
	// removing from a gone set is a no-op
	if err := s.SortedSetRemove(ctx, "z", "a"); err != nil {
		t.Fatalf("SortedSetRemove on absent set: %v", err)
	}
}

func TestDeleteRemovesBothKinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_ = s.HashSet(ctx, "k", map[string]string{"a": "1"})
	_ = s.SortedSetAdd(ctx, "k", scheduler.ScoredMember{Score: 1, Member: "a"})
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	h, _ := s.HashGetAll(ctx, "k")
	if h != nil {
		t.Fatalf("hash survived delete: %v", h)
	}
	n, _ := s.SortedSetCount(ctx, "k", scheduler.RangeOptions{})
	if n != 0 {
		t.Fatalf("zset survived delete: %d members", n)
	}
}
