// Package duequeue wraps the global feeds list as a due-time priority queue.
package duequeue

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Queue scores feed keys by their next-due unix timestamp in one sorted set.
// PopDue does not remove entries; the caller must Reschedule (or Remove) the
// popped key, which upserts its score by member identity. Between pop and
// reschedule the key keeps a past score, so exclusivity relies on the
// single-tick loop, with the busy status field as an advisory signal only.
type Queue struct {
	store scheduler.KeyedStore
}

// New constructs a Queue.
func New(store scheduler.KeyedStore) *Queue {
	return &Queue{store: store}
}

// PopDue returns up to limit feed keys whose due score is at or before now,
// earliest first. An empty result means nothing is due.
func (q *Queue) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	max := float64(now.Unix())
	members, err := q.store.SortedSetRangeByScore(ctx, keys.FeedsList(), scheduler.RangeOptions{
		Max:   &max,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("pop due feeds: %w", err)
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Member
	}
	return out, nil
}

// Reschedule upserts the feed's due score.
func (q *Queue) Reschedule(ctx context.Context, feedKey string, dueAt time.Time) error {
	err := q.store.SortedSetAdd(ctx, keys.FeedsList(),
		scheduler.ScoredMember{Score: float64(dueAt.Unix()), Member: feedKey})
	if err != nil {
		return fmt.Errorf("reschedule %s: %w", feedKey, err)
	}
	return nil
}

// Remove drops the feed from the queue entirely.
func (q *Queue) Remove(ctx context.Context, feedKey string) error {
	if err := q.store.SortedSetRemove(ctx, keys.FeedsList(), feedKey); err != nil {
		return fmt.Errorf("remove %s: %w", feedKey, err)
	}
	return nil
}

// Score returns the feed's current due timestamp; ok is false when the feed
// is not queued.
func (q *Queue) Score(ctx context.Context, feedKey string) (int64, bool, error) {
	score, ok, err := q.store.SortedSetScore(ctx, keys.FeedsList(), feedKey)
	if err != nil {
		return 0, false, fmt.Errorf("score %s: %w", feedKey, err)
	}
	return int64(score), ok, nil
}
