package scheduler

import (
	"context"
	"time"
)

// ScoredMember pairs a sorted-set member with its score.
type ScoredMember struct {
	Score  float64
	Member string
}

// RangeOptions narrows a sorted-set range query. Min/Max of nil mean
// -inf/+inf. Limit of 0 means no limit.
type RangeOptions struct {
	Min   *float64
	Max   *float64
	Limit int
}

// KeyedStore is the ordered keyed storage the core runs against: hashes by
// key plus sorted sets of (score, member). Implemented by store/redis for
// production and store/memory for tests.
type KeyedStore interface {
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSet(ctx context.Context, key string, fields map[string]string) error
	HashSetField(ctx context.Context, key, field, value string) error
	Delete(ctx context.Context, key string) error

	SortedSetAdd(ctx context.Context, key string, members ...ScoredMember) error
	SortedSetRemove(ctx context.Context, key string, members ...string) error
	SortedSetRangeByScore(ctx context.Context, key string, opts RangeOptions) ([]ScoredMember, error)
	SortedSetCount(ctx context.Context, key string, opts RangeOptions) (int64, error)
	SortedSetScore(ctx context.Context, key, member string) (float64, bool, error)
}

// Searcher is the remote controller capability consumed by the loop.
type Searcher interface {
	Auth(ctx context.Context, serviceName string) error
	Search(ctx context.Context, query SearchQuery) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
