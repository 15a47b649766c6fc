package feedindex

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
	"github.com/sweetwork/svc-scheduler/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newIndex(now time.Time) (*Index, *memory.Store) {
	store := memory.New()
	return New(store, &fakeClock{now: now}, zap.NewNop()), store
}

func TestStoreWritesFeedsAndRelationships(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{
		ID:      7,
		Words:   []string{"boa", "python", "arbok"},
		Sources: []string{"instagram", "googleplus"},
	}
	if err := x.Store(ctx, topic); err != nil {
		t.Fatalf("Store: %v", err)
	}

	for _, word := range []string{"boa", "python", "arbok"} {
		for _, source := range []string{"instagram", "googleplus"} {
			feedKey := keys.Feed(word, source)
			hash, err := store.HashGetAll(ctx, feedKey)
			if err != nil || hash == nil {
				t.Fatalf("feed hash %s missing: %v", feedKey, err)
			}
			if hash["status"] != string(scheduler.FeedStatusSleep) || hash["entity"] != string(scheduler.EntityResult) {
				t.Fatalf("unexpected feed hash %s: %v", feedKey, hash)
			}
			score, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey)
			if !ok || score != float64(now.Unix()) {
				t.Fatalf("feed %s not due now: %v ok=%v", feedKey, score, ok)
			}
			_, ok, _ = store.SortedSetScore(ctx, keys.FeedsListByTopic("7"), feedKey)
			if !ok {
				t.Fatalf("feed %s missing from topic's feed set", feedKey)
			}
			_, ok, _ = store.SortedSetScore(ctx, keys.TopicsListByFeed(word, source), keys.Topic("7"))
			if !ok {
				t.Fatalf("reverse reference missing for %s", feedKey)
			}
		}
	}
}

func TestStoreKeepsExistingStatusAndDueScore(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	feedKey := keys.Feed("boa", "twitter")
	mustNoErr(t, store.HashSet(ctx, feedKey, map[string]string{
		"id": "boa", "source": "twitter", "entity": "result",
		"status": string(scheduler.FeedStatusIdle),
	}))
	mustNoErr(t, store.SortedSetAdd(ctx, keys.FeedsList(),
		scheduler.ScoredMember{Score: float64(now.Unix() + 500), Member: feedKey}))

	topic := scheduler.Topic{ID: 7, Words: []string{"boa"}, Sources: []string{"twitter"}}
	if err := x.Store(ctx, topic); err != nil {
		t.Fatalf("Store: %v", err)
	}

	status, _, _ := store.HashGet(ctx, feedKey, "status")
	if status != string(scheduler.FeedStatusIdle) {
		t.Fatalf("existing status was overwritten: %q", status)
	}
	score, _, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey)
	if score != float64(now.Unix()+500) {
		t.Fatalf("existing due score was overwritten: %v", score)
	}
}

func TestDeleteRetiresUnsharedFeed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{ID: 7, Words: []string{"boa"}, Sources: []string{"twitter"}}
	mustNoErr(t, x.Store(ctx, topic))
	mustNoErr(t, x.Delete(ctx, topic))

	feedKey := keys.Feed("boa", "twitter")
	status, _, _ := store.HashGet(ctx, feedKey, "status")
	if status != string(scheduler.FeedStatusSleep) {
		t.Fatalf("retired feed should sleep, got %q", status)
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey); ok {
		t.Fatal("retired feed still in the due queue")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.DeletedFeedsList(), feedKey); !ok {
		t.Fatal("retired feed missing from the deleted list")
	}
	n, _ := store.SortedSetCount(ctx, keys.FeedsListByTopic("7"), scheduler.RangeOptions{})
	if n != 0 {
		t.Fatalf("topic feed set survived delete: %d members", n)
	}
}

func TestDeleteKeepsSharedFeedAlive(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	t1 := scheduler.Topic{ID: 1, Words: []string{"python"}, Sources: []string{"googleplus"}}
	t2 := scheduler.Topic{ID: 2, Words: []string{"python"}, Sources: []string{"googleplus"}}
	mustNoErr(t, x.Store(ctx, t1))
	mustNoErr(t, x.Store(ctx, t2))

	mustNoErr(t, x.Delete(ctx, t1))

	feedKey := keys.Feed("python", "googleplus")
	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey); !ok {
		t.Fatal("shared feed left the due queue too early")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.TopicsListByFeed("python", "googleplus"), keys.Topic("1")); ok {
		t.Fatal("deleted topic still referenced by the feed")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.TopicsListByFeed("python", "googleplus"), keys.Topic("2")); !ok {
		t.Fatal("surviving topic lost its reference")
	}

	// last reference goes away: now the feed retires
	mustNoErr(t, x.Delete(ctx, t2))
	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey); ok {
		t.Fatal("unreferenced feed still in the due queue")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.DeletedFeedsList(), feedKey); !ok {
		t.Fatal("unreferenced feed missing from the deleted list")
	}
}

func TestStoreRevivesDeletedFeed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{ID: 7, Words: []string{"boa"}, Sources: []string{"twitter"}}
	mustNoErr(t, x.Store(ctx, topic))
	mustNoErr(t, x.Delete(ctx, topic))
	mustNoErr(t, x.Store(ctx, topic))

	feedKey := keys.Feed("boa", "twitter")
	if _, ok, _ := store.SortedSetScore(ctx, keys.DeletedFeedsList(), feedKey); ok {
		t.Fatal("revived feed still on the deleted list")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey); !ok {
		t.Fatal("revived feed not due again")
	}
}

func TestUpdateWithUnchangedTopicIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{ID: 7, Words: []string{"boa", "python"}, Sources: []string{"twitter"}}
	mustNoErr(t, x.Store(ctx, topic))
	mustNoErr(t, x.Update(ctx, topic))
	mustNoErr(t, x.Update(ctx, topic))

	n, _ := store.SortedSetCount(ctx, keys.FeedsListByTopic("7"), scheduler.RangeOptions{})
	if n != 2 {
		t.Fatalf("expected 2 feeds after repeated updates, got %d", n)
	}
	for _, word := range []string{"boa", "python"} {
		refs, _ := store.SortedSetCount(ctx, keys.TopicsListByFeed(word, "twitter"), scheduler.RangeOptions{})
		if refs != 1 {
			t.Fatalf("expected a single reverse reference for %s, got %d", word, refs)
		}
		feedKey := keys.Feed(word, "twitter")
		if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), feedKey); !ok {
			t.Fatalf("feed %s left the due queue", feedKey)
		}
		if _, ok, _ := store.SortedSetScore(ctx, keys.DeletedFeedsList(), feedKey); ok {
			t.Fatalf("feed %s ended up on the deleted list", feedKey)
		}
	}
}

func TestUpdateDropsStaleFeeds(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{ID: 7, Words: []string{"boa", "python"}, Sources: []string{"twitter"}}
	mustNoErr(t, x.Store(ctx, topic))

	topic.Words = []string{"boa"}
	mustNoErr(t, x.Update(ctx, topic))

	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsListByTopic("7"), keys.Feed("python", "twitter")); ok {
		t.Fatal("removed keyword still referenced by the topic")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.DeletedFeedsList(), keys.Feed("python", "twitter")); !ok {
		t.Fatal("dereferenced feed not retired")
	}
	if _, ok, _ := store.SortedSetScore(ctx, keys.FeedsList(), keys.Feed("boa", "twitter")); !ok {
		t.Fatal("surviving feed left the due queue")
	}
}

func TestReadSkipsStaleReferences(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	x, store := newIndex(now)
	ctx := context.Background()

	topic := scheduler.Topic{ID: 7, Words: []string{"boa", "python"}, Sources: []string{"twitter"}}
	mustNoErr(t, x.Store(ctx, topic))

	// simulate a lost hash behind one reference
	mustNoErr(t, store.Delete(ctx, keys.Feed("python", "twitter")))

	feeds, err := x.Read(ctx, topic)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(feeds) != 1 || feeds[0].ID != "boa" {
		t.Fatalf("expected only the surviving feed, got %v", feeds)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
