// Package feedindex maintains the many-to-many topic/feed relationship in
// the keyed store.
package feedindex

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/derive"
	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Index applies topic mutations to the feed hashes, the relationship sets
// and the global feed lists. Multi-key writes are best-effort: the store has
// no cross-key transactions, so per-feed failures are logged and the rest of
// the sequence continues. The recover endpoint is the repair pass.
type Index struct {
	store  scheduler.KeyedStore
	clock  scheduler.Clock
	logger *zap.Logger
}

// New constructs an Index.
func New(store scheduler.KeyedStore, clock scheduler.Clock, logger *zap.Logger) *Index {
	return &Index{store: store, clock: clock, logger: logger}
}

// Store derives the topic's search items and writes every feed plus both
// sides of the relationship. New feeds start asleep and due immediately.
func (x *Index) Store(ctx context.Context, topic scheduler.Topic) error {
	if topic.ID == 0 {
		return fmt.Errorf("topic has no id")
	}
	now := x.clock.Now().Unix()
	topicID := strconv.FormatInt(topic.ID, 10)
	topicKey := keys.Topic(topicID)

	for _, item := range derive.SearchItems(topic, x.logger) {
		if err := x.storeItem(ctx, topicID, topicKey, item, now); err != nil {
			x.logger.Error("feed index store step failed",
				zap.String("feed_id", item.ID),
				zap.String("source", item.Source),
				zap.Error(err))
		}
	}
	return nil
}

func (x *Index) storeItem(ctx context.Context, topicID, topicKey string, item scheduler.SearchItem, now int64) error {
	feedKey := keys.Feed(item.ID, item.Source)

	fields := map[string]string{
		"id":     item.ID,
		"source": item.Source,
		"entity": string(item.Entity),
	}
	if _, ok, err := x.store.HashGet(ctx, feedKey, "status"); err != nil {
		return fmt.Errorf("probe feed hash: %w", err)
	} else if !ok {
		fields["status"] = string(scheduler.FeedStatusSleep)
	}
	if err := x.store.HashSet(ctx, feedKey, fields); err != nil {
		return fmt.Errorf("write feed hash: %w", err)
	}

	// both sides of the relationship, scored by store time
	if err := x.store.SortedSetAdd(ctx, keys.TopicsListByFeed(item.ID, item.Source),
		scheduler.ScoredMember{Score: float64(now), Member: topicKey}); err != nil {
		return fmt.Errorf("add reverse reference: %w", err)
	}
	if err := x.store.SortedSetAdd(ctx, keys.FeedsListByTopic(topicID),
		scheduler.ScoredMember{Score: float64(now), Member: feedKey}); err != nil {
		return fmt.Errorf("add forward reference: %w", err)
	}

	// keep an existing due score, otherwise the feed becomes due now
	if _, ok, err := x.store.SortedSetScore(ctx, keys.FeedsList(), feedKey); err != nil {
		return fmt.Errorf("probe due score: %w", err)
	} else if !ok {
		if err := x.store.SortedSetAdd(ctx, keys.FeedsList(),
			scheduler.ScoredMember{Score: float64(now), Member: feedKey}); err != nil {
			return fmt.Errorf("enqueue feed: %w", err)
		}
	}
	if err := x.store.SortedSetRemove(ctx, keys.DeletedFeedsList(), feedKey); err != nil {
		return fmt.Errorf("revive feed: %w", err)
	}
	return nil
}

// Update rewrites the topic's feed relationships from a fresh derivation.
// It is a full delete-then-store, not a diff; see DESIGN.md.
func (x *Index) Update(ctx context.Context, topic scheduler.Topic) error {
	if err := x.Delete(ctx, topic); err != nil {
		return fmt.Errorf("feed index update: %w", err)
	}
	if err := x.Store(ctx, topic); err != nil {
		return fmt.Errorf("feed index update: %w", err)
	}
	return nil
}

// Delete removes the topic's feed relationships. A feed whose last
// referencing topic goes away is put to sleep and moved from the global
// feeds list to the deleted list; shared feeds only lose this topic's
// reverse-reference entry.
func (x *Index) Delete(ctx context.Context, topic scheduler.Topic) error {
	if topic.ID == 0 {
		return nil
	}
	topicID := strconv.FormatInt(topic.ID, 10)
	topicKey := keys.Topic(topicID)
	feedsByTopicKey := keys.FeedsListByTopic(topicID)
	now := x.clock.Now().Unix()

	members, err := x.store.SortedSetRangeByScore(ctx, feedsByTopicKey, scheduler.RangeOptions{})
	if err != nil {
		return fmt.Errorf("read topic feeds: %w", err)
	}
	for _, m := range members {
		if err := x.releaseFeed(ctx, topicKey, m.Member, now); err != nil {
			x.logger.Error("feed index delete step failed",
				zap.String("feed_key", m.Member),
				zap.Error(err))
		}
	}
	if err := x.store.Delete(ctx, feedsByTopicKey); err != nil {
		return fmt.Errorf("drop topic feed set: %w", err)
	}
	return nil
}

func (x *Index) releaseFeed(ctx context.Context, topicKey, feedKey string, now int64) error {
	hash, err := x.store.HashGetAll(ctx, feedKey)
	if err != nil {
		return fmt.Errorf("read feed hash: %w", err)
	}
	if hash == nil {
		return nil
	}
	feed := scheduler.FeedFromHash(hash)
	topicsByFeedKey := keys.TopicsListByFeed(feed.ID, feed.Source)

	count, err := x.store.SortedSetCount(ctx, topicsByFeedKey, scheduler.RangeOptions{})
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if count == 1 {
		// last referencing topic: retire the feed
		if err := x.store.Delete(ctx, topicsByFeedKey); err != nil {
			return fmt.Errorf("drop reverse reference set: %w", err)
		}
		if err := x.store.HashSetField(ctx, feedKey, "status", string(scheduler.FeedStatusSleep)); err != nil {
			return fmt.Errorf("sleep feed: %w", err)
		}
		if err := x.store.SortedSetRemove(ctx, keys.FeedsList(), feedKey); err != nil {
			return fmt.Errorf("dequeue feed: %w", err)
		}
		if err := x.store.SortedSetAdd(ctx, keys.DeletedFeedsList(),
			scheduler.ScoredMember{Score: float64(now), Member: feedKey}); err != nil {
			return fmt.Errorf("archive feed: %w", err)
		}
		return nil
	}
	if err := x.store.SortedSetRemove(ctx, topicsByFeedKey, topicKey); err != nil {
		return fmt.Errorf("remove reverse reference: %w", err)
	}
	return nil
}

// Read returns the feeds currently referenced by the topic, skipping stale
// references whose hashes no longer exist.
func (x *Index) Read(ctx context.Context, topic scheduler.Topic) ([]scheduler.Feed, error) {
	topicID := strconv.FormatInt(topic.ID, 10)
	members, err := x.store.SortedSetRangeByScore(ctx, keys.FeedsListByTopic(topicID), scheduler.RangeOptions{})
	if err != nil {
		return nil, fmt.Errorf("read topic feeds: %w", err)
	}
	feeds := make([]scheduler.Feed, 0, len(members))
	for _, m := range members {
		hash, err := x.store.HashGetAll(ctx, m.Member)
		if err != nil {
			return nil, fmt.Errorf("read feed hash %s: %w", m.Member, err)
		}
		if hash == nil {
			continue
		}
		feeds = append(feeds, scheduler.FeedFromHash(hash))
	}
	return feeds, nil
}
