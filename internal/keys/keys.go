// Package keys holds the deterministic key scheme for the keyed store.
// The strings are wire-compatible with the deployed scheduler, so changing
// any of them breaks existing data.
package keys

import "fmt"

// Topic returns the hash key for one topic.
func Topic(topicID string) string {
	return fmt.Sprintf("hmap:topic:topicId:%s", topicID)
}

// TopicsListByProject returns the zset of topic keys owned by a project,
// scored by store time.
func TopicsListByProject(projectID string) string {
	return fmt.Sprintf("zset:topicsList:clientId:%s:timestamp", projectID)
}

// TopicsListByFeed returns the reverse index: topics referencing a feed.
// Its cardinality is the feed's shared-reference count.
func TopicsListByFeed(feedID, feedSource string) string {
	return fmt.Sprintf("zset:topicsList:feedSource:%s:feedId:%s:timestamp", feedSource, feedID)
}

// Feed returns the hash key for one feed.
func Feed(feedID, feedSource string) string {
	return fmt.Sprintf("hmap:feed:feedSource:%s:feedId:%s", feedSource, feedID)
}

// FeedsListByTopic returns the zset of feed keys referenced by a topic.
func FeedsListByTopic(topicID string) string {
	return fmt.Sprintf("zset:feedsList:topicId:%s:timestamp", topicID)
}

// FeedsList returns the global due queue: every active feed key scored by
// its next-due unix timestamp.
func FeedsList() string {
	return "zset:feedsList:timestamp"
}

// DeletedFeedsList returns dereferenced feed keys scored by deletion time.
func DeletedFeedsList() string {
	return "zset:deletedFeedsList:timestamp"
}

// FeedTicks returns the zset of raw data ticks for a feed.
func FeedTicks(feedID, feedSource string) string {
	return fmt.Sprintf("zset:ticks:feedSource:%s:feedId:%s:timestamp", feedSource, feedID)
}

// FeedEfficiencyTicks returns the zset of crawl-lag measurements for a feed.
func FeedEfficiencyTicks(feedID, feedSource string) string {
	return fmt.Sprintf("zset:efficiency:ticks:feedSource:%s:feedId:%s:timestamp", feedSource, feedID)
}

// FeedErrorTicks returns the zset of error reports for a client on a source.
func FeedErrorTicks(clientID, feedSource string) string {
	return fmt.Sprintf("zset:error:ticks:feedSource:%s:clientId:%s:timestamp", feedSource, clientID)
}

// FeedWarningTicks returns the zset of warning reports for a client on a source.
func FeedWarningTicks(clientID, feedSource string) string {
	return fmt.Sprintf("zset:warning:ticks:feedSource:%s:clientId:%s:timestamp", feedSource, clientID)
}

// FeedErrorBands returns the zset of hole intervals for a feed: member is
// the hole start timestamp, score is the hole end.
func FeedErrorBands(feedID, feedSource string) string {
	return fmt.Sprintf("zset:error:bands:feedSource:%s:feedId:%s:timestamp", feedSource, feedID)
}
