// Package loop implements the scheduler's ticking driver.
package loop

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/duequeue"
	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/metrics"
	"github.com/sweetwork/svc-scheduler/internal/planner"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
	"github.com/sweetwork/svc-scheduler/internal/timeline"
)

// Config controls Loop behavior.
type Config struct {
	TickInterval  time.Duration
	SearchTimeout time.Duration
	ServiceName   string
}

// Loop pops at most one due feed per tick, derives its search query from the
// topics referencing it, invokes the controller, and reschedules the feed.
// Run executes ticks sequentially in a single goroutine, so a slow tick can
// never overlap the next one; per-feed failures are logged and isolated.
type Loop struct {
	store    scheduler.KeyedStore
	queue    *duequeue.Queue
	timeline *timeline.Timeline
	searcher scheduler.Searcher
	clock    scheduler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Loop.
func New(
	store scheduler.KeyedStore,
	queue *duequeue.Queue,
	tl *timeline.Timeline,
	searcher scheduler.Searcher,
	clock scheduler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 30 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Scheduler"
	}
	return &Loop{
		store:    store,
		queue:    queue,
		timeline: tl,
		searcher: searcher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, ticking until the context finishes. The initial auth failure
// is tolerated: the searcher re-authenticates on demand.
func (l *Loop) Run(ctx context.Context) {
	if err := l.searcher.Auth(ctx, l.cfg.ServiceName); err != nil {
		l.logger.Error("initial controller auth failed", zap.Error(err))
	}
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick processes at most one due feed.
func (l *Loop) Tick(ctx context.Context) {
	now := l.clock.Now()
	members, err := l.queue.PopDue(ctx, now, 1)
	if err != nil {
		l.logger.Error("pop due feed failed", zap.Error(err))
		return
	}
	if len(members) == 0 {
		l.logger.Debug("tick")
		metrics.ObserveTick("empty")
		return
	}
	l.processFeed(ctx, members[0], now)
}

func (l *Loop) processFeed(ctx context.Context, feedKey string, now time.Time) {
	hash, err := l.store.HashGetAll(ctx, feedKey)
	if err != nil {
		l.logger.Error("read feed hash failed", zap.String("feed_key", feedKey), zap.Error(err))
		return
	}
	if hash == nil || hash["id"] == "" {
		// corrupt entry: drop it and move on
		if err := l.store.Delete(ctx, feedKey); err != nil {
			l.logger.Error("delete stale feed hash failed", zap.String("feed_key", feedKey), zap.Error(err))
		}
		if err := l.queue.Remove(ctx, feedKey); err != nil {
			l.logger.Error("dequeue stale feed failed", zap.String("feed_key", feedKey), zap.Error(err))
		}
		l.logger.Error("key had an erroneous hash", zap.String("feed_key", feedKey))
		metrics.ObserveTick("self_heal")
		return
	}
	feed := scheduler.FeedFromHash(hash)

	if feed.Status == scheduler.FeedStatusBusy {
		l.logger.Warn("feed has not been updated since it was first ordered to crawl",
			zap.String("feed_key", feedKey))
	} else if err := l.store.HashSetField(ctx, feedKey, "status", string(scheduler.FeedStatusBusy)); err != nil {
		l.logger.Error("mark feed busy failed", zap.String("feed_key", feedKey), zap.Error(err))
	}

	query := l.buildQuery(ctx, feed, now)

	searchCtx, cancel := context.WithTimeout(ctx, l.cfg.SearchTimeout)
	err = l.searcher.Search(searchCtx, query)
	cancel()
	metrics.ObserveSearch(feed.Source, err == nil)

	hadPriorCrawl := feed.LastTimeCrawl != ""
	if err != nil {
		l.logger.Error("controller search failed",
			zap.String("feed_key", feedKey),
			zap.Error(err))
		if tlErr := l.timeline.RecordSearchFailure(ctx, feed.ID, feed.Source, query.TimestampFrom, query.TimestampTo); tlErr != nil {
			l.logger.Error("record search failure hole", zap.Error(tlErr))
		}
		l.reschedule(ctx, feedKey, now.Add(time.Minute))
		metrics.ObserveTick("processed")
		return
	}

	density, hasDensity := feed.DensityValue()
	interval := planner.Next(planner.Input{
		Source:        feed.Source,
		Entity:        feed.Entity,
		Density:       density,
		HasDensity:    hasDensity,
		HadPriorCrawl: hadPriorCrawl,
	})
	l.logger.Info("triggered search",
		zap.String("source", feed.Source),
		zap.String("feed_id", feed.ID),
		zap.Int64("timestamp_from", query.TimestampFrom),
		zap.Duration("next_crawl_in", interval))
	l.reschedule(ctx, feedKey, now.Add(interval))
	metrics.ObserveTick("processed")
}

func (l *Loop) buildQuery(ctx context.Context, feed scheduler.Feed, now time.Time) scheduler.SearchQuery {
	from := now.AddDate(0, -1, 0).Unix()
	if feed.TimestampTo != "" {
		if ts, err := strconv.ParseInt(feed.TimestampTo, 10, 64); err == nil {
			from = ts
		}
	}
	query := scheduler.SearchQuery{
		TimestampFrom: from,
		TimestampTo:   now.Unix(),
		ID:            feed.ID,
		Source:        feed.Source,
		Entity:        feed.Entity,
		TopicHash:     map[string][]string{},
	}

	max := float64(now.Unix())
	topicKeys, err := l.store.SortedSetRangeByScore(ctx, keys.TopicsListByFeed(feed.ID, feed.Source),
		scheduler.RangeOptions{Max: &max})
	if err != nil {
		l.logger.Error("read topic references failed",
			zap.String("feed_id", feed.ID),
			zap.Error(err))
		return query
	}

	languages := newUnion()
	countries := newUnion()
	for _, tk := range topicKeys {
		topicHash, err := l.store.HashGetAll(ctx, tk.Member)
		if err != nil {
			l.logger.Error("read topic hash failed", zap.String("topic_key", tk.Member), zap.Error(err))
			continue
		}
		if topicHash == nil {
			continue
		}
		projectID := topicHash["projectId"]
		query.TopicHash[projectID] = append(query.TopicHash[projectID], topicHash["id"])
		languages.addCSV(topicHash["languages"])
		countries.addCSV(topicHash["countries"])
	}
	query.Languages = languages.values()
	query.Countries = countries.values()
	return query
}

func (l *Loop) reschedule(ctx context.Context, feedKey string, dueAt time.Time) {
	if err := l.queue.Reschedule(ctx, feedKey, dueAt); err != nil {
		l.logger.Error("reschedule failed", zap.String("feed_key", feedKey), zap.Error(err))
		return
	}
	metrics.ObserveReschedule()
}

// union collects de-duplicated, non-empty CSV values.
type union struct {
	seen map[string]struct{}
}

func newUnion() *union {
	return &union{seen: make(map[string]struct{})}
}

func (u *union) addCSV(csv string) {
	for _, v := range strings.Split(csv, ",") {
		if v == "" {
			continue
		}
		u.seen[v] = struct{}{}
	}
}

func (u *union) values() []string {
	out := make([]string, 0, len(u.seen))
	for v := range u.seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
