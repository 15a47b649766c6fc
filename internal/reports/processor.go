// Package reports applies feed-update callback reports to the feed state.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/duequeue"
	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/metrics"
	"github.com/sweetwork/svc-scheduler/internal/planner"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
	"github.com/sweetwork/svc-scheduler/internal/timeline"
)

// ErrUnknownFeed is returned when a report references a feed hash that does
// not exist (or lost its id).
var ErrUnknownFeed = errors.New("missing id in feed hash")

// Processor reconciles one crawl outcome: timeline maintenance, the feed
// hash update, and the adaptive next-crawl reschedule.
type Processor struct {
	store    scheduler.KeyedStore
	timeline *timeline.Timeline
	queue    *duequeue.Queue
	clock    scheduler.Clock
	logger   *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(store scheduler.KeyedStore, tl *timeline.Timeline, queue *duequeue.Queue, clock scheduler.Clock, logger *zap.Logger) *Processor {
	return &Processor{store: store, timeline: tl, queue: queue, clock: clock, logger: logger}
}

// Process applies the report. The feed must already exist in the store.
func (p *Processor) Process(ctx context.Context, report scheduler.FeedReport) error {
	if report.ID == "" || report.Source == "" {
		return fmt.Errorf("missing id and/or source in report")
	}
	feedKey := keys.Feed(report.ID, report.Source)
	hash, err := p.store.HashGetAll(ctx, feedKey)
	if err != nil {
		return fmt.Errorf("read feed hash: %w", err)
	}
	if hash == nil || hash["id"] == "" {
		return ErrUnknownFeed
	}
	prior := scheduler.FeedFromHash(hash)
	metrics.ObserveReport(report.Error != nil)

	if err := p.timeline.RecordOutcome(ctx, report); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	density := scheduler.ComputeDensity(report.NumResults, report.TimestampFrom, report.TimestampTo)
	now := p.clock.Now()
	if err := p.updateFeedHash(ctx, feedKey, report, density, now.Unix()); err != nil {
		return err
	}

	densityVal, hasDensity := parseDensity(density)
	interval := planner.Next(planner.Input{
		Source:        report.Source,
		Entity:        report.Entity,
		Density:       densityVal,
		HasDensity:    hasDensity,
		HadError:      report.Error != nil,
		ErrorMessage:  errorMessage(report),
		HadPriorCrawl: prior.LastTimeCrawl != "",
	})
	dueAt := now.Add(interval)
	p.logger.Info("next crawl scheduled",
		zap.String("source", report.Source),
		zap.String("feed_id", report.ID),
		zap.Int("num_results", report.NumResults),
		zap.String("density", density),
		zap.Time("due_at", dueAt))
	if err := p.queue.Reschedule(ctx, feedKey, dueAt); err != nil {
		return err
	}
	metrics.ObserveReschedule()
	return nil
}

// updateFeedHash applies the outcome to the feed hash. On an error with no
// data ticks the stored density and high-water mark are left untouched so
// the next crawl re-covers the same range at the previous pace.
func (p *Processor) updateFeedHash(ctx context.Context, feedKey string, report scheduler.FeedReport, density string, nowUnix int64) error {
	fields := map[string]string{
		"id":              report.ID,
		"source":          report.Source,
		"entity":          string(report.Entity),
		"last_time_crawl": strconv.FormatInt(nowUnix, 10),
	}
	if report.Error != nil {
		fields["status"] = string(scheduler.FeedStatusErrored)
		if len(report.Ticks) > 0 {
			fields["timestamp_to"] = strconv.FormatInt(report.TimestampTo, 10)
			fields["density"] = density
		}
	} else {
		fields["status"] = string(scheduler.FeedStatusIdle)
		fields["timestamp_to"] = strconv.FormatInt(report.TimestampTo, 10)
		fields["density"] = density
	}
	if err := p.store.HashSet(ctx, feedKey, fields); err != nil {
		return fmt.Errorf("update feed hash: %w", err)
	}
	return nil
}

func parseDensity(density string) (float64, bool) {
	if density == scheduler.DensityNA {
		return 0, false
	}
	v, err := strconv.ParseFloat(density, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

func errorMessage(report scheduler.FeedReport) string {
	if report.Error == nil {
		return ""
	}
	return report.Error.Message
}
