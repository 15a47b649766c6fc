// Package timeline tracks crawl-error holes and tick history per feed.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/metrics"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Timeline reconciles crawl outcomes into a gap-annotated history. A hole is
// one member of the feed's band zset: the member is the hole's start
// timestamp, the score is its end. At most one open hole exists per feed, so
// any member whose end falls inside the queried range is the open hole.
type Timeline struct {
	store  scheduler.KeyedStore
	clock  scheduler.Clock
	logger *zap.Logger
}

// New constructs a Timeline.
func New(store scheduler.KeyedStore, clock scheduler.Clock, logger *zap.Logger) *Timeline {
	return &Timeline{store: store, clock: clock, logger: logger}
}

type tickedError struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
	TS       int64  `json:"ts"`
	ID       string `json:"id"`
}

// RecordOutcome applies one feed-update report: error/warning ticks, band
// maintenance, and raw data/efficiency ticks. Individual write failures are
// logged, never fatal.
func (t *Timeline) RecordOutcome(ctx context.Context, report scheduler.FeedReport) error {
	now := t.clock.Now()

	if report.Error != nil {
		t.recordErrorTick(ctx, report, now.Unix())
	}
	if err := t.maintainBands(ctx, report); err != nil {
		return err
	}
	t.recordTicks(ctx, report, now.UnixMilli())
	return nil
}

// RecordSearchFailure opens or extends a hole after a failed controller
// search, with the hole end pushed one minute past now so the band stays
// open until the fast retry.
func (t *Timeline) RecordSearchFailure(ctx context.Context, feedID, feedSource string, timestampFrom, timestampTo int64) error {
	holeEnd := t.clock.Now().Unix() + 60
	return t.extendOrCreate(ctx, feedID, feedSource, timestampFrom, timestampTo, holeEnd)
}

func (t *Timeline) recordErrorTick(ctx context.Context, report scheduler.FeedReport, nowUnix int64) {
	member, err := json.Marshal(tickedError{
		Name:     report.Error.Name,
		Message:  report.Error.Message,
		ClientID: report.Error.ClientID,
		// the timestamp makes the member unique inside the set
		TS: nowUnix,
		ID: report.ID,
	})
	if err != nil {
		t.logger.Error("marshal error tick", zap.Error(err))
		return
	}
	var key string
	switch report.Error.Name {
	case "Warning":
		key = keys.FeedWarningTicks(report.Error.ClientID, report.Source)
		t.logger.Warn("controller recorded a warning",
			zap.String("feed_id", report.ID),
			zap.String("message", report.Error.Message))
	case "Error":
		key = keys.FeedErrorTicks(report.Error.ClientID, report.Source)
		t.logger.Error("controller recorded an error",
			zap.String("feed_id", report.ID),
			zap.String("message", report.Error.Message))
	default:
		t.logger.Error("report error with unknown name",
			zap.String("name", report.Error.Name),
			zap.String("feed_id", report.ID))
		return
	}
	if err := t.store.SortedSetAdd(ctx, key,
		scheduler.ScoredMember{Score: float64(nowUnix), Member: string(member)}); err != nil {
		t.logger.Error("write error tick", zap.Error(err))
	}
}

func (t *Timeline) maintainBands(ctx context.Context, report scheduler.FeedReport) error {
	key := keys.FeedErrorBands(report.ID, report.Source)

	count, err := t.store.SortedSetCount(ctx, key, scheduler.RangeOptions{})
	if err != nil {
		return fmt.Errorf("count bands: %w", err)
	}
	if count == 0 {
		// zero-length sentinel marks the first observation for this feed
		if err := t.store.SortedSetAdd(ctx, key,
			scheduler.ScoredMember{Score: float64(report.TimestampFrom), Member: "0"}); err != nil {
			t.logger.Error("seed sentinel band", zap.Error(err))
		}
	}

	if report.Error != nil {
		holeEnd := report.TimestampTo
		if len(report.Ticks) > 0 {
			// some data arrived before the failure: close the hole there
			holeEnd = int64(math.Round(float64(report.Ticks[len(report.Ticks)-1]) / 1000))
		}
		return t.extendOrCreate(ctx, report.ID, report.Source, report.TimestampFrom, report.TimestampTo, holeEnd)
	}

	min := float64(report.TimestampFrom)
	max := float64(report.TimestampTo)
	members, err := t.store.SortedSetRangeByScore(ctx, key, scheduler.RangeOptions{Min: &min, Max: &max})
	if err != nil {
		return fmt.Errorf("query bands: %w", err)
	}
	if len(members) > 0 {
		t.logger.Info("feed fully recovered",
			zap.String("feed_id", report.ID),
			zap.String("source", report.Source))
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.Member
		}
		if err := t.store.SortedSetRemove(ctx, key, names...); err != nil {
			return fmt.Errorf("close bands: %w", err)
		}
		metrics.ObserveHole("closed")
	}
	return nil
}

func (t *Timeline) extendOrCreate(ctx context.Context, feedID, feedSource string, timestampFrom, timestampTo, holeEnd int64) error {
	key := keys.FeedErrorBands(feedID, feedSource)
	min := float64(timestampFrom)
	max := float64(timestampTo)
	members, err := t.store.SortedSetRangeByScore(ctx, key, scheduler.RangeOptions{Min: &min, Max: &max})
	if err != nil {
		return fmt.Errorf("query bands: %w", err)
	}
	if len(members) > 0 {
		// extend the open hole by re-scoring its start member
		t.logger.Info("extending hole",
			zap.String("feed_id", feedID),
			zap.String("from", members[0].Member),
			zap.Int64("to", holeEnd))
		if err := t.store.SortedSetAdd(ctx, key,
			scheduler.ScoredMember{Score: float64(holeEnd), Member: members[0].Member}); err != nil {
			return fmt.Errorf("extend hole: %w", err)
		}
		metrics.ObserveHole("extended")
		return nil
	}
	t.logger.Info("creating hole",
		zap.String("feed_id", feedID),
		zap.Int64("from", timestampFrom),
		zap.Int64("to", holeEnd))
	if err := t.store.SortedSetAdd(ctx, key,
		scheduler.ScoredMember{Score: float64(holeEnd), Member: strconv.FormatInt(timestampFrom, 10)}); err != nil {
		return fmt.Errorf("create hole: %w", err)
	}
	metrics.ObserveHole("created")
	return nil
}

func (t *Timeline) recordTicks(ctx context.Context, report scheduler.FeedReport, nowMilli int64) {
	if len(report.Ticks) == 0 {
		return
	}
	ticks := make([]scheduler.ScoredMember, len(report.Ticks))
	efficiency := make([]scheduler.ScoredMember, len(report.Ticks))
	for i, ms := range report.Ticks {
		sec := math.Round(float64(ms) / 1000)
		ticks[i] = scheduler.ScoredMember{
			Score:  sec,
			Member: strconv.FormatInt(ms, 10),
		}
		// crawl lag: how stale each datum was when it arrived
		efficiency[i] = scheduler.ScoredMember{
			Score:  float64(nowMilli - ms),
			Member: strconv.FormatInt(int64(sec), 10),
		}
	}
	if err := t.store.SortedSetAdd(ctx, keys.FeedTicks(report.ID, report.Source), ticks...); err != nil {
		t.logger.Error("write ticks", zap.Error(err))
	}
	if err := t.store.SortedSetAdd(ctx, keys.FeedEfficiencyTicks(report.ID, report.Source), efficiency...); err != nil {
		t.logger.Error("write efficiency ticks", zap.Error(err))
	}
}
