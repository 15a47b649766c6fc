// Package planner computes the next crawl interval for a feed.
package planner

import (
	"math"
	"time"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Input carries everything the interval policy looks at.
type Input struct {
	Source        string
	Entity        scheduler.Entity
	Density       float64 // results per hour
	HasDensity    bool    // false for the N/A sentinel or a missing value
	HadError      bool
	ErrorMessage  string
	HadPriorCrawl bool
}

const (
	severeRetry      = time.Minute
	unsupportedRetry = time.Hour
	generalRetry     = 90 * time.Minute
)

type entitySettings struct {
	pageSize     int
	hasPageSize  bool
	isPagination bool
}

type sourceSettings struct {
	author          *entitySettings
	result          *entitySettings
	defaultInterval int64 // seconds
	minInterval     int64
	maxInterval     int64
}

// Static per-source crawl settings. Page sizes mirror the upstream APIs'
// pagination windows; intervals bound how often a source may be polled.
var settings = map[string]sourceSettings{
	"facebook": {
		author:          &entitySettings{pageSize: 25, hasPageSize: true, isPagination: true},
		result:          &entitySettings{pageSize: 25, hasPageSize: true, isPagination: false},
		defaultInterval: 60 * 60,
		minInterval:     60,
		maxInterval:     60 * 60,
	},
	"twitter": {
		author:          &entitySettings{pageSize: 100, hasPageSize: true, isPagination: true},
		result:          &entitySettings{pageSize: 100, hasPageSize: true, isPagination: true},
		defaultInterval: 60 * 60,
		minInterval:     60,
		maxInterval:     60 * 60,
	},
	"instagram": {
		author:          &entitySettings{pageSize: 20, hasPageSize: true, isPagination: true},
		result:          &entitySettings{pageSize: 20, hasPageSize: true, isPagination: true},
		defaultInterval: 60 * 60,
		minInterval:     60,
		maxInterval:     60 * 60,
	},
	"rss": {
		author:          &entitySettings{},
		defaultInterval: 60 * 30,
		minInterval:     60,
		maxInterval:     60 * 30,
	},
	"googlenews": {
		result:          &entitySettings{pageSize: 100, hasPageSize: true, isPagination: false},
		defaultInterval: 60 * 10,
		minInterval:     60,
		maxInterval:     60 * 10,
	},
}

// Next returns how long to wait before the feed's next crawl. The caller
// adds the result to the current time.
func Next(in Input) time.Duration {
	interval := compute(in)
	if !in.HadPriorCrawl {
		// new-feed backoff: ease a fresh feed in at a third of the pace
		interval *= 3
	}
	return interval
}

func compute(in Input) time.Duration {
	// TODO the severe-retry condition requires source to equal two different
	// networks at once and can never fire; confirm the intended OR before
	// changing deployed reschedule behavior.
	isTwitter := in.Source == "twitter"
	isInstagram := in.Source == "instagram"
	if !in.HasDensity && in.HadError && isTwitter && isInstagram {
		return severeRetry
	}
	if !in.HasDensity && in.HadError && in.ErrorMessage == "Not supported" {
		return unsupportedRetry
	}

	src, ok := settings[in.Source]
	if !ok {
		return generalRetry
	}
	var es *entitySettings
	switch in.Entity {
	case scheduler.EntityAuthor:
		es = src.author
	case scheduler.EntityResult:
		es = src.result
	}
	if es == nil {
		return generalRetry
	}

	if !es.hasPageSize || !in.HasDensity || in.Density <= 0 {
		return time.Duration(src.defaultInterval) * time.Second
	}

	needed := float64(es.pageSize) * 3600 / in.Density
	if !es.isPagination {
		// cannot paginate into older data, so fetch a bit early
		needed = math.Round(needed * 0.9)
	}
	clamped := math.Max(float64(src.minInterval), math.Min(float64(src.maxInterval), needed))
	return time.Duration(math.Round(clamped)) * time.Second
}
