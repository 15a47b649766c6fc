// Package metrics exposes Prometheus collectors for the scheduler service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	schedulerTicksTotal   *prometheus.CounterVec
	searchesTotal         *prometheus.CounterVec
	feedReportsTotal      *prometheus.CounterVec
	holesTotal            *prometheus.CounterVec
	feedsRescheduledTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		schedulerTicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_ticks_total",
				Help: "Scheduler ticks, labeled by outcome (empty, processed, self_heal).",
			},
			[]string{"outcome"},
		)
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_searches_total",
				Help: "Controller search calls, labeled by source and status.",
			},
			[]string{"source", "status"},
		)
		feedReportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_feed_reports_total",
				Help: "Feed-update callback reports, labeled by status.",
			},
			[]string{"status"},
		)
		holesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_holes_total",
				Help: "Error-band operations, labeled by op (created, extended, closed).",
			},
			[]string{"op"},
		)
		feedsRescheduledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_feeds_rescheduled_total",
				Help: "Feeds whose due score was upserted.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick counts one scheduler tick by outcome.
func ObserveTick(outcome string) {
	if schedulerTicksTotal != nil {
		schedulerTicksTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveSearch counts one controller search call.
func ObserveSearch(source string, ok bool) {
	if searchesTotal == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	searchesTotal.WithLabelValues(source, status).Inc()
}

// ObserveReport counts one feed-update report.
func ObserveReport(hadError bool) {
	if feedReportsTotal == nil {
		return
	}
	status := "ok"
	if hadError {
		status = "error"
	}
	feedReportsTotal.WithLabelValues(status).Inc()
}

// ObserveHole counts one band operation.
func ObserveHole(op string) {
	if holesTotal != nil {
		holesTotal.WithLabelValues(op).Inc()
	}
}

// ObserveReschedule counts one due-score upsert.
func ObserveReschedule() {
	if feedsRescheduledTotal != nil {
		feedsRescheduledTotal.Inc()
	}
}
