// Package metrics exposes the pipeline's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts counts individual HTTP attempts against the source site
	FetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toonarr_fetch_attempts_total",
		Help: "HTTP fetch attempts against the source site, including retries.",
	})

	// FetchFailures counts fetches that exhausted their attempt budget
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toonarr_fetch_failures_total",
		Help: "Fetches that failed after exhausting all attempts.",
	})

	// SeriesCreated counts new series rows inserted
	SeriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toonarr_series_created_total",
		Help: "Series rows created in storage.",
	})

	// EpisodesSaved counts episode rows upserted
	EpisodesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toonarr_episodes_saved_total",
		Help: "Episode rows saved to storage.",
	})

	// ScanTicks counts homepage scan ticks that actually ran
	ScanTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toonarr_scan_ticks_total",
		Help: "Homepage scan ticks executed by the poller.",
	})
)
