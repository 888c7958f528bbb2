package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelviews_commands_total",
		Help: "Slash commands handled, by command and outcome",
	}, []string{"command", "status"})

	AnalysisDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelviews_analysis_duration_seconds",
		Help:    "Duration of a full channel analysis run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	})

	URLsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelviews_urls_extracted_total",
		Help: "Canonical post URLs extracted from source channels",
	})

	EnrichmentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelviews_enrichment_requests_total",
		Help: "Calls to the scraping service, by outcome",
	}, []string{"status"})

	EnrichmentRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelviews_enrichment_records_total",
		Help: "Enrichment records received, split into valid and errored",
	}, []string{"kind"})

	EnrichmentDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelviews_enrichment_duration_seconds",
		Help:    "Duration of one scraping service call",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	DiscordRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelviews_discord_requests_total",
		Help: "Discord REST requests, by method and status class",
	}, []string{"method", "status"})

	LedgerTotalViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelviews_ledger_total_views",
		Help: "Grand total of views across the ledger after the last recompute",
	})

	DripQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelviews_drip_queue_size",
		Help: "Videos waiting in the drip update queue",
	})

	DripUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelviews_drip_updates_total",
		Help: "Drip ticks, by outcome",
	}, []string{"status"})
)
