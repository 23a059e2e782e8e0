package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hidewatch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Platform API metrics
var (
	PlatformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_platform_requests_total",
		Help: "Total number of platform API requests",
	}, []string{"method", "status"})
)

// Event counters (incremented on occurrence)
var (
	// EventsTotal counts contribution events by outcome:
	// dropped, reported, in_progress, claimed
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_events_total",
		Help: "Total number of contribution events processed",
	}, []string{"type", "outcome"})

	ReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hidewatch_reports_total",
		Help: "Total number of moderator reports filed against hiding accounts",
	})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_snapshots_total",
		Help: "Total number of snapshot collections",
	}, []string{"status"})

	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_job_runs_total",
		Help: "Total number of scheduled job runs",
	}, []string{"job", "status"})

	PublishedEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_published_entries_total",
		Help: "Total number of bucket entries handled by the publisher",
	}, []string{"status"})

	VerdictsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_verdicts_applied_total",
		Help: "Total number of ingested verdicts written to the author cache",
	}, []string{"verdict"})

	ModeratorActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hidewatch_moderator_actions_total",
		Help: "Total number of moderator menu and form actions",
	}, []string{"action", "status"})
)

// Gauges updated periodically by the collector
var (
	BucketEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hidewatch_bucket_entries",
		Help: "Number of snapshots in today's bucket",
	})

	ScheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hidewatch_scheduled_jobs",
		Help: "Number of jobs registered with the scheduler",
	})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	switch segments[0] {
	case "mod":
		if len(segments) == 3 {
			switch segments[1] {
			case "forms":
				if knownForms[segments[2]] {
					return path
				}
				return "/mod/forms/:name"
			case "actions":
				if knownActions[segments[2]] {
					return path
				}
				return "/mod/actions/:name"
			}
		}
	}

	return path
}

var (
	knownForms   = map[string]bool{"evaluate": true, "clear": true, "goto": true}
	knownActions = map[string]bool{"postNow": true, "findNow": true}
)

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	// Split on /
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
