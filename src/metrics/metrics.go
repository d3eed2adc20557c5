package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulesClaimed counts schedules taken by this worker's claim batches.
	SchedulesClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportserver_schedules_claimed_total",
		Help: "Number of due schedules claimed by this worker.",
	})

	// RunsFinished counts terminal runs by status (success or failure).
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportserver_runs_finished_total",
		Help: "Number of report runs finished, labeled by terminal status.",
	}, []string{"status"})

	// DeliveriesFailed counts recipients the delivery channel could not reach.
	DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportserver_deliveries_failed_total",
		Help: "Number of recipients report delivery failed for.",
	})

	// PollDuration observes how long each claim-and-execute poll takes.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reportserver_poll_duration_seconds",
		Help:    "Duration of scheduler poll cycles.",
		Buckets: prometheus.DefBuckets,
	})
)
