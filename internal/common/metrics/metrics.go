// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	RecommendationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_recommendations_generated_total",
			Help: "Recommendations inserted by scoring passes",
		},
		[]string{"lead_type"},
	)

	GenerationPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_generation_passes_total",
			Help: "Scoring passes by outcome",
		},
		[]string{"outcome"},
	)

	CandidateScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_candidate_score",
			Help:    "Match score of every evaluated candidate",
			Buckets: prometheus.LinearBuckets(50, 5, 11),
		},
		[]string{"lead_type"},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_recommendation_status_changes_total",
			Help: "Recommendation status updates by action",
		},
		[]string{"action"},
	)

	RecommendationsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_recommendations_swept_total",
			Help: "Recommendations expired or purged by the sweep",
		},
		[]string{"kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_notifications_total",
			Help: "Broker notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
