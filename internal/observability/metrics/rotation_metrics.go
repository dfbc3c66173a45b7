package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonLockContended        = "lock_contended"
	JobReasonUnknown              = "unknown"
)

const (
	RotationOutcomePromotedSubmission = "promoted_submission"
	RotationOutcomeActivatedSeed      = "activated_seed"
	RotationOutcomeEmpty              = "empty"
	RotationOutcomeAlreadyRotated     = "already_rotated"
)

// ErrLockContended marks a job skipped because another process holds its lock.
var ErrLockContended = errors.New("lock_contended")

// RotationMetrics captures rotation job health: whether the daily boundary
// actually produced an active question and how long it took.
type RotationMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	loopLag     prometheus.Observer
}

var (
	rotationMetricsOnce sync.Once
	rotationMetrics     *RotationMetrics
)

// Rotation returns the singleton rotation metrics registry.
func Rotation() *RotationMetrics {
	return RotationWithConfig(Config{})
}

// RotationWithConfig returns the singleton rotation metrics registry using config labels.
func RotationWithConfig(cfg Config) *RotationMetrics {
	rotationMetricsOnce.Do(func() {
		rotationMetrics = newRotationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return rotationMetrics
}

// ResetRotationMetricsForTest resets the rotation metrics singleton for tests.
func ResetRotationMetricsForTest() {
	rotationMetricsOnce = sync.Once{}
	rotationMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "worldpulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func newRotationMetrics(registerer prometheus.Registerer, cfg Config) *RotationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worldpulse_rotation_job_runs_total",
		Help:        "Rotation job runs by name.",
		ConstLabels: labels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "worldpulse_rotation_job_duration_seconds",
		Help:        "Rotation job latency at the daily boundary.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: labels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worldpulse_rotation_job_timeouts_total",
		Help:        "Rotation job timeouts.",
		ConstLabels: labels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worldpulse_rotation_job_errors_total",
		Help:        "Rotation job errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "worldpulse_rotation_outcomes_total",
		Help:        "Completed rotations by what became active.",
		ConstLabels: labels,
	}, []string{"outcome"})
	loopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "worldpulse_rotation_loop_lag_seconds",
		Help:        "Delay between the UTC boundary and the rotation actually starting.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		ConstLabels: labels,
	})

	jobRuns = registerCollector(registerer, jobRuns).(*prometheus.CounterVec)
	jobDuration = registerCollector(registerer, jobDuration).(*prometheus.HistogramVec)
	jobTimeouts = registerCollector(registerer, jobTimeouts).(*prometheus.CounterVec)
	jobErrors = registerCollector(registerer, jobErrors).(*prometheus.CounterVec)
	outcomes = registerCollector(registerer, outcomes).(*prometheus.CounterVec)
	lag := registerCollector(registerer, loopLag).(prometheus.Histogram)

	return &RotationMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobTimeouts: jobTimeouts,
		jobErrors:   jobErrors,
		outcomes:    outcomes,
		loopLag:     lag,
	}
}

// registerCollector registers c, reusing an already registered equal collector.
func registerCollector(registerer prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *RotationMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *RotationMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *RotationMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *RotationMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *RotationMetrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *RotationMetrics) ObserveLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	m.loopLag.Observe(max(duration, 0).Seconds())
}

// ClassifyJobReason maps a job error to a bounded reason label.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case errors.Is(err, ErrLockContended):
		return JobReasonLockContended
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
