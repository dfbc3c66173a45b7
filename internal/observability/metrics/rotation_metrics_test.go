package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, JobReasonDeadlineExceeded},
		{"lock", fmt.Errorf("rotate: %w", ErrLockContended), JobReasonLockContended},
		{"db_lock_timeout", &pgconn.PgError{Code: "55P03"}, JobReasonDBLockTimeout},
		{"serialization_failure", &pgconn.PgError{Code: "40001"}, JobReasonSerializationFailure},
		{"unique_violation", gorm.ErrDuplicatedKey, JobReasonUniqueViolation},
		{"unknown", errors.New("boom"), JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRotationOutcomeCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newRotationMetrics(registry, Config{ServiceName: "worldpulse", Environment: "test"})

	m.IncOutcome(RotationOutcomePromotedSubmission)
	m.IncOutcome(RotationOutcomePromotedSubmission)

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(RotationOutcomePromotedSubmission)); got != 2 {
		t.Fatalf("expected 2 promotions, got %v", got)
	}
}

func TestEngineMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newEngineMetrics(registry, Config{Environment: "test"})
	second := newEngineMetrics(registry, Config{Environment: "test"})

	first.IncFanoutFailure("counter")
	second.IncFanoutFailure("counter")

	if got := testutil.ToFloat64(first.fanoutFailures.WithLabelValues("counter")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestActiveSubscriberGaugeCarriesServiceLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newEngineMetrics(registry, Config{ServiceName: "worldpulse-api", Environment: "test"})

	m.AddActiveSubscribers(3)
	m.AddActiveSubscribers(-1)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var gauge *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "worldpulse_tally_subscribers" {
			gauge = family
		}
	}
	if gauge == nil {
		t.Fatal("worldpulse_tally_subscribers not registered")
	}
	if gauge.GetType() != dto.MetricType_GAUGE {
		t.Fatalf("expected gauge, got %v", gauge.GetType())
	}
	metric := gauge.GetMetric()[0]
	if got := metric.GetGauge().GetValue(); got != 2 {
		t.Fatalf("expected 2 active subscribers, got %v", got)
	}
	labels := map[string]string{}
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["service"] != "worldpulse-api" || labels["env"] != "test" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
