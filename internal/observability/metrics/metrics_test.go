package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "accepted"),
		attribute.String("voter_key", "abc"),
		attribute.String("question_id", "123"),
		attribute.String("country_code", "US"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "voter_key" || attr.Key == "question_id" {
			t.Fatalf("unexpected label %s retained", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordVote(context.Background(), "accepted", "US")
	m.RecordSubmission(context.Background(), "accepted")

	built, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	built.RecordVote(context.Background(), "conflict", "fr")
}
