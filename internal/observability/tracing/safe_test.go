package tracing

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsIdentity(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("voter_key", "abc"),
		attribute.String("question_id", "q1"),
		attribute.String("net.peer.ip", "10.0.0.1"),
	)
	if len(attrs) != 1 || attrs[0].Key != "question_id" {
		t.Fatalf("expected only question_id to remain, got %v", attrs)
	}
}

func TestSafeErrorTruncatesWrappedDetail(t *testing.T) {
	err := fmt.Errorf("ledger append: %w", errors.New(`duplicate key value violates unique constraint "ux_votes_question_voter"`))
	got := SafeError(err)
	if got.Error() != "ledger append" {
		t.Fatalf("expected truncated message, got %q", got.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
