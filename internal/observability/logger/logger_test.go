package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/worldpulse/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "voter", "abc")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("missing request_id: %v", fields)
	}
	if fields["actor_type"] != "voter" || fields["actor_id"] != "abc" {
		t.Fatalf("missing actor fields: %v", fields)
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("trace_id must be omitted without a span")
	}
}

func TestStatementShape(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{"SELECT id FROM votes WHERE question_id = ?", "SELECT", "votes"},
		{"INSERT INTO achievements (id) VALUES (?)", "INSERT", "achievements"},
		{"UPDATE questions SET status = 'archived'", "UPDATE", "questions"},
		{"WITH winners AS (SELECT 1) SELECT * FROM winners", "SELECT", "winners"},
		{"", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := statementShape(tc.sql)
		if op != tc.op || table != tc.table {
			t.Fatalf("statementShape(%q) = %s/%s, want %s/%s", tc.sql, op, table, tc.op, tc.table)
		}
	}
}
