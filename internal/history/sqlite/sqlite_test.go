package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/launchr/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	rec := history.Record{
		Name:      "streamlit",
		PID:       12345,
		StartedAt: time.Now().Add(-time.Minute).UTC(),
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	rec.StoppedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	rec.ExitCode = sql.NullInt64{Int64: 1, Valid: true}
	if err := sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	for _, tc := range []struct {
		typ  history.EventType
		want int
	}{{history.EventStart, 1}, {history.EventExit, 1}, {history.EventStartFailed, 0}} {
		n, err := sink.Count(ctx, "streamlit", tc.typ)
		if err != nil {
			t.Fatalf("count %s: %v", tc.typ, err)
		}
		if n != tc.want {
			t.Fatalf("expected %d %s events, got %d", tc.want, tc.typ, n)
		}
	}
}

func TestSQLiteSink_InMemoryStartFailed(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	evt := history.Event{
		Type:       history.EventStartFailed,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Name:  "streamlit",
			Error: sql.NullString{String: "exec: \"streamlit\": executable file not found in $PATH", Valid: true},
		},
	}
	if err := sink.Send(ctx, evt); err != nil {
		t.Fatalf("send: %v", err)
	}
	n, err := sink.Count(ctx, "streamlit", history.EventStartFailed)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 start_failed event, got %d (%v)", n, err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
