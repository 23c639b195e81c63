package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lanewise/ingest/dbopen"
	_ "modernc.org/sqlite"
)

func newLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(dbopen.OpenMemory(t), 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog_Sync(t *testing.T) {
	// WHAT: A synchronous log is immediately queryable.
	// WHY: Batch-level entries must survive even an abrupt exit.
	l := newLogger(t)
	ctx := context.Background()

	err := l.Log(ctx, &Entry{
		Tenant:    "acme",
		Persona:   "ops",
		Operation: OpBatchIngest,
		Subject:   "batch_1",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, Filter{Tenant: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Operation != OpBatchIngest || e.Status != "success" {
		t.Errorf("entry = %+v", e)
	}
	if e.EntryID == "" || e.Timestamp.IsZero() {
		t.Errorf("defaults not filled: %+v", e)
	}
}

func TestLogAsync_FlushedOnClose(t *testing.T) {
	// WHAT: Async entries are persisted by Close at the latest.
	// WHY: The drain loop must not lose buffered entries on shutdown.
	db := dbopen.OpenMemory(t)
	l, err := NewLogger(db, 16)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		l.LogAsync(&Entry{Tenant: "acme", Operation: OpFileProcess})
	}
	l.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestRecord(t *testing.T) {
	// WHAT: Record marshals params and classifies the outcome.
	// WHY: Callers hand over raw operation state, not formatted entries.
	l := newLogger(t)

	e := l.Record("acme", "ops", OpBatchIngest, "batch_1",
		map[string]int{"files": 3}, nil, 250*time.Millisecond)
	if e.Status != "success" || e.DurationMs != 250 {
		t.Errorf("entry = %+v", e)
	}
	if e.Parameters != `{"files":3}` {
		t.Errorf("parameters = %q", e.Parameters)
	}

	e = l.Record("acme", "ops", OpBatchIngest, "batch_2",
		nil, errors.New("boom"), 0)
	if e.Status != "error" || e.ErrorMessage != "boom" {
		t.Errorf("entry = %+v", e)
	}
}

func TestQuery_Filters(t *testing.T) {
	// WHAT: Tenant, operation, and status filters compose.
	// WHY: The trail is only useful if failures can be isolated.
	l := newLogger(t)
	ctx := context.Background()

	l.Log(ctx, &Entry{Tenant: "acme", Operation: OpBatchIngest, Status: "success"})
	l.Log(ctx, &Entry{Tenant: "acme", Operation: OpBatchIngest, Status: "error"})
	l.Log(ctx, &Entry{Tenant: "globex", Operation: OpVisionEscalate, Status: "success"})

	entries, err := l.Query(ctx, Filter{Tenant: "acme", Status: "error"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "error" {
		t.Errorf("entries = %+v, want one acme error", entries)
	}

	entries, _ = l.Query(ctx, Filter{Operation: OpVisionEscalate})
	if len(entries) != 1 || entries[0].Tenant != "globex" {
		t.Errorf("entries = %+v, want globex escalation", entries)
	}
}

func TestQuery_Limit(t *testing.T) {
	// WHAT: Limit caps results, newest first.
	// WHY: The trail grows unbounded; queries must not.
	l := newLogger(t)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 10; i++ {
		l.Log(ctx, &Entry{
			Tenant:    "acme",
			Operation: OpFileProcess,
			Subject:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	entries, err := l.Query(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Subject != "j" {
		t.Errorf("first = %q, want newest", entries[0].Subject)
	}
}
