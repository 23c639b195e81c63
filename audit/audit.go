// Package audit persists an operation-level trail of ingestion activity in
// SQLite: one entry per batch and per escalation, with parameters, outcome,
// and duration. Entries are queued and flushed asynchronously so the
// ingestion path never blocks on the audit database.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lanewise/ingest/dbopen"
	"github.com/lanewise/ingest/idgen"
)

// Operation types recorded in the trail.
const (
	OpBatchIngest     = "batch_ingest"
	OpFileProcess     = "file_process"
	OpVisionEscalate  = "vision_escalate"
	OpManifestUpdate  = "manifest_update"
	OpQualityAnalysis = "quality_analysis"
)

// Entry is a single operation record.
type Entry struct {
	EntryID      string
	Timestamp    time.Time
	Tenant       string
	Persona      string
	Operation    string
	Subject      string // batch or file the operation acted on
	Parameters   string // JSON
	Result       string // JSON
	ErrorMessage string
	DurationMs   int64
	Status       string // "success" or "error"
}

// Filter controls Query results.
type Filter struct {
	Tenant    string
	Operation string
	Status    string
	Since     *time.Time
	Limit     int // default 100
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	tenant        TEXT NOT NULL,
	persona       TEXT NOT NULL DEFAULT '',
	operation     TEXT NOT NULL,
	subject       TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '{}',
	result        TEXT,
	error_message TEXT,
	duration_ms   INTEGER,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_log(tenant, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation, status);
`

// Logger persists entries asynchronously over a buffered channel.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets a custom generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// NewLogger creates an async audit logger over db and ensures the schema.
// Recommended bufferSize: 1000.
func NewLogger(db *sql.DB, bufferSize int, opts ...Option) (*Logger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("audit_", idgen.Default),
		ch:    make(chan *Entry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l, nil
}

// Log inserts an entry synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return l.insert(ctx, e)
}

// LogAsync queues an entry for async persistence. Falls back to a
// synchronous insert when the buffer is full.
func (l *Logger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "operation", e.Operation)
		if err := l.insert(context.Background(), e); err != nil {
			slog.Error("audit sync fallback failed", "error", err)
		}
	}
}

// Record builds an entry from an operation outcome. params is marshalled to
// JSON; a non-nil err marks the entry as an error.
func (l *Logger) Record(tenant, persona, operation, subject string, params any, err error, duration time.Duration) *Entry {
	e := &Entry{
		Tenant:     tenant,
		Persona:    persona,
		Operation:  operation,
		Subject:    subject,
		DurationMs: duration.Milliseconds(),
		Status:     "success",
	}
	if params != nil {
		if b, jerr := json.Marshal(params); jerr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Status = "error"
		e.ErrorMessage = err.Error()
	}
	return e
}

func (l *Logger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		e.Status = "success"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	// The trail shares its database with other writers; retry on BUSY.
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO audit_log
			(entry_id, timestamp, tenant, persona, operation, subject,
			 parameters, result, error_message, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Timestamp.UnixMilli(), e.Tenant, e.Persona, e.Operation,
		e.Subject, e.Parameters, e.Result, e.ErrorMessage, e.DurationMs, e.Status)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	for {
		select {
		case e := <-l.ch:
			if err := l.insert(context.Background(), e); err != nil {
				slog.Error("audit flush failed", "error", err, "entry", e.EntryID)
			}
		case <-l.stop:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case e := <-l.ch:
					if err := l.insert(context.Background(), e); err != nil {
						slog.Error("audit flush failed", "error", err, "entry", e.EntryID)
					}
				default:
					return
				}
			}
		}
	}
}

// Close flushes buffered entries and stops the background writer.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

// Query returns entries matching the filter, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	var where []string
	var args []any
	if f.Tenant != "" {
		where = append(where, "tenant = ?")
		args = append(args, f.Tenant)
	}
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	q := `SELECT entry_id, timestamp, tenant, persona, operation, subject,
		parameters, result, error_message, duration_ms, status FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var result, errMsg sql.NullString
		if err := rows.Scan(&e.EntryID, &ts, &e.Tenant, &e.Persona, &e.Operation,
			&e.Subject, &e.Parameters, &result, &errMsg, &e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Result = result.String
		e.ErrorMessage = errMsg.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
