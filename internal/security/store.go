// Package security persists security-relevant events from the plugin
// pipeline: integrity failures, path violations, timeouts, and successful
// runs. Events are append-only and survive process restarts so operators
// can reconstruct what a plugin did and when.
package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event types recorded by the pipeline.
const (
	EventPluginRun        = "plugin.run"
	EventPluginRegistered = "plugin.registered"
	EventIntegrityFailure = "integrity.failure"
	EventPathViolation    = "path.violation"
	EventTimeout          = "sandbox.timeout"
	EventOutputTruncated  = "sandbox.output_truncated"
)

// Event is one security-relevant occurrence.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id,omitempty"`
	Plugin    string         `json:"plugin,omitempty"`
	Path      string         `json:"path,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is a SQLite-backed audit log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the audit database at path. The parent
// directory is created when missing so a fresh project root works out of
// the box.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "security.store"),
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			run_id TEXT,
			plugin TEXT,
			path TEXT,
			detail TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create security_events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_type ON security_events(event_type)",
		"CREATE INDEX IF NOT EXISTS idx_events_run ON security_events(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_created ON security_events(created_at)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Record persists one event. Missing IDs and timestamps are filled in.
// Recording failures are logged, not returned, so audit trouble never
// blocks the pipeline itself.
func (s *Store) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			s.logger.Warn("failed to encode event metadata", "event_type", event.Type, "error", err)
			metadata = nil
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, severity, run_id, plugin, path, detail, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Type, event.Severity, event.RunID, event.Plugin, event.Path, event.Detail, string(metadata), event.CreatedAt)
	if err != nil {
		s.logger.Error("failed to record security event", "event_type", event.Type, "error", err)
	}
}

// QueryFilter narrows the events returned by Recent.
type QueryFilter struct {
	Type     string
	Severity string
	Plugin   string
	RunID    string
}

// Recent returns up to limit events, newest first, matching the filter.
func (s *Store) Recent(ctx context.Context, filter QueryFilter, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT id, event_type, severity, run_id, plugin, path, detail, metadata, created_at FROM security_events WHERE 1=1"
	args := make([]any, 0, 5)
	if filter.Type != "" {
		query += " AND event_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if filter.Plugin != "" {
		query += " AND plugin = ?"
		args = append(args, filter.Plugin)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var metadata string
		if err := rows.Scan(&event.ID, &event.Type, &event.Severity, &event.RunID,
			&event.Plugin, &event.Path, &event.Detail, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
				s.logger.Warn("failed to decode event metadata", "event_id", event.ID, "error", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return events, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
