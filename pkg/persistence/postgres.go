package persistence

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
)

// EventKind is the session lifecycle transition being recorded.
type EventKind string

const (
	EventRegistered  EventKind = "registered"
	EventRekeyed     EventKind = "rekeyed"
	EventInvalidated EventKind = "invalidated"
	EventExpired     EventKind = "expired"
)

// AuditLog appends one row per session lifecycle transition to Postgres.
// It is an observability convenience: its absence never blocks protocol
// operation, and writes are best-effort, logged on failure, never retried
// inline.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog connects to dsn, initializes the events table if needed, and
// returns a ready AuditLog.
func NewAuditLog(dsn string) (*AuditLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persistence: ping postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	al := &AuditLog{db: db}
	if err := al.initSchema(); err != nil {
		return nil, fmt.Errorf("persistence: init audit schema: %w", err)
	}
	return al, nil
}

func (a *AuditLog) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS enigmaiot_events (
		id         BIGSERIAL PRIMARY KEY,
		mac        VARCHAR(12) NOT NULL,
		node_name  VARCHAR(32) NOT NULL DEFAULT '',
		kind       VARCHAR(16) NOT NULL,
		reason     SMALLINT NOT NULL DEFAULT 0,
		occurred_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_enigmaiot_events_mac ON enigmaiot_events(mac);
	CREATE INDEX IF NOT EXISTS idx_enigmaiot_events_occurred_at ON enigmaiot_events(occurred_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Record appends one lifecycle event. Failures are returned for the caller
// to log; callers must never block protocol processing waiting on this.
func (a *AuditLog) Record(mac nodetable.MAC, name string, kind EventKind, reason byte, occurredAt time.Time) error {
	const query = `
		INSERT INTO enigmaiot_events (mac, node_name, kind, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := a.db.Exec(query, mac.String(), name, string(kind), reason, occurredAt)
	return err
}

// RecentEvents returns the most recent events for mac, newest first, for
// operator diagnostics.
func (a *AuditLog) RecentEvents(mac nodetable.MAC, limit int) ([]Event, error) {
	const query = `
		SELECT node_name, kind, reason, occurred_at
		FROM enigmaiot_events
		WHERE mac = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := a.db.Query(query, mac.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		e.MAC = mac
		var kind string
		if err := rows.Scan(&e.Name, &kind, &e.Reason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("persistence: scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Event is one row read back from the audit log.
type Event struct {
	MAC        nodetable.MAC
	Name       string
	Kind       EventKind
	Reason     byte
	OccurredAt time.Time
}

// Close releases the database connection pool.
func (a *AuditLog) Close() error {
	log.Println("persistence: closing audit log connection")
	return a.db.Close()
}
