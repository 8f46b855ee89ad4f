// Package ledger provides an append-only audit history of what plexhue did
// to the lights. Nothing in it is read back to restore runtime state.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventGroupResolved  EventType = "group_resolved"
	EventSessionChanged EventType = "session_changed"
	EventCommandApplied EventType = "command_applied"
	EventCommandFailed  EventType = "command_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64
	EventType      EventType
	Timestamp      time.Time
	Payload        map[string]any
	IdempotencyKey string
}

// Ledger provides append-only event logging.
// A nil *Ledger is valid and records nothing.
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, idempotencyKey string, payload map[string]any) error {
	if l == nil {
		return nil
	}

	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().Unix()

	_, err = l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, payload, idempotency_key) VALUES (?, ?, ?, ?)`,
		string(eventType), now, string(payloadJSON), idempotencyKey,
	)
	return err
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	if l == nil {
		return nil, nil
	}

	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, idempotency_key
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByKey returns all entries sharing an idempotency key, oldest first
func (l *Ledger) GetByKey(idempotencyKey string) ([]*Entry, error) {
	if l == nil {
		return nil, nil
	}

	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload, idempotency_key
		FROM event_ledger
		WHERE idempotency_key = ?
		ORDER BY id ASC
	`, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	if l == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var idempotencyKey sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &payloadStr, &idempotencyKey,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if idempotencyKey.Valid {
			entry.IdempotencyKey = idempotencyKey.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
