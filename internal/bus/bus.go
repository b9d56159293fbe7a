package bus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types written by the engine.
const (
	TypeDupesFound   = "dupes.found"
	TypeMergeApplied = "merge.applied"
)

type Event struct {
	Seq       int64   `json:"seq"`
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Account   *string `json:"account,omitempty"`
	Subject   *string `json:"subject,omitempty"`
	CreatedAt int64   `json:"created_at"`
	Payload   *string `json:"payload_json,omitempty"`
}

// DupesFound is the payload of a dupes.found event.
type DupesFound struct {
	Groups          int     `json:"groups"`
	Members         []int64 `json:"members"`
	BucketsSkipped  int     `json:"buckets_skipped"`
	AccountsScanned int     `json:"accounts_scanned"`
	Cancelled       bool    `json:"cancelled,omitempty"`
}

// MergeApplied is the payload of a merge.applied event.
type MergeApplied struct {
	Target        int64   `json:"target"`
	Donors        []int64 `json:"donors"`
	Ops           int     `json:"ops"`
	SkippedDonors []int64 `json:"skipped_donors,omitempty"`
	DonorsDeleted bool    `json:"donors_deleted,omitempty"`
}

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			account TEXT,
			subject TEXT,
			created_at INTEGER NOT NULL,
			payload_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure engine_events table: %w", err)
	}
	return nil
}

// Emit appends an event. account and subject are optional; subject is
// usually a plan id or raw record id.
func Emit(db *sql.DB, typ string, account string, subject string, payload any) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}
	if err := ensureTable(db); err != nil {
		return err
	}
	now := time.Now().Unix()
	id := uuid.New().String()

	var accountVal any
	if account != "" {
		accountVal = account
	}
	var subjectVal any
	if subject != "" {
		subjectVal = subject
	}
	var payloadVal any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadVal = string(b)
	}

	_, err := db.Exec(`
		INSERT INTO engine_events (id, type, account, subject, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, typ, accountVal, subjectVal, now, payloadVal)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func List(db *sql.DB, afterSeq int64, limit int) ([]Event, error) {
	if err := ensureTable(db); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT seq, id, type, account, subject, created_at, payload_json
		FROM engine_events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var account sql.NullString
		var subject sql.NullString
		var payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &account, &subject, &e.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if account.Valid {
			e.Account = &account.String
		}
		if subject.Valid {
			e.Subject = &subject.String
		}
		if payload.Valid {
			e.Payload = &payload.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating events: %w", err)
	}
	return out, nil
}

// Decode unmarshals the payload of e into v.
func (e Event) Decode(v any) error {
	if e.Payload == nil {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal([]byte(*e.Payload), v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
