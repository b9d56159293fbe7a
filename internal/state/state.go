package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_state (
			component TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (component, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure engine_state table: %w", err)
	}
	return nil
}

func Get(db *sql.DB, component string, key string) (string, bool, error) {
	if err := ensureTable(db); err != nil {
		return "", false, err
	}
	var v string
	err := db.QueryRow(`SELECT value FROM engine_state WHERE component = ? AND key = ?`, component, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get engine state: %w", err)
	}
	return v, true, nil
}

func Set(db *sql.DB, component string, key string, value string) error {
	if err := ensureTable(db); err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO engine_state (component, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(component, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, component, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set engine state: %w", err)
	}
	return nil
}

const scanComponent = "dedupe"

// Scan records the outcome of the last duplicate scan of an account.
type Scan struct {
	At             time.Time `json:"at"`
	Groups         int       `json:"groups"`
	BucketsSkipped int       `json:"buckets_skipped"`
	Cancelled      bool      `json:"cancelled,omitempty"`
}

// SaveScan stores s as the last scan of account.
func SaveScan(db *sql.DB, account string, s Scan) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scan state: %w", err)
	}
	return Set(db, scanComponent, account, string(b))
}

// LastScan returns the last scan of account, if any.
func LastScan(db *sql.DB, account string) (Scan, bool, error) {
	v, ok, err := Get(db, scanComponent, account)
	if err != nil || !ok {
		return Scan{}, ok, err
	}
	var s Scan
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return Scan{}, false, fmt.Errorf("failed to decode scan state for %s: %w", account, err)
	}
	return s, true, nil
}
