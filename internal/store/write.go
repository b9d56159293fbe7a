package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Napageneral/rolodex/internal/calllog"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/merge"
)

// Writer inserts rows inside one transaction.
type Writer struct {
	tx *sql.Tx
}

// Update runs fn in a transaction, committing only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(w *Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Writer{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// InsertContact creates a contact and returns its id.
func (w *Writer) InsertContact(ctx context.Context, lookupKey, displayName string) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO contacts (lookup_key, display_name) VALUES (?, ?)
	`, lookupKey, displayName)
	if err != nil {
		return 0, fmt.Errorf("failed to insert contact %q: %w", lookupKey, err)
	}
	return res.LastInsertId()
}

// RawRecordInput describes a raw record to insert.
type RawRecordInput struct {
	ContactID   *int64
	AccountName string
	AccountType string
	DisplayName string
	PhotoID     *int64
	Deleted     bool
}

// InsertRawRecord creates a raw record and returns its id.
func (w *Writer) InsertRawRecord(ctx context.Context, in RawRecordInput) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO raw_records (contact_id, account_name, account_type, display_name, photo_id, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.ContactID, in.AccountName, in.AccountType, in.DisplayName, in.PhotoID, in.Deleted)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw record: %w", err)
	}
	return res.LastInsertId()
}

// InsertField adds a field to a raw record. A group membership the record
// already has is ignored and reports id 0.
func (w *Writer) InsertField(ctx context.Context, rawRecordID int64, v fields.Value) (int64, error) {
	attrs, err := encodeAttrs(v.Attrs)
	if err != nil {
		return 0, err
	}
	verb := "INSERT"
	if v.Kind == fields.GroupMembership {
		verb = "INSERT OR IGNORE"
	}
	res, err := w.tx.ExecContext(ctx, verb+` INTO fields (raw_record_id, kind, text, attrs_json)
		VALUES (?, ?, ?, ?)
	`, rawRecordID, string(v.Kind), v.Text, attrs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s field: %w", v.Kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}

// InsertPresence records a presence update for a field.
func (w *Writer) InsertPresence(ctx context.Context, fieldID int64, st contacts.PresenceStatus) error {
	var ts any
	if !st.Timestamp.IsZero() {
		ts = st.Timestamp.Unix()
	}
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO presence (field_id, presence, status, status_ts, label)
		VALUES (?, ?, ?, ?, ?)
	`, fieldID, st.Presence, nullString(st.Status), ts, nullString(st.Label))
	if err != nil {
		return fmt.Errorf("failed to insert presence: %w", err)
	}
	return nil
}

// InsertGroup defines a group for an account.
func (w *Writer) InsertGroup(ctx context.Context, g contacts.GroupMeta) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO contact_groups (account_name, account_type, title, system_id)
		VALUES (?, ?, ?, ?)
	`, g.AccountName, g.AccountType, g.Title, nullString(g.SystemID))
	if err != nil {
		return 0, fmt.Errorf("failed to insert group %q: %w", g.Title, err)
	}
	return res.LastInsertId()
}

// InsertStreamItem attaches a stream item to a raw record.
func (w *Writer) InsertStreamItem(ctx context.Context, rawRecordID int64, text string, at time.Time) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO stream_items (raw_record_id, text, timestamp) VALUES (?, ?, ?)
	`, rawRecordID, text, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert stream item: %w", err)
	}
	return nil
}

// InsertCall appends a call log row.
func (w *Writer) InsertCall(ctx context.Context, r calllog.Row, at time.Time) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO call_log (number, call_type, account_component, account_id, date)
		VALUES (?, ?, ?, ?, ?)
	`, r.Number, int(r.Type), r.AccountComponent, r.AccountID, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

// MarkDeleted flags a raw record as deleted.
func (w *Writer) MarkDeleted(ctx context.Context, rawRecordID int64) error {
	if _, err := w.tx.ExecContext(ctx, `UPDATE raw_records SET deleted = 1 WHERE id = ?`, rawRecordID); err != nil {
		return fmt.Errorf("failed to delete raw record %d: %w", rawRecordID, err)
	}
	return nil
}

// ApplyPlan writes every op of p in one transaction. With DeleteDonors the
// donors that were read are marked deleted in the same transaction.
func (s *Store) ApplyPlan(ctx context.Context, p merge.Plan, opts merge.ApplyOptions) error {
	return s.Update(ctx, func(w *Writer) error {
		for i, op := range p.Ops {
			if _, err := w.InsertField(ctx, op.TargetRawRecordID, op.Value); err != nil {
				return fmt.Errorf("%w: op %d: %w", merge.ErrStoreUnavailable, i, err)
			}
		}
		if !opts.DeleteDonors {
			return nil
		}
		skipped := make(map[int64]bool, len(p.SkippedDonors))
		for _, id := range p.SkippedDonors {
			skipped[id] = true
		}
		for _, id := range p.Donors {
			if skipped[id] || id == p.Target {
				continue
			}
			if err := w.MarkDeleted(ctx, id); err != nil {
				return fmt.Errorf("%w: %w", merge.ErrStoreUnavailable, err)
			}
		}
		return nil
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
