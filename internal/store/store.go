// Package store is a SQLite backed record store for the contact engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/calllog"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/records"
)

// Store answers the engine's queries from a SQLite database.
type Store struct {
	db *sql.DB
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// QueryContactHeader resolves a numeric contact id or a lookup key.
func (s *Store) QueryContactHeader(ctx context.Context, lookup string) (contacts.HeaderRow, bool, error) {
	var h contacts.HeaderRow
	query := `SELECT id, lookup_key, display_name FROM contacts WHERE lookup_key = ?`
	var arg any = lookup
	if id, err := strconv.ParseInt(lookup, 10, 64); err == nil {
		query = `SELECT id, lookup_key, display_name FROM contacts WHERE id = ?`
		arg = id
	}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&h.ContactID, &h.LookupKey, &h.DisplayName)
	if err == sql.ErrNoRows {
		return contacts.HeaderRow{}, false, nil
	}
	if err != nil {
		return contacts.HeaderRow{}, false, fmt.Errorf("failed to query contact %q: %w", lookup, err)
	}
	return h, true, nil
}

// QueryContactRows returns the raw record / field / presence join of a
// contact, sorted by raw record, field and presence id.
func (s *Store) QueryContactRows(ctx context.Context, contactID int64) ([]contacts.SourceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			rr.id, rr.account_name, rr.account_type, rr.contact_id, rr.display_name,
			f.id, f.kind, f.text, f.attrs_json,
			p.id, p.presence, p.status, p.status_ts, p.label
		FROM raw_records rr
		LEFT JOIN fields f ON f.raw_record_id = rr.id
		LEFT JOIN presence p ON p.field_id = f.id
		WHERE rr.contact_id = ? AND rr.deleted = 0
		ORDER BY rr.id, f.id, p.id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact rows: %w", err)
	}
	defer rows.Close()

	var out []contacts.SourceRow
	for rows.Next() {
		var r contacts.SourceRow
		var cid sql.NullInt64
		var fieldID sql.NullInt64
		var kind, text, attrs sql.NullString
		var presenceID sql.NullInt64
		var presence sql.NullInt64
		var status, label sql.NullString
		var statusTS sql.NullInt64
		if err := rows.Scan(
			&r.RawRecord.ID, &r.RawRecord.AccountName, &r.RawRecord.AccountType, &cid, &r.RawRecord.DisplayName,
			&fieldID, &kind, &text, &attrs,
			&presenceID, &presence, &status, &statusTS, &label,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		if cid.Valid {
			v := cid.Int64
			r.RawRecord.ContactID = &v
		}
		if fieldID.Valid {
			value, err := decodeValue(kind.String, text.String, attrs)
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", fieldID.Int64, err)
			}
			r.Field = &contacts.FieldColumns{ID: fieldID.Int64, Value: value}
		}
		if presenceID.Valid {
			st := contacts.PresenceStatus{
				Presence: int(presence.Int64),
				Status:   status.String,
				Label:    label.String,
			}
			if statusTS.Valid {
				st.Timestamp = time.Unix(statusTS.Int64, 0).UTC()
			}
			r.Status = &st
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryGroups returns the groups defined by the given accounts.
func (s *Store) QueryGroups(ctx context.Context, refs []accounts.Ref) ([]contacts.GroupMeta, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	var conds []string
	var args []any
	for _, ref := range refs {
		conds = append(conds, "(account_name = ? AND account_type = ?)")
		args = append(args, ref.Name, ref.Type)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_name, account_type, title, system_id
		FROM contact_groups
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []contacts.GroupMeta
	for rows.Next() {
		var g contacts.GroupMeta
		var systemID sql.NullString
		if err := rows.Scan(&g.ID, &g.AccountName, &g.AccountType, &g.Title, &systemID); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.SystemID = systemID.String
		out = append(out, g)
	}
	return out, rows.Err()
}

// QueryStreamItems returns stream items of the raw records, newest first.
func (s *Store) QueryStreamItems(ctx context.Context, rawRecordIDs []int64) ([]contacts.StreamItem, error) {
	if len(rawRecordIDs) == 0 {
		return nil, nil
	}
	marks, args := inClause(rawRecordIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raw_record_id, text, timestamp
		FROM stream_items
		WHERE raw_record_id IN (`+marks+`)
		ORDER BY timestamp DESC, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream items: %w", err)
	}
	defer rows.Close()

	var out []contacts.StreamItem
	for rows.Next() {
		var it contacts.StreamItem
		var ts int64
		if err := rows.Scan(&it.ID, &it.RawRecordID, &it.Text, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan stream item: %w", err)
		}
		it.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

const rawRecordColumns = `
	rr.id, rr.account_name, rr.account_type, rr.contact_id, COALESCE(c.lookup_key, ''),
	rr.photo_id, rr.display_name, rr.deleted
`

func scanRawRecord(sc interface{ Scan(...any) error }) (records.RawRecordRow, error) {
	var r records.RawRecordRow
	var cid, photo sql.NullInt64
	var deleted int
	if err := sc.Scan(&r.ID, &r.AccountName, &r.AccountType, &cid, &r.LookupKey, &photo, &r.DisplayName, &deleted); err != nil {
		return records.RawRecordRow{}, err
	}
	if cid.Valid {
		v := cid.Int64
		r.ContactID = &v
	}
	if photo.Valid {
		v := photo.Int64
		r.PhotoID = &v
	}
	r.Deleted = deleted != 0
	return r, nil
}

// QueryRawRecords lists the non-deleted raw records of an account by id.
func (s *Store) QueryRawRecords(ctx context.Context, account accounts.Ref) ([]records.RawRecordRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rawRecordColumns+`
		FROM raw_records rr
		LEFT JOIN contacts c ON c.id = rr.contact_id
		WHERE rr.account_name = ? AND rr.account_type = ? AND rr.deleted = 0
		ORDER BY rr.id
	`, account.Name, account.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer rows.Close()

	var out []records.RawRecordRow
	for rows.Next() {
		r, err := scanRawRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryRawRecord returns one raw record, deleted or not.
func (s *Store) QueryRawRecord(ctx context.Context, id int64) (records.RawRecordRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+rawRecordColumns+`
		FROM raw_records rr
		LEFT JOIN contacts c ON c.id = rr.contact_id
		WHERE rr.id = ?
	`, id)
	r, err := scanRawRecord(row)
	if err == sql.ErrNoRows {
		return records.RawRecordRow{}, false, nil
	}
	if err != nil {
		return records.RawRecordRow{}, false, fmt.Errorf("failed to query raw record %d: %w", id, err)
	}
	return r, true, nil
}

// QueryFields returns the fields of the raw records ordered by raw record
// id, then field id.
func (s *Store) QueryFields(ctx context.Context, rawRecordIDs []int64) ([]records.FieldRow, error) {
	if len(rawRecordIDs) == 0 {
		return nil, nil
	}
	marks, args := inClause(rawRecordIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raw_record_id, kind, text, attrs_json
		FROM fields
		WHERE raw_record_id IN (`+marks+`)
		ORDER BY raw_record_id, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var out []records.FieldRow
	for rows.Next() {
		var f records.FieldRow
		var kind, text string
		var attrs sql.NullString
		if err := rows.Scan(&f.ID, &f.RawRecordID, &kind, &text, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		f.Value, err = decodeValue(kind, text, attrs)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAccounts returns every account owning a non-deleted raw record.
func (s *Store) ListAccounts(ctx context.Context) ([]accounts.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT account_name, account_type
		FROM raw_records
		WHERE deleted = 0
		ORDER BY account_type, account_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []accounts.Ref
	for rows.Next() {
		var ref accounts.Ref
		if err := rows.Scan(&ref.Name, &ref.Type); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// QueryCallLog returns the newest call log rows first. limit <= 0 means all.
func (s *Store) QueryCallLog(ctx context.Context, limit int) ([]calllog.Row, error) {
	query := `
		SELECT number, call_type, account_component, account_id
		FROM call_log
		ORDER BY date DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log: %w", err)
	}
	defer rows.Close()

	var out []calllog.Row
	for rows.Next() {
		var r calllog.Row
		var typ int
		if err := rows.Scan(&r.Number, &typ, &r.AccountComponent, &r.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		r.Type = calllog.CallType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

func decodeValue(kind, text string, attrs sql.NullString) (fields.Value, error) {
	v := fields.Value{Kind: fields.Other(kind), Text: text}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &v.Attrs); err != nil {
			return fields.Value{}, fmt.Errorf("failed to decode attributes: %w", err)
		}
	}
	return v, nil
}

func encodeAttrs(attrs map[string]string) (any, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(b), nil
}

// Fingerprint summarizes the raw record and field tables. It changes when
// records or fields are added, deleted or flagged, and not otherwise.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	var records, deleted, fieldCount, maxField int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_records),
			(SELECT COALESCE(SUM(deleted), 0) FROM raw_records),
			(SELECT COUNT(*) FROM fields),
			(SELECT COALESCE(MAX(id), 0) FROM fields)
	`).Scan(&records, &deleted, &fieldCount, &maxField)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint store: %w", err)
	}
	return fmt.Sprintf("%d/%d/%d/%d", records, deleted, fieldCount, maxField), nil
}
