package contacts

import (
	"fmt"

	"github.com/Napageneral/rolodex/internal/fields"
)

// HeaderRow carries the contact level columns of a lookup.
type HeaderRow struct {
	ContactID   int64
	LookupKey   string
	DisplayName string
}

// RawRecordColumns are the raw record columns of a SourceRow.
type RawRecordColumns struct {
	ID          int64
	AccountName string
	AccountType string
	ContactID   *int64
	DisplayName string
}

// FieldColumns are the optional field columns of a SourceRow.
type FieldColumns struct {
	ID    int64
	Value fields.Value
}

// SourceRow is one row of the raw record / field / status left outer join.
// A raw record with no fields appears once with Field == nil.
type SourceRow struct {
	Header    HeaderRow
	RawRecord RawRecordColumns
	Field     *FieldColumns
	Status    *PresenceStatus
}

// Aggregate folds rows sorted by raw record id into a Contact. An empty
// input yields the not-found sentinel. A raw record id lower than one
// already seen is a contract violation and returns ErrOutOfOrder.
func Aggregate(rows []SourceRow) (Contact, error) {
	if len(rows) == 0 {
		return NotFound(""), nil
	}

	head := rows[0].Header
	c := Contact{
		ContactID:   head.ContactID,
		LookupKey:   head.LookupKey,
		DisplayName: head.DisplayName,
		State:       StateLoaded,
	}

	var current *RawRecord
	for i, row := range rows {
		id := row.RawRecord.ID
		if current == nil || id != current.ID {
			if current != nil {
				if id < current.ID {
					return Contact{}, &Error{
						Code: ErrorCodeOutOfOrder,
						Op:   "aggregate",
						Err:  fmt.Errorf("row %d: raw record %d after %d", i, id, current.ID),
					}
				}
				c.RawRecords = append(c.RawRecords, *current)
			}
			current = &RawRecord{
				ID:          id,
				AccountName: row.RawRecord.AccountName,
				AccountType: row.RawRecord.AccountType,
				ContactID:   row.RawRecord.ContactID,
				DisplayName: row.RawRecord.DisplayName,
			}
		}

		if row.Field == nil {
			continue
		}
		if !repeatsField(current, row) {
			current.Fields = append(current.Fields, Field{ID: row.Field.ID, Value: row.Field.Value})
		}
		if row.Status != nil {
			if c.Statuses == nil {
				c.Statuses = make(map[int64]PresenceStatus)
			}
			// More than one status row per field: the last one wins.
			c.Statuses[row.Field.ID] = *row.Status
		}
	}
	c.RawRecords = append(c.RawRecords, *current)
	return c, nil
}

// repeatsField reports whether row is an extra status row for the last field
// of rec. The join repeats the field columns once per status row. Field id 0
// means the store did not assign ids, so such rows never repeat.
func repeatsField(rec *RawRecord, row SourceRow) bool {
	n := len(rec.Fields)
	if n == 0 || row.Status == nil || row.Field.ID == 0 {
		return false
	}
	last := rec.Fields[n-1]
	return last.ID == row.Field.ID && sameValue(last.Value, row.Field.Value)
}

func sameValue(a, b fields.Value) bool {
	if a.Kind != b.Kind || a.Text != b.Text || len(a.Attrs) != len(b.Attrs) {
		return false
	}
	for k, v := range a.Attrs {
		if bv, ok := b.Attrs[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
