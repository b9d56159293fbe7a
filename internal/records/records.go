// Package records holds the typed rows a record store returns.
package records

import (
	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/fields"
)

// RawRecordRow is one raw record as listed for an account.
type RawRecordRow struct {
	ID          int64
	AccountName string
	AccountType string
	ContactID   *int64
	LookupKey   string
	PhotoID     *int64
	DisplayName string
	Deleted     bool
}

// Account returns the owning account of r.
func (r RawRecordRow) Account() accounts.Ref {
	return accounts.Ref{Name: r.AccountName, Type: r.AccountType}
}

// FieldRow is one field record.
type FieldRow struct {
	ID          int64
	RawRecordID int64
	Value       fields.Value
}

// GroupByRawRecord indexes rows by raw record id, keeping row order.
func GroupByRawRecord(rows []FieldRow) map[int64][]fields.Value {
	out := make(map[int64][]fields.Value)
	for _, r := range rows {
		out[r.RawRecordID] = append(out[r.RawRecordID], r.Value)
	}
	return out
}
