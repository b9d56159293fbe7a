package contacts

import (
	"context"
	"errors"
	"strings"
)

// Store is the read side of a record store the loader needs.
type Store interface {
	// QueryContactHeader resolves a lookup key or numeric contact id.
	QueryContactHeader(ctx context.Context, lookup string) (HeaderRow, bool, error)
	// QueryContactRows returns the join rows of a contact sorted by raw
	// record id, then field id.
	QueryContactRows(ctx context.Context, contactID int64) ([]SourceRow, error)
}

// Loader builds Contacts from a Store.
type Loader struct {
	Store Store
	Logf  func(format string, args ...any)
}

// NewLoader returns a loader over store.
func NewLoader(store Store, logf func(format string, args ...any)) *Loader {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Loader{Store: store, Logf: logf}
}

// Load resolves lookup and aggregates the contact's rows.
//
// Store failures do not surface as errors: the returned Contact is in
// StateError and carries the cause. The error return is reserved for
// contract violations such as ErrOutOfOrder.
func (l *Loader) Load(ctx context.Context, lookup string) (Contact, error) {
	lookup = strings.TrimSpace(lookup)
	head, ok, err := l.Store.QueryContactHeader(ctx, lookup)
	if err != nil {
		l.Logf("load %s: header query failed: %v", lookup, err)
		return Failed(lookup, storeError("query header", err)), nil
	}
	if !ok {
		return NotFound(lookup), nil
	}

	rows, err := l.Store.QueryContactRows(ctx, head.ContactID)
	if err != nil {
		l.Logf("load %s: row query failed: %v", lookup, err)
		return Failed(lookup, storeError("query rows", err)), nil
	}
	for i := range rows {
		rows[i].Header = head
	}

	c, err := Aggregate(rows)
	if err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			return Contact{}, err
		}
		return Failed(lookup, err), nil
	}
	c.RequestedID = lookup
	return c, nil
}
