package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/equiv"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/records"
)

// ErrStoreUnavailable wraps record store failures during a scan.
var ErrStoreUnavailable = errors.New("dedupe: store unavailable")

// Store is the read side of a record store the grouper needs.
type Store interface {
	QueryRawRecords(ctx context.Context, account accounts.Ref) ([]records.RawRecordRow, error)
	QueryFields(ctx context.Context, rawRecordIDs []int64) ([]records.FieldRow, error)
}

// Summary describes one member of a duplicate group.
type Summary struct {
	RawRecordID int64    `json:"raw_record_id"`
	ContactID   *int64   `json:"contact_id,omitempty"`
	LookupKey   string   `json:"lookup_key,omitempty"`
	PhotoID     *int64   `json:"photo_id,omitempty"`
	DisplayName string   `json:"display_name"`
	Phones      []string `json:"phones"`
	Emails      []string `json:"emails"`
}

// Group is a set of raw records of one account sharing a normalized
// display name. Members has at least two entries.
type Group struct {
	AccountName string    `json:"account_name"`
	AccountType string    `json:"account_type"`
	Members     []Summary `json:"members"`
}

// MemberIDs returns the raw record ids of g in member order.
func (g Group) MemberIDs() []int64 {
	out := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, m.RawRecordID)
	}
	return out
}

// Result is the outcome of a scan. When Cancelled is set, Groups holds what
// was found before the scan stopped and the remaining accounts were not
// visited.
type Result struct {
	Groups          []Group `json:"groups"`
	Cancelled       bool    `json:"cancelled"`
	AccountsScanned int     `json:"accounts_scanned"`
	BucketsSkipped  int     `json:"buckets_skipped"`
}

// Grouper finds duplicate raw records within accounts.
type Grouper struct {
	Store    Store
	Accounts *accounts.Registry
	Logf     func(format string, args ...any)
}

// NewGrouper returns a grouper over store.
func NewGrouper(store Store, reg *accounts.Registry, logf func(format string, args ...any)) *Grouper {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Grouper{Store: store, Accounts: reg, Logf: logf}
}

// NormalizeName returns the bucket key for a display name. Every empty name
// shares one bucket.
func NormalizeName(name string) string {
	return strings.ToLower(name)
}

// FindDuplicates scans each account in turn. ctx is checked before every
// account and every bucket; a cancelled scan is reported through
// Result.Cancelled, not as an error.
func (g *Grouper) FindDuplicates(ctx context.Context, accts []accounts.Ref) (Result, error) {
	var res Result
	for _, acct := range accts {
		if cancelled(ctx) {
			res.Cancelled = true
			return res, nil
		}
		groups, skipped, stopped, err := g.scanAccount(ctx, acct)
		res.Groups = append(res.Groups, groups...)
		res.BucketsSkipped += skipped
		if err != nil {
			return res, err
		}
		if stopped {
			res.Cancelled = true
			return res, nil
		}
		res.AccountsScanned++
	}
	return res, nil
}

type bucket struct {
	key     string
	members []records.RawRecordRow
}

func (g *Grouper) scanAccount(ctx context.Context, acct accounts.Ref) (groups []Group, skipped int, stopped bool, err error) {
	rows, err := g.Store.QueryRawRecords(ctx, acct)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: list raw records of %s: %w", ErrStoreUnavailable, acct, err)
	}

	var order []*bucket
	byKey := map[string]*bucket{}
	for _, r := range rows {
		if r.Deleted {
			continue
		}
		key := NormalizeName(r.DisplayName)
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key}
			byKey[key] = b
			order = append(order, b)
		}
		b.members = append(b.members, r)
	}

	profile := g.Accounts.Profile(acct.Type)
	for _, b := range order {
		if len(b.members) < 2 {
			continue
		}
		if cancelled(ctx) {
			return groups, skipped, true, nil
		}
		group, fits, err := g.buildGroup(ctx, acct, profile, b)
		if err != nil {
			return groups, skipped, false, err
		}
		if !fits {
			skipped++
			g.Logf("dedupe: %s: %d records named %q exceed account capacity, skipping", acct, len(b.members), b.key)
			continue
		}
		groups = append(groups, group)
	}
	return groups, skipped, false, nil
}

func (g *Grouper) buildGroup(ctx context.Context, acct accounts.Ref, profile accounts.Profile, b *bucket) (Group, bool, error) {
	ids := make([]int64, 0, len(b.members))
	for _, m := range b.members {
		ids = append(ids, m.ID)
	}
	fieldRows, err := g.Store.QueryFields(ctx, ids)
	if err != nil {
		return Group{}, false, fmt.Errorf("%w: fields of %s bucket %q: %w", ErrStoreUnavailable, acct, b.key, err)
	}
	byRecord := records.GroupByRawRecord(fieldRows)

	group := Group{AccountName: acct.Name, AccountType: acct.Type}
	var mergedPhones, mergedEmails []string
	for _, m := range b.members {
		phones, emails, _ := fields.Partition(byRecord[m.ID])
		s := Summary{
			RawRecordID: m.ID,
			ContactID:   m.ContactID,
			LookupKey:   m.LookupKey,
			PhotoID:     m.PhotoID,
			DisplayName: m.DisplayName,
			Phones:      texts(phones),
			Emails:      texts(emails),
		}
		mergedPhones = accumulate(mergedPhones, fields.Phone, s.Phones)
		mergedEmails = accumulate(mergedEmails, fields.Email, s.Emails)
		group.Members = append(group.Members, s)
	}
	return group, fitsCapacity(profile, len(mergedPhones), len(mergedEmails)), nil
}

// fitsCapacity reports whether a merged record fits the account. One slot
// holds the primary number, the capacity counts the additional ones.
func fitsCapacity(p accounts.Profile, phones, emails int) bool {
	if !p.IsCapacityConstrained() {
		return true
	}
	if limit, ok := p.MaxPhoneFields(); ok && phones > limit+1 {
		return false
	}
	if limit, ok := p.MaxEmailFields(); ok && emails > limit+1 {
		return false
	}
	return true
}

// accumulate appends each value not equivalent to one already present.
func accumulate(acc []string, kind fields.Kind, values []string) []string {
	for _, v := range values {
		dup := false
		for _, have := range acc {
			if equiv.Equal(kind, have, v) {
				dup = true
				break
			}
		}
		if !dup {
			acc = append(acc, v)
		}
	}
	return acc
}

func texts(values []fields.Value) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Text)
	}
	return out
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
