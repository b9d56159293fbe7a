package contacts

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/equiv"
	"github.com/Napageneral/rolodex/internal/fields"
)

// EnrichSource supplies the data of the supplementary loads.
type EnrichSource interface {
	QueryGroups(ctx context.Context, refs []accounts.Ref) ([]GroupMeta, error)
	QueryStreamItems(ctx context.Context, rawRecordIDs []int64) ([]StreamItem, error)
}

// EnrichOptions selects which passes run. A pass whose result is already
// present on the Contact is skipped unless Refresh is set.
type EnrichOptions struct {
	Groups            bool
	StreamItems       bool
	InvitableAccounts bool
	FormattedPhones   bool
	Refresh           bool
}

// All returns options enabling every pass.
func All() EnrichOptions {
	return EnrichOptions{Groups: true, StreamItems: true, InvitableAccounts: true, FormattedPhones: true}
}

// Enricher runs supplementary loads over an aggregated Contact.
type Enricher struct {
	Source   EnrichSource
	Accounts *accounts.Registry
}

// Enrich runs the selected passes. Store fetches run concurrently; c is only
// modified once every fetch succeeded, so a failed call leaves c unchanged.
// Contacts that are not loaded are left alone.
func (e *Enricher) Enrich(ctx context.Context, c *Contact, opts EnrichOptions) error {
	if c == nil || !c.Loaded() {
		return nil
	}

	wantGroups := opts.Groups && (c.Groups == nil || opts.Refresh)
	wantStream := opts.StreamItems && (c.StreamItems == nil || opts.Refresh)

	var groups []GroupMeta
	var items []StreamItem
	g, gctx := errgroup.WithContext(ctx)
	if wantGroups {
		refs := accountRefs(*c)
		g.Go(func() error {
			out, err := e.Source.QueryGroups(gctx, refs)
			if err != nil {
				return storeError("query groups", err)
			}
			groups = out
			return nil
		})
	}
	if wantStream {
		ids := c.RawRecordIDs()
		g.Go(func() error {
			out, err := e.Source.QueryStreamItems(gctx, ids)
			if err != nil {
				return storeError("query stream items", err)
			}
			items = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if wantGroups {
		if groups == nil {
			groups = []GroupMeta{}
		}
		c.Groups = groups
	}
	if wantStream {
		if items == nil {
			items = []StreamItem{}
		}
		c.StreamItems = items
	}
	if opts.InvitableAccounts && (c.InvitableAccounts == nil || opts.Refresh) {
		c.InvitableAccounts = invitableAccounts(*c, e.Accounts)
	}
	if opts.FormattedPhones && (c.FormattedPhones == nil || opts.Refresh) {
		c.FormattedPhones = formattedPhones(*c)
	}
	return nil
}

func accountRefs(c Contact) []accounts.Ref {
	seen := map[accounts.Ref]struct{}{}
	var out []accounts.Ref
	for _, r := range c.RawRecords {
		ref := accounts.Ref{Name: r.AccountName, Type: r.AccountType}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// invitableAccounts lists invitable account types the contact has no raw
// record in.
func invitableAccounts(c Contact, reg *accounts.Registry) []string {
	present := map[string]struct{}{}
	for _, t := range c.AccountTypes() {
		present[t] = struct{}{}
	}
	out := []string{}
	for _, t := range reg.InvitableTypes() {
		if _, ok := present[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func formattedPhones(c Contact) map[int64]string {
	out := map[int64]string{}
	for _, r := range c.RawRecords {
		for _, f := range r.Fields {
			if f.Value.Kind != fields.Phone {
				continue
			}
			out[f.ID] = equiv.FormatPhone(f.Value.Text)
		}
	}
	return out
}
