// Package engine wires the contact loader, duplicate grouper and merge
// planner to a record store, and records scans and merges on the event bus.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/bus"
	"github.com/Napageneral/rolodex/internal/calllog"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/dedupe"
	"github.com/Napageneral/rolodex/internal/merge"
	"github.com/Napageneral/rolodex/internal/state"
	"github.com/Napageneral/rolodex/internal/store"
)

type Engine struct {
	Store    *store.Store
	Accounts *accounts.Registry
	Logf     func(format string, args ...any)

	loader   *contacts.Loader
	enricher *contacts.Enricher
	grouper  *dedupe.Grouper
	planner  *merge.Planner
}

func New(st *store.Store, reg *accounts.Registry, logf func(format string, args ...any)) *Engine {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Engine{
		Store:    st,
		Accounts: reg,
		Logf:     logf,
		loader:   contacts.NewLoader(st, logf),
		enricher: &contacts.Enricher{Source: st, Accounts: reg},
		grouper:  dedupe.NewGrouper(st, reg, logf),
		planner:  merge.NewPlanner(st, reg, logf),
	}
}

// Show loads a contact by lookup key or id and runs the selected
// enrichment passes on it.
func (e *Engine) Show(ctx context.Context, lookup string, opts contacts.EnrichOptions) (contacts.Contact, error) {
	c, err := e.loader.Load(ctx, lookup)
	if err != nil {
		return c, err
	}
	if err := e.enricher.Enrich(ctx, &c, opts); err != nil {
		return c, fmt.Errorf("enrich %s: %w", lookup, err)
	}
	return c, nil
}

// FindDuplicates scans the given accounts, or every account in the store
// when none are given. Each scanned account gets its scan state saved and,
// when it has groups, a dupes.found event.
func (e *Engine) FindDuplicates(ctx context.Context, refs []accounts.Ref) (dedupe.Result, error) {
	if len(refs) == 0 {
		all, err := e.Store.ListAccounts(ctx)
		if err != nil {
			return dedupe.Result{}, fmt.Errorf("%w: %w", dedupe.ErrStoreUnavailable, err)
		}
		refs = all
	}

	var total dedupe.Result
	for _, ref := range refs {
		res, err := e.grouper.FindDuplicates(ctx, []accounts.Ref{ref})
		total.Groups = append(total.Groups, res.Groups...)
		total.BucketsSkipped += res.BucketsSkipped
		total.AccountsScanned += res.AccountsScanned
		if err != nil {
			return total, err
		}
		e.recordScan(ref, res)
		if res.Cancelled {
			total.Cancelled = true
			return total, nil
		}
	}
	return total, nil
}

func (e *Engine) recordScan(ref accounts.Ref, res dedupe.Result) {
	db := e.Store.DB()
	scan := state.Scan{
		At:             time.Now().UTC(),
		Groups:         len(res.Groups),
		BucketsSkipped: res.BucketsSkipped,
		Cancelled:      res.Cancelled,
	}
	if err := state.SaveScan(db, ref.String(), scan); err != nil {
		e.Logf("engine: save scan state for %s: %v", ref, err)
	}
	if len(res.Groups) == 0 {
		return
	}
	payload := bus.DupesFound{
		Groups:          len(res.Groups),
		BucketsSkipped:  res.BucketsSkipped,
		AccountsScanned: res.AccountsScanned,
		Cancelled:       res.Cancelled,
	}
	for _, g := range res.Groups {
		payload.Members = append(payload.Members, g.MemberIDs()...)
	}
	if err := bus.Emit(db, bus.TypeDupesFound, ref.String(), "", payload); err != nil {
		e.Logf("engine: emit %s for %s: %v", bus.TypeDupesFound, ref, err)
	}
}

// MergeOptions controls Merge.
type MergeOptions struct {
	// Apply writes the plan. Without it Merge only plans.
	Apply        bool
	DeleteDonors bool
}

// Merge plans copying the donors' facts onto target and, with Apply,
// writes the plan atomically.
func (e *Engine) Merge(ctx context.Context, target int64, donors []int64, opts MergeOptions) (merge.Plan, error) {
	plan, err := e.planner.Plan(ctx, target, donors)
	if err != nil {
		return merge.Plan{}, err
	}
	if !opts.Apply {
		return plan, nil
	}
	if plan.Empty() && !opts.DeleteDonors {
		return plan, nil
	}
	if err := e.Store.ApplyPlan(ctx, plan, merge.ApplyOptions{DeleteDonors: opts.DeleteDonors}); err != nil {
		return plan, err
	}

	payload := bus.MergeApplied{
		Target:        plan.Target,
		Donors:        plan.Donors,
		Ops:           len(plan.Ops),
		SkippedDonors: plan.SkippedDonors,
		DonorsDeleted: opts.DeleteDonors,
	}
	if err := bus.Emit(e.Store.DB(), bus.TypeMergeApplied, "", plan.ID, payload); err != nil {
		e.Logf("engine: emit %s for target %s: %v", bus.TypeMergeApplied, strconv.FormatInt(target, 10), err)
	}
	return plan, nil
}

// CallEntry is one line of the grouped call log.
type CallEntry struct {
	calllog.Row
	Count int `json:"count"`
}

// CallLog returns the newest calls with adjacent calls to the same number
// on the same account collapsed into one entry.
func (e *Engine) CallLog(ctx context.Context, limit int) ([]CallEntry, error) {
	rows, err := e.Store.QueryCallLog(ctx, limit)
	if err != nil {
		return nil, err
	}
	groups := calllog.GroupRows(rows)

	var out []CallEntry
	gi := 0
	for i := 0; i < len(rows); {
		if gi < len(groups) && groups[gi].Start == i {
			out = append(out, CallEntry{Row: rows[i], Count: groups[gi].Size})
			i += groups[gi].Size
			gi++
			continue
		}
		out = append(out, CallEntry{Row: rows[i], Count: 1})
		i++
	}
	return out, nil
}
