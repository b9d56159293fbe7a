package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/equiv"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/records"
)

var (
	// ErrTargetNotFound means the target raw record does not exist.
	ErrTargetNotFound = errors.New("merge: target raw record not found")
	// ErrStoreUnavailable wraps record store failures on the target.
	ErrStoreUnavailable = errors.New("merge: store unavailable")
)

// Store is the read side of a record store the planner needs.
type Store interface {
	QueryRawRecord(ctx context.Context, id int64) (records.RawRecordRow, bool, error)
	QueryFields(ctx context.Context, rawRecordIDs []int64) ([]records.FieldRow, error)
}

// FieldInsertOp adds one field to the target raw record. It is write-only:
// the value carries no store-assigned identity.
type FieldInsertOp struct {
	TargetRawRecordID int64        `json:"target_raw_record_id"`
	Value             fields.Value `json:"value"`
}

// Plan is the ordered list of inserts that moves every donor fact the target
// lacks onto the target. It must be applied as one unit.
type Plan struct {
	ID            string          `json:"id"`
	Target        int64           `json:"target"`
	Donors        []int64         `json:"donors"`
	Ops           []FieldInsertOp `json:"ops"`
	SkippedDonors []int64         `json:"skipped_donors,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Empty reports whether applying p would change nothing.
func (p Plan) Empty() bool { return len(p.Ops) == 0 }

// ApplyOptions controls plan application.
type ApplyOptions struct {
	// DeleteDonors marks every donor that was read as deleted in the same
	// transaction as the inserts.
	DeleteDonors bool
}

// Applier persists a plan atomically: either every op lands or none does.
type Applier interface {
	ApplyPlan(ctx context.Context, plan Plan, opts ApplyOptions) error
}

// Planner computes merge plans.
type Planner struct {
	Store    Store
	Accounts *accounts.Registry
	Logf     func(format string, args ...any)
}

// NewPlanner returns a planner over store.
func NewPlanner(store Store, reg *accounts.Registry, logf func(format string, args ...any)) *Planner {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Planner{Store: store, Accounts: reg, Logf: logf}
}

// seenSet tracks the facts the target holds, per kind.
type seenSet map[fields.Kind][]string

func (s seenSet) has(kind fields.Kind, text string) bool {
	for _, v := range s[kind] {
		if equiv.Equal(kind, v, text) {
			return true
		}
	}
	return false
}

func (s seenSet) add(kind fields.Kind, text string) {
	if !s.has(kind, text) {
		s[kind] = append(s[kind], text)
	}
}

// Plan builds the inserts that copy the donors' unique facts onto target.
// Donors are visited newest first. A donor that cannot be read is skipped
// and listed in SkippedDonors; only target failures are errors.
func (p *Planner) Plan(ctx context.Context, target int64, donors []int64) (Plan, error) {
	tgt, ok, err := p.Store.QueryRawRecord(ctx, target)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: read target %d: %w", ErrStoreUnavailable, target, err)
	}
	if !ok || tgt.Deleted {
		return Plan{}, fmt.Errorf("%w: %d", ErrTargetNotFound, target)
	}
	targetRows, err := p.Store.QueryFields(ctx, []int64{target})
	if err != nil {
		return Plan{}, fmt.Errorf("%w: read target %d fields: %w", ErrStoreUnavailable, target, err)
	}

	profile := p.Accounts.Profile(tgt.AccountType)
	seen := seenSet{}
	for _, r := range targetRows {
		seen.add(r.Value.Kind, r.Value.Text)
	}

	plan := Plan{
		ID:        uuid.New().String(),
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}

	acceptedPhones := 0
	for _, donor := range orderDonors(target, donors) {
		values, ok := p.readDonor(ctx, donor)
		if !ok {
			plan.SkippedDonors = append(plan.SkippedDonors, donor)
			continue
		}
		plan.Donors = append(plan.Donors, donor)

		for _, v := range values {
			switch v.Kind {
			case fields.Name:
				continue
			case fields.Photo:
				if len(seen[fields.Photo]) > 0 && (!profile.SupportsMultiplePhotos() || seen.has(fields.Photo, v.Text)) {
					continue
				}
				seen[fields.Photo] = append(seen[fields.Photo], v.Text)
			case fields.Phone:
				if seen.has(fields.Phone, v.Text) {
					continue
				}
				seen[fields.Phone] = append(seen[fields.Phone], v.Text)
				if profile.IsCapacityConstrained() {
					typ := fields.PhoneTypeHome
					if acceptedPhones == 0 {
						typ = fields.PhoneTypeMobile
					}
					v = v.WithAttr(fields.AttrType, typ).WithAttr(fields.AttrLabel, "")
				}
				acceptedPhones++
			case fields.GroupMembership:
				// Memberships are never deduplicated here.
			default:
				if seen.has(v.Kind, v.Text) {
					continue
				}
				seen[v.Kind] = append(seen[v.Kind], v.Text)
			}
			plan.Ops = append(plan.Ops, FieldInsertOp{TargetRawRecordID: target, Value: v.Portable()})
		}
	}
	return plan, nil
}

func (p *Planner) readDonor(ctx context.Context, id int64) ([]fields.Value, bool) {
	row, ok, err := p.Store.QueryRawRecord(ctx, id)
	if err != nil {
		p.Logf("merge: skipping donor %d: %v", id, err)
		return nil, false
	}
	if !ok || row.Deleted {
		p.Logf("merge: skipping donor %d: not found", id)
		return nil, false
	}
	rows, err := p.Store.QueryFields(ctx, []int64{id})
	if err != nil {
		p.Logf("merge: skipping donor %d: %v", id, err)
		return nil, false
	}
	out := make([]fields.Value, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value)
	}
	return out, true
}

// orderDonors returns donors in descending id order without duplicates or
// the target itself.
func orderDonors(target int64, donors []int64) []int64 {
	seen := map[int64]struct{}{target: {}}
	out := make([]int64, 0, len(donors))
	for _, d := range donors {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
