package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/calllog"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/db"
	"github.com/Napageneral/rolodex/internal/dedupe"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/merge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenPath("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))
	return New(database)
}

type seeded struct {
	contactID int64
	r1, r2    int64
	phoneID   int64
}

// seed writes two "John" records in acme:com.acme sharing 650-555-0001.
func seed(t *testing.T, s *Store) seeded {
	t.Helper()
	ctx := context.Background()
	var out seeded
	err := s.Update(ctx, func(w *Writer) error {
		var err error
		out.contactID, err = w.InsertContact(ctx, "lk-john", "John")
		if err != nil {
			return err
		}
		cid := out.contactID
		out.r1, err = w.InsertRawRecord(ctx, RawRecordInput{ContactID: &cid, AccountName: "acme", AccountType: "com.acme", DisplayName: "John"})
		if err != nil {
			return err
		}
		out.r2, err = w.InsertRawRecord(ctx, RawRecordInput{ContactID: &cid, AccountName: "acme", AccountType: "com.acme", DisplayName: "john"})
		if err != nil {
			return err
		}
		out.phoneID, err = w.InsertField(ctx, out.r1, fields.Value{Kind: fields.Phone, Text: "650-555-0001", Attrs: map[string]string{"type": "work"}})
		if err != nil {
			return err
		}
		for _, v := range []fields.Value{
			{Kind: fields.Name, Text: "john"},
			{Kind: fields.Phone, Text: "(650) 555-0001"},
			{Kind: fields.Phone, Text: "650-555-0002", Attrs: map[string]string{fields.AttrDirty: "1"}},
			{Kind: fields.GroupMembership, Text: "7"},
		} {
			if _, err := w.InsertField(ctx, out.r2, v); err != nil {
				return err
			}
		}
		if err := w.InsertPresence(ctx, out.phoneID, contacts.PresenceStatus{Presence: 1, Status: "away"}); err != nil {
			return err
		}
		if err := w.InsertPresence(ctx, out.phoneID, contacts.PresenceStatus{Presence: 2, Status: "busy", Timestamp: time.Unix(1700000000, 0)}); err != nil {
			return err
		}
		if _, err := w.InsertGroup(ctx, contacts.GroupMeta{AccountName: "acme", AccountType: "com.acme", Title: "Friends"}); err != nil {
			return err
		}
		return w.InsertStreamItem(ctx, out.r1, "hello", time.Unix(1700000100, 0))
	})
	require.NoError(t, err)
	return out
}

func TestLoaderReadsAggregate(t *testing.T) {
	s := newTestStore(t)
	ids := seed(t, s)

	loader := contacts.NewLoader(s, nil)
	c, err := loader.Load(context.Background(), "lk-john")
	require.NoError(t, err)
	require.True(t, c.Loaded())
	assert.Equal(t, ids.contactID, c.ContactID)
	require.Len(t, c.RawRecords, 2)
	assert.Equal(t, ids.r1, c.RawRecords[0].ID)
	// Two presence rows for one field still yield a single field.
	assert.Len(t, c.RawRecords[0].Fields, 1)
	assert.Equal(t, "work", c.RawRecords[0].Fields[0].Value.Attr("type"))
	assert.Len(t, c.RawRecords[1].Fields, 4)
	assert.Equal(t, "busy", c.Statuses[ids.phoneID].Status)

	byID, err := loader.Load(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, c.LookupKey, byID.LookupKey)

	missing, err := loader.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, contacts.StateNotFound, missing.State)
}

func TestEnrichFromStore(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	reg, err := accounts.NewRegistry(accounts.Profile{Type: "com.chat", Invitable: true})
	require.NoError(t, err)

	c, err := contacts.NewLoader(s, nil).Load(context.Background(), "lk-john")
	require.NoError(t, err)
	e := &contacts.Enricher{Source: s, Accounts: reg}
	require.NoError(t, e.Enrich(context.Background(), &c, contacts.All()))

	require.Len(t, c.Groups, 1)
	assert.Equal(t, "Friends", c.Groups[0].Title)
	require.Len(t, c.StreamItems, 1)
	assert.Equal(t, "hello", c.StreamItems[0].Text)
	assert.Equal(t, []string{"com.chat"}, c.InvitableAccounts)
}

func TestFindDuplicatesFromStore(t *testing.T) {
	s := newTestStore(t)
	ids := seed(t, s)

	refs, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []accounts.Ref{{Name: "acme", Type: "com.acme"}}, refs)

	g := dedupe.NewGrouper(s, nil, nil)
	res, err := g.FindDuplicates(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []int64{ids.r1, ids.r2}, res.Groups[0].MemberIDs())
}

func TestApplyPlanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ids := seed(t, s)
	ctx := context.Background()

	planner := merge.NewPlanner(s, nil, nil)
	plan, err := planner.Plan(ctx, ids.r1, []int64{ids.r2})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	assert.Equal(t, "650-555-0002", plan.Ops[0].Value.Text)
	assert.Empty(t, plan.Ops[0].Value.Attr(fields.AttrDirty))
	assert.Equal(t, fields.GroupMembership, plan.Ops[1].Value.Kind)

	require.NoError(t, s.ApplyPlan(ctx, plan, merge.ApplyOptions{}))

	// Re-applying lands no new rows: the phone is now known and the
	// membership collapses on the unique index.
	again, err := planner.Plan(ctx, ids.r1, []int64{ids.r2})
	require.NoError(t, err)
	for _, op := range again.Ops {
		assert.Equal(t, fields.GroupMembership, op.Value.Kind)
	}
	require.NoError(t, s.ApplyPlan(ctx, again, merge.ApplyOptions{}))

	rows, err := s.QueryFields(ctx, []int64{ids.r1})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestApplyPlanDeletesDonors(t *testing.T) {
	s := newTestStore(t)
	ids := seed(t, s)
	ctx := context.Background()

	plan, err := merge.NewPlanner(s, nil, nil).Plan(ctx, ids.r1, []int64{ids.r2, 999})
	require.NoError(t, err)
	assert.Equal(t, []int64{999}, plan.SkippedDonors)
	require.NoError(t, s.ApplyPlan(ctx, plan, merge.ApplyOptions{DeleteDonors: true}))

	donor, ok, err := s.QueryRawRecord(ctx, ids.r2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, donor.Deleted)

	live, err := s.QueryRawRecords(ctx, accounts.Ref{Name: "acme", Type: "com.acme"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, ids.r1, live[0].ID)
	assert.Equal(t, "lk-john", live[0].LookupKey)
}

func TestApplyPlanIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ids := seed(t, s)
	ctx := context.Background()

	plan := merge.Plan{
		Target: ids.r1,
		Ops: []merge.FieldInsertOp{
			{TargetRawRecordID: ids.r1, Value: fields.Value{Kind: fields.Email, Text: "j@x.com"}},
			{TargetRawRecordID: 12345, Value: fields.Value{Kind: fields.Email, Text: "orphan@x.com"}},
		},
	}
	err := s.ApplyPlan(ctx, plan, merge.ApplyOptions{})
	require.ErrorIs(t, err, merge.ErrStoreUnavailable)

	rows, err := s.QueryFields(ctx, []int64{ids.r1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestQueryCallLogNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	require.NoError(t, s.Update(ctx, func(w *Writer) error {
		if err := w.InsertCall(ctx, calllog.Row{Number: "555-0001", Type: calllog.Incoming}, base); err != nil {
			return err
		}
		return w.InsertCall(ctx, calllog.Row{Number: "555-0002", Type: calllog.Missed}, base.Add(time.Minute))
	}))

	rows, err := s.QueryCallLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "555-0002", rows[0].Number)
	assert.Equal(t, calllog.Missed, rows[0].Type)

	limited, err := s.QueryCallLog(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFingerprintTracksRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	empty, err := s.Fingerprint(ctx)
	require.NoError(t, err)

	ids := seed(t, s)
	seeded, err := s.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, empty, seeded)

	same, err := s.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, seeded, same)

	require.NoError(t, s.Update(ctx, func(w *Writer) error { return w.MarkDeleted(ctx, ids.r2) }))
	deleted, err := s.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, seeded, deleted)
}
