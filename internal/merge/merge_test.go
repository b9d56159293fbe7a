package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/records"
)

type memStore struct {
	raw      map[int64]records.RawRecordRow
	fields   []records.FieldRow
	failRead map[int64]error
}

func newMemStore() *memStore {
	return &memStore{raw: map[int64]records.RawRecordRow{}, failRead: map[int64]error{}}
}

func (m *memStore) record(id int64, accountType string, values ...fields.Value) {
	m.raw[id] = records.RawRecordRow{ID: id, AccountName: "acct", AccountType: accountType, DisplayName: "john"}
	for _, v := range values {
		m.fields = append(m.fields, records.FieldRow{ID: int64(len(m.fields) + 1), RawRecordID: id, Value: v})
	}
}

// apply mimics an atomic store write of every op.
func (m *memStore) apply(p Plan) {
	for _, op := range p.Ops {
		m.fields = append(m.fields, records.FieldRow{ID: int64(len(m.fields) + 1), RawRecordID: op.TargetRawRecordID, Value: op.Value})
	}
}

func (m *memStore) QueryRawRecord(ctx context.Context, id int64) (records.RawRecordRow, bool, error) {
	if err := m.failRead[id]; err != nil {
		return records.RawRecordRow{}, false, err
	}
	r, ok := m.raw[id]
	return r, ok, nil
}

func (m *memStore) QueryFields(ctx context.Context, ids []int64) ([]records.FieldRow, error) {
	var out []records.FieldRow
	for _, f := range m.fields {
		for _, id := range ids {
			if f.RawRecordID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func ph(text string, attrs ...string) fields.Value {
	v := fields.Value{Kind: fields.Phone, Text: text}
	for i := 0; i+1 < len(attrs); i += 2 {
		v = v.WithAttr(attrs[i], attrs[i+1])
	}
	return v
}

func val(kind fields.Kind, text string) fields.Value {
	return fields.Value{Kind: kind, Text: text}
}

func texts(p Plan) []string {
	var out []string
	for _, op := range p.Ops {
		out = append(out, string(op.Value.Kind)+":"+op.Value.Text)
	}
	return out
}

func TestPlanEndToEnd(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme", val(fields.Name, "john"), ph("650-555-0001"))
	s.record(2, "com.acme", val(fields.Name, "john"), ph("6505550001"))
	s.record(3, "com.acme", val(fields.Name, "john"), ph("650-555-0002"), ph("650-555-0001"))

	p := NewPlanner(s, nil, nil)
	plan, err := p.Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, []int64{3, 2}, plan.Donors)
	require.Len(t, plan.Ops, 1)
	assert.Equal(t, int64(1), plan.Ops[0].TargetRawRecordID)
	assert.Equal(t, "650-555-0002", plan.Ops[0].Value.Text)
}

func TestPlanIdempotentWhenTargetHasEverything(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme", ph("+1 650 555 0001"), val(fields.Email, "j@acme.com"), val(fields.Note, "hi"))
	s.record(2, "com.acme", ph("(650) 555-0001"), val(fields.Email, "j@acme.com"), val(fields.Name, "Johnny"))
	s.record(3, "com.acme", val(fields.Note, "hi"))

	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlanSecondRunIsEmpty(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme", ph("111 1111"))
	s.record(2, "com.acme", ph("222 2222"), val(fields.Email, "a@x"), val(fields.Photo, "p2"), val(fields.Website, "x.org"))
	s.record(3, "com.acme", ph("2222222"), val(fields.Email, "b@x"), val(fields.Photo, "p3"), val(fields.Other("x-custom"), "c"))

	p := NewPlanner(s, nil, nil)
	first, err := p.Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"phone:2222222", "email:b@x", "photo:p3", "x-custom:c",
		"email:a@x", "website:x.org",
	}, texts(first))

	s.apply(first)
	second, err := p.Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	assert.True(t, second.Empty(), "unexpected ops: %v", texts(second))
}

func TestPlanSecondRunRepeatsGroupMemberships(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme", ph("111 1111"))
	s.record(2, "com.acme", val(fields.GroupMembership, "g1"), val(fields.Email, "a@x"))

	p := NewPlanner(s, nil, nil)
	first, err := p.Plan(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []string{"group_membership:g1", "email:a@x"}, texts(first))

	// Memberships are always planned; the store ignores a repeated one.
	s.apply(first)
	second, err := p.Plan(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []string{"group_membership:g1"}, texts(second))
}

func TestPlanNoDuplicateOps(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", ph("650-555-0001"), val(fields.Email, "a@x"), val(fields.Email, "a@x"))
	s.record(3, "com.acme", ph("+16505550001"), val(fields.Email, "a@x"), val(fields.GroupMembership, "g1"))
	s.record(4, "com.acme", val(fields.GroupMembership, "g1"))

	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"group_membership:g1",
		"phone:+16505550001", "email:a@x", "group_membership:g1",
	}, texts(plan))
}

func TestPlanNameNeverCopied(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", val(fields.Name, "John Smith"))
	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlanPhotoOnce(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", val(fields.Photo, "p2"))
	s.record(3, "com.acme", val(fields.Photo, "p3"))
	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"photo:p3"}, texts(plan))

	s.record(5, "com.acme", val(fields.Photo, "p5"))
	s.record(6, "com.acme", val(fields.Photo, "p6"))
	plan, err = NewPlanner(s, nil, nil).Plan(context.Background(), 5, []int64{6})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlanConstrainedAccount(t *testing.T) {
	one := 1
	reg, err := accounts.NewRegistry(accounts.Profile{
		Type: "sim", Kind: accounts.Constrained, MaxPhones: &one, MaxEmails: &one, MultiplePhotos: true,
	})
	require.NoError(t, err)

	s := newMemStore()
	s.record(1, "sim", ph("111 1111"), val(fields.Photo, "p1"))
	s.record(2, "sim", ph("222 2222", fields.AttrType, "work", fields.AttrLabel, "Office"), val(fields.Photo, "p2"))
	s.record(3, "sim", ph("333 3333", fields.AttrType, "work"), val(fields.Photo, "p1"))

	plan, err := NewPlanner(s, reg, nil).Plan(context.Background(), 1, []int64{2, 3})
	require.NoError(t, err)
	require.Equal(t, []string{"phone:333 3333", "phone:222 2222", "photo:p2"}, texts(plan))
	assert.Equal(t, fields.PhoneTypeMobile, plan.Ops[0].Value.Attr(fields.AttrType))
	assert.Equal(t, fields.PhoneTypeHome, plan.Ops[1].Value.Attr(fields.AttrType))
	assert.Empty(t, plan.Ops[1].Value.Attr(fields.AttrLabel))
}

func TestPlanStandardAccountKeepsPhoneType(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", ph("222 2222", fields.AttrType, "work", fields.AttrLabel, "Office"))
	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.Equal(t, "work", plan.Ops[0].Value.Attr(fields.AttrType))
	assert.Equal(t, "Office", plan.Ops[0].Value.Attr(fields.AttrLabel))
}

func TestPlanStripsVolatileAttributes(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", ph("555 1234",
		fields.AttrID, "99", fields.AttrIsPrimary, "1", fields.AttrIsSuperPrimary, "1",
		fields.AttrSync1, "tok", fields.AttrDirty, "1", fields.AttrType, "mobile"))
	plan, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.Equal(t, map[string]string{fields.AttrType: "mobile"}, plan.Ops[0].Value.Attrs)
}

func TestPlanSkipsUnreadableDonors(t *testing.T) {
	s := newMemStore()
	s.record(1, "com.acme")
	s.record(2, "com.acme", ph("222 2222"))
	s.record(3, "com.acme", ph("333 3333"))
	s.failRead[3] = errors.New("io error")

	var warnings []string
	p := NewPlanner(s, nil, func(format string, args ...any) { warnings = append(warnings, format) })
	plan, err := p.Plan(context.Background(), 1, []int64{2, 3, 4, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, plan.SkippedDonors)
	assert.Equal(t, []int64{2}, plan.Donors)
	assert.Equal(t, []string{"phone:222 2222"}, texts(plan))
	assert.Len(t, warnings, 2)
}

func TestPlanTargetErrors(t *testing.T) {
	s := newMemStore()
	_, err := NewPlanner(s, nil, nil).Plan(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	boom := errors.New("locked")
	s.failRead[1] = boom
	_, err = NewPlanner(s, nil, nil).Plan(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
}
