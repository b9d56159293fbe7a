package dedupe

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
	raw        map[accounts.Ref][]records.RawRecordRow
	fields     []records.FieldRow
	fieldCalls int
	onFields   func()
	rawErr     error
}

func newMemStore() *memStore {
	return &memStore{raw: map[accounts.Ref][]records.RawRecordRow{}}
}

func (m *memStore) add(acct accounts.Ref, id int64, name string, phones, emails []string) {
	m.raw[acct] = append(m.raw[acct], records.RawRecordRow{
		ID: id, AccountName: acct.Name, AccountType: acct.Type, DisplayName: name,
	})
	next := int64(len(m.fields) + 1)
	for _, p := range phones {
		m.fields = append(m.fields, records.FieldRow{ID: next, RawRecordID: id, Value: fields.Value{Kind: fields.Phone, Text: p}})
		next++
	}
	for _, e := range emails {
		m.fields = append(m.fields, records.FieldRow{ID: next, RawRecordID: id, Value: fields.Value{Kind: fields.Email, Text: e}})
		next++
	}
	m.fields = append(m.fields, records.FieldRow{ID: next, RawRecordID: id, Value: fields.Value{Kind: fields.Name, Text: name}})
}

func (m *memStore) QueryRawRecords(ctx context.Context, acct accounts.Ref) ([]records.RawRecordRow, error) {
	if m.rawErr != nil {
		return nil, m.rawErr
	}
	return m.raw[acct], nil
}

func (m *memStore) QueryFields(ctx context.Context, ids []int64) ([]records.FieldRow, error) {
	m.fieldCalls++
	if m.onFields != nil {
		m.onFields()
	}
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []records.FieldRow
	for _, f := range m.fields {
		if want[f.RawRecordID] {
			out = append(out, f)
		}
	}
	return out, nil
}

var acme = accounts.Ref{Name: "acme", Type: "com.acme"}

func TestFindDuplicatesEndToEnd(t *testing.T) {
	s := newMemStore()
	s.add(acme, 1, "john", []string{"650-555-0001"}, nil)
	s.add(acme, 2, "John", []string{"6505550001"}, nil)
	s.add(acme, 3, "JOHN", []string{"650-555-0002", "650-555-0001"}, nil)
	s.add(acme, 4, "jane", []string{"650-555-0009"}, nil)

	g := NewGrouper(s, nil, nil)
	res, err := g.FindDuplicates(context.Background(), []accounts.Ref{acme})
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 1, res.AccountsScanned)
	require.Len(t, res.Groups, 1)

	grp := res.Groups[0]
	assert.Equal(t, "acme", grp.AccountName)
	assert.Equal(t, "com.acme", grp.AccountType)
	assert.Equal(t, []int64{1, 2, 3}, grp.MemberIDs())
	assert.Equal(t, []string{"650-555-0002", "650-555-0001"}, grp.Members[2].Phones)
	assert.Empty(t, grp.Members[0].Emails)
	// only the bucket with two or more members is fetched
	assert.Equal(t, 1, s.fieldCalls)
}

func TestFindDuplicatesNamelessShareBucket(t *testing.T) {
	s := newMemStore()
	s.add(acme, 1, "", []string{"111"}, nil)
	s.add(acme, 2, "", []string{"222"}, nil)

	res, err := NewGrouper(s, nil, nil).FindDuplicates(context.Background(), []accounts.Ref{acme})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Len(t, res.Groups[0].Members, 2)
}

func TestFindDuplicatesSkipsDeleted(t *testing.T) {
	s := newMemStore()
	s.add(acme, 1, "john", nil, nil)
	s.add(acme, 2, "john", nil, nil)
	s.raw[acme][1].Deleted = true

	res, err := NewGrouper(s, nil, nil).FindDuplicates(context.Background(), []accounts.Ref{acme})
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
}

func TestFindDuplicatesNeverEmitsSingletons(t *testing.T) {
	s := newMemStore()
	other := accounts.Ref{Name: "other", Type: "com.other"}
	s.add(acme, 1, "a", nil, nil)
	s.add(acme, 2, "b", nil, nil)
	s.add(acme, 3, "c", nil, nil)
	s.add(other, 4, "a", nil, nil)
	s.add(other, 5, "A", nil, nil)

	res, err := NewGrouper(s, nil, nil).FindDuplicates(context.Background(), []accounts.Ref{acme, other})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	for _, g := range res.Groups {
		assert.GreaterOrEqual(t, len(g.Members), 2)
	}
	assert.Equal(t, "other", res.Groups[0].AccountName)
}

func TestFindDuplicatesCapacity(t *testing.T) {
	one := 1
	reg, err := accounts.NewRegistry(accounts.Profile{Type: "sim", Kind: accounts.Constrained, MaxPhones: &one, MaxEmails: &one})
	require.NoError(t, err)
	sim := accounts.Ref{Name: "sim1", Type: "sim"}

	s := newMemStore()
	// Two distinct phones fit: primary plus one additional number.
	s.add(sim, 1, "ann", []string{"111 1111"}, nil)
	s.add(sim, 2, "ann", []string{"222 2222", "1111111"}, nil)
	// Three distinct phones do not.
	s.add(sim, 3, "bob", []string{"333 3333"}, nil)
	s.add(sim, 4, "bob", []string{"444 4444"}, nil)
	s.add(sim, 5, "bob", []string{"555 5555"}, nil)
	// Three distinct emails do not either.
	s.add(sim, 6, "cy", nil, []string{"a@x", "b@x"})
	s.add(sim, 7, "cy", nil, []string{"c@x"})

	var logged int
	g := NewGrouper(s, reg, func(string, ...any) { logged++ })
	res, err := g.FindDuplicates(context.Background(), []accounts.Ref{sim})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []int64{1, 2}, res.Groups[0].MemberIDs())
	assert.Equal(t, 2, res.BucketsSkipped)
	assert.Equal(t, 2, logged)
}

func TestFindDuplicatesCancelledBeforeStart(t *testing.T) {
	s := newMemStore()
	s.add(acme, 1, "john", nil, nil)
	s.add(acme, 2, "john", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewGrouper(s, nil, nil).FindDuplicates(ctx, []accounts.Ref{acme})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 0, s.fieldCalls)
}

func TestFindDuplicatesCancelledBetweenBuckets(t *testing.T) {
	other := accounts.Ref{Name: "other", Type: "com.other"}
	s := newMemStore()
	s.add(acme, 1, "john", nil, nil)
	s.add(acme, 2, "john", nil, nil)
	s.add(acme, 3, "jane", nil, nil)
	s.add(acme, 4, "jane", nil, nil)
	s.add(other, 5, "x", nil, nil)
	s.add(other, 6, "x", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The in-flight bucket completes; the next check stops the scan.
	s.onFields = cancel

	res, err := NewGrouper(s, nil, nil).FindDuplicates(ctx, []accounts.Ref{acme, other})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []int64{1, 2}, res.Groups[0].MemberIDs())
	assert.Equal(t, 0, res.AccountsScanned)
	assert.Equal(t, 1, s.fieldCalls)
}

func TestFindDuplicatesStoreFailure(t *testing.T) {
	boom := errors.New("locked")
	s := newMemStore()
	s.rawErr = boom
	_, err := NewGrouper(s, nil, nil).FindDuplicates(context.Background(), []accounts.Ref{acme})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
}
