package calllog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRowsBasic(t *testing.T) {
	rows := []Row{
		{Number: "650-555-0001", Type: Outgoing, AccountComponent: "sim", AccountID: "1"},
		{Number: "6505550001", Type: Incoming, AccountComponent: "sim", AccountID: "1"},
		{Number: "650-555-0002", Type: Missed, AccountComponent: "sim", AccountID: "1"},
	}
	assert.Equal(t, []Group{{Start: 0, Size: 2}}, GroupRows(rows))
}

func TestGroupRowsVoicemailIsolation(t *testing.T) {
	rows := []Row{
		{Number: "5551234", Type: Voicemail},
		{Number: "5551234", Type: Voicemail},
	}
	assert.Empty(t, GroupRows(rows))

	rows = []Row{
		{Number: "5551234", Type: Incoming},
		{Number: "5551234", Type: Voicemail},
		{Number: "5551234", Type: Incoming},
	}
	assert.Empty(t, GroupRows(rows))
}

func TestGroupRowsAccountMustMatch(t *testing.T) {
	rows := []Row{
		{Number: "5551234", Type: Incoming, AccountComponent: "sim", AccountID: "1"},
		{Number: "5551234", Type: Incoming, AccountComponent: "sim", AccountID: "2"},
		{Number: "5551234", Type: Incoming, AccountComponent: "sim", AccountID: "2"},
	}
	assert.Equal(t, []Group{{Start: 1, Size: 2}}, GroupRows(rows))
}

func TestGroupRowsSIPNumbers(t *testing.T) {
	rows := []Row{
		{Number: "alice@SIP.example.com", Type: Incoming},
		{Number: "alice@sip.example.com", Type: Outgoing},
		{Number: "Alice@sip.example.com", Type: Outgoing},
	}
	assert.Equal(t, []Group{{Start: 0, Size: 2}}, GroupRows(rows))
}

func TestGroupRowsRuns(t *testing.T) {
	rows := []Row{
		{Number: "1", Type: Incoming},
		{Number: "1", Type: Incoming},
		{Number: "1", Type: Missed},
		{Number: "2", Type: Incoming},
		{Number: "3", Type: Incoming},
		{Number: "3", Type: Outgoing},
	}
	assert.Equal(t, []Group{{Start: 0, Size: 3}, {Start: 4, Size: 2}}, GroupRows(rows))
	assert.Empty(t, GroupRows(nil))
	assert.Empty(t, GroupRows(rows[:1]))
}

func TestParseCallType(t *testing.T) {
	typ, err := ParseCallType("Voicemail")
	require.NoError(t, err)
	assert.Equal(t, Voicemail, typ)

	typ, err = ParseCallType("2")
	require.NoError(t, err)
	assert.Equal(t, Outgoing, typ)

	_, err = ParseCallType("dropped")
	assert.Error(t, err)
}
