package calllog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Napageneral/rolodex/internal/equiv"
)

// CallType is the kind of a call log entry.
type CallType int

const (
	Incoming  CallType = 1
	Outgoing  CallType = 2
	Missed    CallType = 3
	Voicemail CallType = 4
	Rejected  CallType = 5
	Blocked   CallType = 6
)

func (t CallType) String() string {
	switch t {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	case Missed:
		return "missed"
	case Voicemail:
		return "voicemail"
	case Rejected:
		return "rejected"
	case Blocked:
		return "blocked"
	}
	return "unknown"
}

// ParseCallType accepts a name as returned by String or the numeric code.
func ParseCallType(s string) (CallType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t := Incoming; t <= Blocked; t++ {
		if s == t.String() || s == strconv.Itoa(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown call type %q", s)
}

// Row is one call log entry, as far as grouping is concerned.
type Row struct {
	Number           string   `json:"number"`
	Type             CallType `json:"type"`
	AccountComponent string   `json:"account_component,omitempty"`
	AccountID        string   `json:"account_id,omitempty"`
}

// Group is a contiguous run of rows [Start, Start+Size) shown as one entry.
// Size is always at least 2.
type Group struct {
	Start int `json:"start"`
	Size  int `json:"size"`
}

// GroupRows collapses adjacent rows with the same number and call account.
// Voicemail never groups with anything. Rows outside every group stand alone.
func GroupRows(rows []Row) []Group {
	var groups []Group
	if len(rows) == 0 {
		return groups
	}

	start := 0
	first := rows[0]
	for i := 1; i < len(rows); i++ {
		cur := rows[i]
		if joins(first, cur) {
			continue
		}
		if size := i - start; size > 1 {
			groups = append(groups, Group{Start: start, Size: size})
		}
		start = i
		first = cur
	}
	if size := len(rows) - start; size > 1 {
		groups = append(groups, Group{Start: start, Size: size})
	}
	return groups
}

func joins(first, cur Row) bool {
	if first.Type == Voicemail || cur.Type == Voicemail {
		return false
	}
	sameAccount := first.AccountComponent == cur.AccountComponent && first.AccountID == cur.AccountID
	return sameAccount && equiv.SameNumber(first.Number, cur.Number)
}
