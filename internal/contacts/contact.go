package contacts

import (
	"time"

	"github.com/Napageneral/rolodex/internal/fields"
)

// Field is one field record owned by a raw record.
type Field struct {
	ID    int64        `json:"id"`
	Value fields.Value `json:"value"`
}

// RawRecord is one account's version of a person.
type RawRecord struct {
	ID          int64   `json:"id"`
	AccountName string  `json:"account_name"`
	AccountType string  `json:"account_type"`
	ContactID   *int64  `json:"contact_id,omitempty"`
	DisplayName string  `json:"display_name"`
	Fields      []Field `json:"fields"`
}

// Values returns the field values of r in order.
func (r RawRecord) Values() []fields.Value {
	out := make([]fields.Value, 0, len(r.Fields))
	for _, f := range r.Fields {
		out = append(out, f.Value)
	}
	return out
}

// PresenceStatus is the latest presence/status annotation of a field
// (typically an IM or SIP address).
type PresenceStatus struct {
	Presence  int       `json:"presence"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Label     string    `json:"label,omitempty"`
}

// State tells a loaded Contact apart from the not-found and error sentinels.
type State string

const (
	StateLoaded   State = "loaded"
	StateNotFound State = "not_found"
	StateError    State = "error"
)

// GroupMeta describes a group the contact's accounts define.
type GroupMeta struct {
	ID          int64  `json:"id"`
	AccountName string `json:"account_name"`
	AccountType string `json:"account_type"`
	Title       string `json:"title"`
	SystemID    string `json:"system_id,omitempty"`
}

// StreamItem is a social stream entry attached to one raw record.
type StreamItem struct {
	ID          int64     `json:"id"`
	RawRecordID int64     `json:"raw_record_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// Contact is the aggregate of every raw record sharing a contact id.
type Contact struct {
	RequestedID string                   `json:"requested_id"`
	ContactID   int64                    `json:"contact_id"`
	LookupKey   string                   `json:"lookup_key"`
	DisplayName string                   `json:"display_name"`
	RawRecords  []RawRecord              `json:"raw_records"`
	Statuses    map[int64]PresenceStatus `json:"statuses,omitempty"`
	State       State                    `json:"state"`
	Err         error                    `json:"-"`

	// Filled by enrichment passes; nil means "not loaded yet".
	Groups            []GroupMeta      `json:"groups,omitempty"`
	StreamItems       []StreamItem     `json:"stream_items,omitempty"`
	InvitableAccounts []string         `json:"invitable_accounts,omitempty"`
	FormattedPhones   map[int64]string `json:"formatted_phones,omitempty"`
}

// NotFound returns the sentinel Contact for a lookup that matched nothing.
func NotFound(requestedID string) Contact {
	return Contact{RequestedID: requestedID, State: StateNotFound}
}

// Failed returns a Contact in the error state carrying cause.
func Failed(requestedID string, cause error) Contact {
	return Contact{RequestedID: requestedID, State: StateError, Err: cause}
}

// Loaded reports whether c holds real data.
func (c Contact) Loaded() bool {
	return c.State == StateLoaded && len(c.RawRecords) > 0
}

// AccountTypes returns the distinct account types of c's raw records, in
// raw record order.
func (c Contact) AccountTypes() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range c.RawRecords {
		if _, ok := seen[r.AccountType]; ok {
			continue
		}
		seen[r.AccountType] = struct{}{}
		out = append(out, r.AccountType)
	}
	return out
}

// RawRecordIDs returns the ids of c's raw records in order.
func (c Contact) RawRecordIDs() []int64 {
	out := make([]int64, 0, len(c.RawRecords))
	for _, r := range c.RawRecords {
		out = append(out, r.ID)
	}
	return out
}
