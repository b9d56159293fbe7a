package fields

import "strings"

// Kind identifies what a field record describes (a phone number, an email ...).
//
// The known kinds form a closed set. Anything else is carried as Other(tag)
// and treated as a single-valued, deduplicated kind.
type Kind string

const (
	Phone            Kind = "phone"
	Email            Kind = "email"
	Name             Kind = "name"
	Organization     Kind = "organization"
	Photo            Kind = "photo"
	Note             Kind = "note"
	Website          Kind = "website"
	Identity         Kind = "identity"
	Im               Kind = "im"
	Nickname         Kind = "nickname"
	StructuredPostal Kind = "postal"
	SipAddress       Kind = "sip_address"
	GroupMembership  Kind = "group_membership"
)

// Known lists every kind of the closed set, in display order.
var Known = []Kind{
	Name,
	Phone,
	Email,
	Organization,
	Photo,
	Note,
	Website,
	Identity,
	Im,
	Nickname,
	StructuredPostal,
	SipAddress,
	GroupMembership,
}

// Other returns the kind for an unrecognized tag. Known tags map back to
// their constant.
func Other(tag string) Kind {
	return Kind(strings.TrimSpace(strings.ToLower(tag)))
}

// IsKnown reports whether k belongs to the closed set.
func (k Kind) IsKnown() bool {
	for _, known := range Known {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// CopyPolicy decides how many values of a kind may land on one record when
// records are merged.
type CopyPolicy int

const (
	// Dedupe copies a value only if nothing equivalent is present yet.
	Dedupe CopyPolicy = iota
	// Once copies at most one value per target.
	Once
	// Always copies every value.
	Always
)

func (p CopyPolicy) String() string {
	switch p {
	case Dedupe:
		return "dedupe"
	case Once:
		return "once"
	case Always:
		return "always"
	}
	return "unknown"
}

// Policy returns the copy policy of k.
func (k Kind) Policy() CopyPolicy {
	switch k {
	case Name, Photo:
		return Once
	case GroupMembership:
		return Always
	case Phone, Email, Organization, Note, Website, Identity, Im, Nickname, StructuredPostal, SipAddress:
		return Dedupe
	default:
		return Dedupe
	}
}

// Deduplicated reports whether values of k are suppressed when an equivalent
// value already exists.
func (k Kind) Deduplicated() bool {
	return k.Policy() != Always
}

// Attribute keys shared by the store, the importer and the merge planner.
const (
	AttrType           = "type"
	AttrLabel          = "label"
	AttrID             = "id"
	AttrRawRecordID    = "raw_record_id"
	AttrDirty          = "dirty"
	AttrVersion        = "version"
	AttrIsPrimary      = "is_primary"
	AttrIsSuperPrimary = "is_super_primary"
	AttrSync1          = "sync1"
	AttrSync2          = "sync2"
	AttrSync3          = "sync3"
	AttrSync4          = "sync4"
)

// Phone type codes written by the merge planner for capacity constrained
// accounts.
const (
	PhoneTypeMobile = "mobile"
	PhoneTypeHome   = "home"
)

// volatileAttrs are source specific and must not survive a copy to another
// record.
var volatileAttrs = map[string]struct{}{
	AttrID:             {},
	AttrRawRecordID:    {},
	AttrDirty:          {},
	AttrVersion:        {},
	AttrIsPrimary:      {},
	AttrIsSuperPrimary: {},
	AttrSync1:          {},
	AttrSync2:          {},
	AttrSync3:          {},
	AttrSync4:          {},
}

// IsVolatile reports whether the attribute key is dropped on copy.
func IsVolatile(key string) bool {
	_, ok := volatileAttrs[key]
	return ok
}

// Value is one typed fact about a person as read from a store.
type Value struct {
	Kind  Kind              `json:"kind" yaml:"kind"`
	Text  string            `json:"text" yaml:"text"`
	Attrs map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Attr returns the attribute value for key, or "".
func (v Value) Attr(key string) string {
	if v.Attrs == nil {
		return ""
	}
	return v.Attrs[key]
}

// Portable returns a copy of v without volatile attributes. The receiver is
// left untouched.
func (v Value) Portable() Value {
	out := Value{Kind: v.Kind, Text: v.Text}
	for k, a := range v.Attrs {
		if IsVolatile(k) {
			continue
		}
		if out.Attrs == nil {
			out.Attrs = make(map[string]string, len(v.Attrs))
		}
		out.Attrs[k] = a
	}
	return out
}

// WithAttr returns a copy of v with key set to val. An empty val removes key.
func (v Value) WithAttr(key, val string) Value {
	out := Value{Kind: v.Kind, Text: v.Text, Attrs: make(map[string]string, len(v.Attrs)+1)}
	for k, a := range v.Attrs {
		out.Attrs[k] = a
	}
	if val == "" {
		delete(out.Attrs, key)
	} else {
		out.Attrs[key] = val
	}
	if len(out.Attrs) == 0 {
		out.Attrs = nil
	}
	return out
}

// Partition splits values into phones, emails and everything else,
// preserving order within each slice.
func Partition(values []Value) (phones, emails, others []Value) {
	for _, v := range values {
		switch v.Kind {
		case Phone:
			phones = append(phones, v)
		case Email:
			emails = append(emails, v)
		default:
			others = append(others, v)
		}
	}
	return phones, emails, others
}
