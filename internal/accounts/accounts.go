package accounts

import (
	"fmt"
	"sort"
	"strings"
)

// Ref names one account: the pair (name, type) owns raw records.
type Ref struct {
	Name string `json:"account_name" yaml:"name"`
	Type string `json:"account_type" yaml:"type"`
}

func (r Ref) String() string {
	return r.Name + ":" + r.Type
}

// ParseRef parses "name:type". The type may itself contain colons.
func ParseRef(s string) (Ref, error) {
	name, typ, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || name == "" || typ == "" {
		return Ref{}, fmt.Errorf("invalid account %q (want name:type)", s)
	}
	return Ref{Name: name, Type: typ}, nil
}

// ProfileKind is the closed set of account capacity models.
type ProfileKind string

const (
	// Standard accounts accept any number of fields of any kind.
	Standard ProfileKind = "standard"
	// Constrained accounts store contacts in fixed slots (SIM style storage)
	// and cap how many phones and emails one record may hold.
	Constrained ProfileKind = "constrained"
)

// Profile describes what an account type can store.
type Profile struct {
	Type           string      `yaml:"type"`
	Kind           ProfileKind `yaml:"profile"`
	MaxPhones      *int        `yaml:"max_phones,omitempty"`
	MaxEmails      *int        `yaml:"max_emails,omitempty"`
	MultiplePhotos bool        `yaml:"multiple_photos,omitempty"`
	Invitable      bool        `yaml:"invitable,omitempty"`
}

// StandardProfile returns the profile used for unknown account types.
func StandardProfile(accountType string) Profile {
	return Profile{Type: accountType, Kind: Standard}
}

// MaxPhoneFields returns the number of additional phone slots, if capped.
func (p Profile) MaxPhoneFields() (int, bool) {
	switch p.Kind {
	case Constrained:
		if p.MaxPhones == nil {
			return 0, false
		}
		return *p.MaxPhones, true
	case Standard:
		return 0, false
	}
	return 0, false
}

// MaxEmailFields returns the number of additional email slots, if capped.
func (p Profile) MaxEmailFields() (int, bool) {
	switch p.Kind {
	case Constrained:
		if p.MaxEmails == nil {
			return 0, false
		}
		return *p.MaxEmails, true
	case Standard:
		return 0, false
	}
	return 0, false
}

// SupportsMultiplePhotos reports whether a record may hold several photos.
func (p Profile) SupportsMultiplePhotos() bool {
	return p.MultiplePhotos
}

// IsCapacityConstrained reports whether the account stores fixed slots.
func (p Profile) IsCapacityConstrained() bool {
	switch p.Kind {
	case Constrained:
		return true
	case Standard:
		return false
	}
	return false
}

// Validate checks the profile is internally consistent.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("account profile: type is required")
	}
	switch p.Kind {
	case Standard:
		if p.MaxPhones != nil || p.MaxEmails != nil {
			return fmt.Errorf("account profile %s: standard accounts have no capacity limits", p.Type)
		}
	case Constrained:
		if p.MaxPhones != nil && *p.MaxPhones < 0 {
			return fmt.Errorf("account profile %s: max_phones cannot be negative", p.Type)
		}
		if p.MaxEmails != nil && *p.MaxEmails < 0 {
			return fmt.Errorf("account profile %s: max_emails cannot be negative", p.Type)
		}
	default:
		return fmt.Errorf("account profile %s: unknown profile %q", p.Type, p.Kind)
	}
	return nil
}

// Registry resolves account types to profiles.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry. Profiles with an empty Kind default to
// Standard.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Kind == "" {
			p.Kind = Standard
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.profiles[p.Type]; dup {
			return nil, fmt.Errorf("account profile %s defined twice", p.Type)
		}
		r.profiles[p.Type] = p
	}
	return r, nil
}

// Profile returns the profile for accountType, or a standard profile.
func (r *Registry) Profile(accountType string) Profile {
	if r != nil {
		if p, ok := r.profiles[accountType]; ok {
			return p
		}
	}
	return StandardProfile(accountType)
}

// InvitableTypes lists account types that accept invitations, sorted.
func (r *Registry) InvitableTypes() []string {
	if r == nil {
		return nil
	}
	var out []string
	for t, p := range r.profiles {
		if p.Invitable {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
