package authgate

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role is the canonical account role. The closed set is {RoleKP, RoleKR,
// RoleAdmin}; any other non-empty value is a lenient pass-through produced
// by [CanonicalizeRole] for inputs outside the alias table.
type Role string

const (
	// RoleKP is the local service provider role ("key person").
	RoleKP Role = "kp"
	// RoleKR is the remote requester role ("key requester").
	RoleKR Role = "kr"
	// RoleAdmin is the administrator role.
	RoleAdmin Role = "admin"
)

// IsCanonical reports whether r is one of the three closed roles.
func (r Role) IsCanonical() bool {
	return r == RoleKP || r == RoleKR || r == RoleAdmin
}

// WalletType identifies the crypto network a provider wallet belongs to.
type WalletType string

const (
	// WalletEthereum is an exported wallet type identifier.
	WalletEthereum WalletType = "ethereum"
	// WalletBitcoin is an exported wallet type identifier.
	WalletBitcoin WalletType = "bitcoin"
	// WalletSolana is an exported wallet type identifier.
	WalletSolana WalletType = "solana"
)

// UserRecord is the platform view of a backend-supplied user object.
// Canonical fields are explicit; every other key the backend sends survives
// round trips in Extra so alias lookups (city/neighborhood, wallet key
// spellings, isVerified) keep working against arbitrary backends.
//
// The record is exclusively owned by [Context]; gates only ever read the
// derived, normalized projection in [Snapshot].
type UserRecord struct {
	ID    string
	Email string
	Name  string
	Role  Role

	// EmailVerified is the explicit backend flag; nil means the backend
	// sent nothing and verification is decided by the other signals.
	EmailVerified   *bool
	EmailVerifiedAt *time.Time

	// ProfileComplete is the explicit backend flag; nil means the value is
	// inferred (or overridden) by the account status deriver.
	ProfileComplete *bool

	RequiresLocationConfirmation bool

	// Extra holds all backend fields without a canonical slot.
	Extra map[string]any
}

// Clone returns a deep-enough copy: Extra is copied one level, which covers
// every mutation this package performs.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	if u.EmailVerified != nil {
		v := *u.EmailVerified
		out.EmailVerified = &v
	}
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		out.EmailVerifiedAt = &t
	}
	if u.ProfileComplete != nil {
		v := *u.ProfileComplete
		out.ProfileComplete = &v
	}
	if u.Extra != nil {
		out.Extra = make(map[string]any, len(u.Extra))
		for k, v := range u.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Field returns the first non-empty value among the given keys, checking
// canonical fields before the Extra bag. Empty string means no key matched.
func (u *UserRecord) Field(keys ...string) string {
	if u == nil {
		return ""
	}
	for _, k := range keys {
		var v any
		switch k {
		case "id":
			v = u.ID
		case "email":
			v = u.Email
		case "name":
			v = u.Name
		case "role":
			v = string(u.Role)
		default:
			v = u.Extra[k]
		}
		if s := stringify(v); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

const (
	keyID                = "id"
	keyEmail             = "email"
	keyName              = "name"
	keyRole              = "role"
	keyEmailVerified     = "email_verified"
	keyEmailVerifiedAt   = "email_verified_at"
	keyProfileComplete   = "profile_complete"
	keyRequiresLocConfrm = "requiresLocationConfirmation"
)

// MarshalJSON flattens the record back into the backend's wire shape:
// canonical fields plus the Extra bag at the top level.
func (u UserRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+8)
	for k, v := range u.Extra {
		m[k] = v
	}
	if u.ID != "" {
		m[keyID] = u.ID
	}
	if u.Email != "" {
		m[keyEmail] = u.Email
	}
	if u.Name != "" {
		m[keyName] = u.Name
	}
	if u.Role != "" {
		m[keyRole] = string(u.Role)
	}
	if u.EmailVerified != nil {
		m[keyEmailVerified] = *u.EmailVerified
	}
	if u.EmailVerifiedAt != nil {
		m[keyEmailVerifiedAt] = u.EmailVerifiedAt.UTC().Format(time.RFC3339)
	}
	if u.ProfileComplete != nil {
		m[keyProfileComplete] = *u.ProfileComplete
	}
	if u.RequiresLocationConfirmation {
		m[keyRequiresLocConfrm] = true
	}
	return json.Marshal(m)
}

// UnmarshalJSON folds recognized keys into canonical fields and keeps the
// rest in Extra. Unparseable values degrade into Extra rather than erroring
// so a single odd field cannot corrupt the whole session snapshot.
func (u *UserRecord) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*u = userFromMap(m)
	return nil
}

func userFromMap(m map[string]any) UserRecord {
	u := UserRecord{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case keyID:
			u.ID = stringify(v)
		case keyEmail:
			u.Email = stringify(v)
		case keyName:
			u.Name = stringify(v)
		case keyRole:
			u.Role = Role(stringify(v))
		case keyEmailVerified:
			if b, ok := v.(bool); ok {
				u.EmailVerified = &b
			} else if v != nil {
				u.Extra[k] = v
			}
		case keyEmailVerifiedAt:
			if t, ok := parseTimestamp(v); ok {
				u.EmailVerifiedAt = &t
			} else if truthy(v) {
				// Keep the raw truthy value; it still counts as a
				// verification signal.
				u.Extra[k] = v
			}
		case keyProfileComplete:
			if b, ok := v.(bool); ok {
				u.ProfileComplete = &b
			} else if v != nil {
				u.Extra[k] = v
			}
		case keyRequiresLocConfrm:
			u.RequiresLocationConfirmation = truthy(v)
		default:
			u.Extra[k] = v
		}
	}
	if len(u.Extra) == 0 {
		u.Extra = nil
	}
	return u
}

// ApplyUpdates merges partial wire-shaped updates into the record and
// returns the merged copy. The receiver is not modified.
func (u *UserRecord) ApplyUpdates(updates map[string]any) *UserRecord {
	if u == nil {
		return nil
	}
	raw, err := json.Marshal(*u)
	if err != nil {
		return u.Clone()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return u.Clone()
	}
	for k, v := range updates {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	merged := userFromMap(m)
	return &merged
}

// Session is the persisted auth snapshot. Token and User are both present
// or both absent; ExpiresAt is milliseconds since the Unix epoch.
type Session struct {
	Token     string      `json:"token"`
	User      *UserRecord `json:"user"`
	ExpiresAt int64       `json:"expiresAt"`
}

// DerivedStatus is the computed projection of a UserRecord. It is never a
// source of truth: every field is re-derivable from the raw record plus the
// role-specific profile rules.
type DerivedStatus struct {
	// UserWithProfile is the normalized record: canonical role, resolved
	// email_verified, and a concrete profile_complete decision.
	UserWithProfile *UserRecord

	MissingProfileFields         []string
	ProfileComplete              bool
	RequiresLocationConfirmation bool
	EmailVerified                bool
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// truthy mirrors JavaScript Boolean() for the value shapes JSON produces.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return v != nil
	}
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		// Values this large are millisecond epochs.
		if t > 1e12 {
			return time.UnixMilli(int64(t)), true
		}
		return time.Unix(int64(t), 0), true
	default:
		return time.Time{}, false
	}
}
