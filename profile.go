package authgate

import (
	"regexp"
	"strings"
)

// Missing-field identifiers reported by MissingProfileFields.
const (
	FieldName                 = "name"
	FieldCityNeighborhood     = "city_neighborhood"
	FieldRole                 = "role"
	FieldWalletType           = "wallet_type"
	FieldWalletAddress        = "wallet_address"
	FieldWalletAddressInvalid = "wallet_address_invalid"
	FieldPaypalAccount        = "paypal_account"
)

var (
	ethereumAddrRe      = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	bitcoinLegacyAddrRe = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	bitcoinBech32AddrRe = regexp.MustCompile(`^bc1[ac-hj-np-z02-9]{25,90}$`)
	solanaAddrRe        = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidateWalletAddress checks a wallet address against the format of the
// given network. Empty addresses are invalid; unknown wallet types are
// accepted (the address cannot be judged).
func ValidateWalletAddress(walletType, address string) bool {
	t := strings.ToLower(strings.TrimSpace(walletType))
	a := strings.TrimSpace(address)
	if a == "" {
		return false
	}
	switch WalletType(t) {
	case WalletEthereum:
		return ethereumAddrRe.MatchString(a)
	case WalletBitcoin:
		return bitcoinLegacyAddrRe.MatchString(a) || bitcoinBech32AddrRe.MatchString(a)
	case WalletSolana:
		return solanaAddrRe.MatchString(a)
	default:
		return true
	}
}

// MissingProfileFields reports which role-dependent profile fields are
// absent or invalid. With no role assigned the result is exactly
// [FieldRole]: nothing else can be validated until a role exists.
//
// Provider (kp) accounts need a wallet type and a format-valid wallet
// address; a present but malformed address reports
// FieldWalletAddressInvalid instead of FieldWalletAddress. Requester (kr)
// accounts need a payment-account identifier.
func MissingProfileFields(u *UserRecord) []string {
	if u == nil {
		return nil
	}

	role := CanonicalizeRole(string(u.Role))
	if role == "" {
		return []string{FieldRole}
	}

	var missing []string
	if u.Field("name") == "" {
		missing = append(missing, FieldName)
	}
	if u.Field("city", "neighborhood", "cityNeighborhood", "city_neighborhood") == "" {
		missing = append(missing, FieldCityNeighborhood)
	}

	switch role {
	case RoleKP:
		walletType := u.Field("walletType", "wallet_type", "cryptoWalletType")
		walletAddr := u.Field("walletAddress", "wallet_address", "cryptoWalletAddress")
		if walletType == "" {
			missing = append(missing, FieldWalletType)
		}
		if walletAddr == "" {
			missing = append(missing, FieldWalletAddress)
		}
		if walletType != "" && walletAddr != "" && !ValidateWalletAddress(walletType, walletAddr) {
			missing = append(missing, FieldWalletAddressInvalid)
		}
	case RoleKR:
		if u.Field("paypalAccount", "paypal_account", "paypalEmail") == "" {
			missing = append(missing, FieldPaypalAccount)
		}
	}
	return missing
}

// OverrideLookup reads the manual profile-completeness override. The second
// return value reports whether an override is set at all. A nil lookup
// means "no override source".
type OverrideLookup func() (value, ok bool)

// profileComplete resolves the three-tier completeness precedence:
// explicit backend flag, then manual override, then inference from
// MissingProfileFields. The ordering is load-bearing; the override tier is
// what lets the gate chain be exercised without a backend.
func profileComplete(u *UserRecord, override OverrideLookup) bool {
	if u == nil {
		return false
	}
	if u.ProfileComplete != nil {
		return *u.ProfileComplete
	}
	if override != nil {
		if v, ok := override(); ok {
			return v
		}
	}
	return len(MissingProfileFields(u)) == 0
}

// emailVerifiedSignal applies the OR-of-signals policy: an explicit
// verified flag, the isVerified alias, or any truthy verification timestamp
// marks the account verified.
//
// This is deliberately lenient and preserved as-is: one stale truthy alias
// from any backend integration is enough to mark a user verified.
func emailVerifiedSignal(u *UserRecord) bool {
	if u == nil {
		return false
	}
	if u.EmailVerified != nil && *u.EmailVerified {
		return true
	}
	if truthy(u.Extra["isVerified"]) {
		return true
	}
	if u.EmailVerifiedAt != nil {
		return true
	}
	return truthy(u.Extra[keyEmailVerifiedAt])
}

// DeriveStatus computes the full derived projection of a raw user record.
// For a nil user every flag is false and the field list empty. The returned
// UserWithProfile is a normalized copy: canonical role, resolved
// email_verified, and a concrete profile_complete value following the
// explicit > override > inferred precedence.
func DeriveStatus(u *UserRecord, override OverrideLookup) DerivedStatus {
	if u == nil {
		return DerivedStatus{}
	}

	normalized := u.Clone()
	normalized.Role = CanonicalizeRole(string(u.Role))

	verified := emailVerifiedSignal(u)
	normalized.EmailVerified = &verified

	complete := profileComplete(normalized, override)
	normalized.ProfileComplete = &complete

	return DerivedStatus{
		UserWithProfile:              normalized,
		MissingProfileFields:         MissingProfileFields(normalized),
		ProfileComplete:              complete,
		RequiresLocationConfirmation: normalized.RequiresLocationConfirmation,
		EmailVerified:                verified,
	}
}
