package authgate

import "strings"

// roleAliases maps legacy and external-provider spellings onto the three
// canonical roles.
var roleAliases = map[string]Role{
	"knowledge_provider":  RoleKP,
	"provider":            RoleKP,
	"knowledge_requester": RoleKR,
	"requester":           RoleKR,
	"administrator":       RoleAdmin,
	"admin":               RoleAdmin,
}

// CanonicalizeRole converts any role input into a canonical role where
// possible. The input is trimmed and lower-cased; canonical values pass
// through, known aliases are mapped, and anything else is returned in its
// normalized form rather than rejected. Empty input yields the empty role.
//
// This lenient fallback is deliberate: an unrecognized role must not lock a
// user out, only fail role allow-lists downstream.
func CanonicalizeRole(raw string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if r == "" {
		return ""
	}
	if r.IsCanonical() {
		return r
	}
	if mapped, ok := roleAliases[string(r)]; ok {
		return mapped
	}
	return r
}
