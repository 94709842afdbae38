package auth

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// Resolver mode names mirror the AUTH_MODE configuration values.
const (
	ModeNone        = "none"
	ModeForwardAuth = "forwardauth"
)

// Resolver produces a caller Identity from request headers.
//
// Mode "none" returns a fixed local admin identity and never inspects
// headers. Mode "forwardauth" trusts the headers a reverse proxy injects
// after authenticating the user; their absence means the proxy is
// misconfigured or bypassed and resolves to ErrUnauthenticated.
type Resolver struct {
	Mode         string
	HeaderUser   string
	HeaderEmail  string
	HeaderGroups string

	// AdminGroup is the group granted to the synthetic local identity
	// in mode "none" so the calculator yields the full tier.
	AdminGroup string

	Calc *Calculator
}

// Resolve computes the request identity. Permissions are populated from
// the calculator so handlers never recompute them.
func (r *Resolver) Resolve(h http.Header) (Identity, error) {
	switch r.Mode {
	case ModeNone:
		groups := []string{r.AdminGroup}
		return Identity{
			ID:          "local",
			Email:       "local@localhost",
			DisplayName: "Local Admin",
			Groups:      groups,
			Permissions: r.Calc.Calculate(groups),
		}, nil

	case ModeForwardAuth:
		userID := strings.TrimSpace(h.Get(r.HeaderUser))
		email := strings.TrimSpace(h.Get(r.HeaderEmail))
		if userID == "" || email == "" {
			return Identity{}, fmt.Errorf("%w: missing required headers %s, %s",
				ErrUnauthenticated, r.HeaderUser, r.HeaderEmail)
		}
		groups := SplitGroups(h.Get(r.HeaderGroups))
		return Identity{
			ID:          userID,
			Email:       email,
			DisplayName: userID,
			Groups:      groups,
			Permissions: r.Calc.Calculate(groups),
		}, nil

	default:
		return Identity{}, fmt.Errorf("%w: unknown auth mode %q", ErrUnauthenticated, r.Mode)
	}
}

// SplitGroups parses a forwarded groups header. Delimiters are comma,
// semicolon and any whitespace; tokens are trimmed and empties dropped.
// Order and duplicates are irrelevant (set semantics downstream).
func SplitGroups(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
