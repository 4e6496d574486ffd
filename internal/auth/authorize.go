package auth

import (
	"context"
	"errors"
	"fmt"

	"keygate.org/internal/audit"
	"keygate.org/internal/obs"
	"keygate.org/internal/token"
)

// RequestContext carries what the transport layer asserts about a caller:
// an upstream-trusted admin flag and the bound token id, if any.
type RequestContext struct {
	IsAdmin bool
	TokenID string
}

// Claim predicates used by Authorize. Role claims are "role:<name>".
const (
	ClaimIsAdmin = "is_admin"
)

// RoleClaim builds the claim string for a named role.
func RoleClaim(name string) string {
	return "role:" + name
}

// UserClaim builds the claim string for a user id.
func UserClaim(id string) string {
	return "user_id:" + id
}

// TenantClaim builds the claim string for a tenant id.
func TenantClaim(id string) string {
	return "tenant_id:" + id
}

// Decision is the gate's only outcome: allow or deny plus a reason code for
// logging. Resolution failures become denials, never escaping errors.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(reason string) Decision {
	obs.ObserveAuthorize("deny")
	return Decision{Allowed: false, Reason: reason}
}

func allow(reason string) Decision {
	obs.ObserveAuthorize("allow")
	return Decision{Allowed: true, Reason: reason}
}

// Authorize decides whether the caller may perform a privileged operation.
// Fails closed. A caller-asserted admin flag from the upstream trust
// boundary allows immediately; otherwise the bound token's snapshot is
// resolved into a claim set and any single required claim matching allows.
func (s *Service) Authorize(ctx context.Context, rc RequestContext, required ...string) Decision {
	if rc.IsAdmin {
		return allow("admin asserted upstream")
	}
	if len(required) == 0 {
		return deny("no claims required, failing closed")
	}
	if rc.TokenID == "" {
		return deny("no token bound to request")
	}

	tok, err := s.tokens.Get(ctx, rc.TokenID)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrNotFound):
			return deny("token not found")
		case errors.Is(err, token.ErrExpired):
			return deny("token expired")
		default:
			return deny(fmt.Sprintf("token resolution failed: %v", err))
		}
	}

	claims := claimSet(tok)
	for _, want := range required {
		if _, ok := claims[want]; ok {
			_ = audit.LogEvent(ctx, "authz.allowed", map[string]any{
				"token_id": rc.TokenID,
				"claim":    want,
			})
			return allow("claim matched: " + want)
		}
	}
	return deny("no required claim present")
}

func claimSet(tok token.Token) map[string]struct{} {
	claims := map[string]struct{}{
		UserClaim(tok.User.ID): {},
	}
	if tok.Tenant != nil {
		claims[TenantClaim(tok.Tenant.ID)] = struct{}{}
	}
	for _, role := range tok.Roles {
		claims[RoleClaim(role.Name)] = struct{}{}
	}
	return claims
}
