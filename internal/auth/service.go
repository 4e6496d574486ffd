package auth

import (
	"context"
	"errors"
	"strings"

	"keygate.org/internal/audit"
	"keygate.org/internal/catalog"
	"keygate.org/internal/ec2"
	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
	"keygate.org/internal/token"
)

// Service orchestrates authentication: it resolves identity through the
// credential store, verifies the supplied factor, resolves the caller's
// catalog, and has the issuer mint a bound token. Each call is an
// independent unit of work; no state is carried between attempts.
type Service struct {
	identity *identity.Service
	tokens   *token.Issuer
	catalog  *catalog.Resolver
	creds    *ec2.Service
}

func NewService(ident *identity.Service, tokens *token.Issuer, cat *catalog.Resolver, creds *ec2.Service) (*Service, error) {
	if ident == nil {
		return nil, errors.New("identity service is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if cat == nil {
		return nil, errors.New("catalog resolver is required")
	}
	if creds == nil {
		return nil, errors.New("ec2 credential service is required")
	}
	return &Service{identity: ident, tokens: tokens, catalog: cat, creds: creds}, nil
}

// Authentication is the successful outcome: the minted token plus the
// catalog visible to the caller. The catalog rides alongside the token
// rather than inside it.
type Authentication struct {
	Token   token.Token
	Catalog []catalog.Endpoint
}

// AuthenticatePassword authenticates a user by id and password, optionally
// scoped to a tenant. A missing user and a wrong password are
// indistinguishable to the caller.
func (s *Service) AuthenticatePassword(ctx context.Context, userID, password, tenantID string) (Authentication, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)

	store := s.identity.Store()
	if err := store.CheckPassword(ctx, userID, password); err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			_ = audit.LogEvent(ctx, "authn.password.rejected", map[string]any{
				"user_id": userID,
			})
			obs.ObserveAuthentication("password", "rejected")
			return Authentication{}, ErrInvalidCredential
		}
		return Authentication{}, err
	}

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Authentication{}, ErrInvalidCredential
		}
		return Authentication{}, err
	}

	var tenant *identity.Tenant
	if tenantID != "" {
		memberTenants, err := store.TenantsForUser(ctx, userID)
		if err != nil {
			return Authentication{}, err
		}
		if !containsString(memberTenants, tenantID) {
			_ = audit.LogEvent(ctx, "authn.tenant.rejected", map[string]any{
				"user_id":   userID,
				"tenant_id": tenantID,
			})
			obs.ObserveAuthentication("password", "rejected")
			return Authentication{}, ErrTenantNotAuthorized
		}
		t, err := store.GetTenant(ctx, tenantID)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return Authentication{}, ErrTenantNotAuthorized
			}
			return Authentication{}, err
		}
		tenant = &t
	}

	authn, err := s.issueToken(ctx, user, tenant)
	if err != nil {
		return Authentication{}, err
	}
	_ = audit.LogEvent(ctx, "authn.password.issued", map[string]any{
		"user_id":   user.ID,
		"tenant_id": tenantID,
		"token_id":  authn.Token.ID,
	})
	obs.ObserveAuthentication("password", "issued")
	return authn, nil
}

// AuthenticateSigned authenticates an EC2-style signed request. The
// credential fixes both the user and the tenant; any tenant the caller
// supplies alongside the signature is ignored.
func (s *Service) AuthenticateSigned(ctx context.Context, req ec2.Request) (Authentication, error) {
	cred, err := s.creds.GetCredential(ctx, req.Access)
	if err != nil {
		if errors.Is(err, ec2.ErrNotFound) {
			_ = audit.LogEvent(ctx, "authn.signed.rejected", map[string]any{
				"access": req.Access,
				"reason": "unknown access key",
			})
			obs.ObserveAuthentication("ec2", "rejected")
			return Authentication{}, ErrInvalidCredential
		}
		return Authentication{}, err
	}

	if !ec2.Verify(cred.Secret, req) {
		_ = audit.LogEvent(ctx, "authn.signed.rejected", map[string]any{
			"access": req.Access,
			"reason": "signature mismatch",
		})
		obs.ObserveAuthentication("ec2", "rejected")
		return Authentication{}, ErrInvalidCredential
	}

	store := s.identity.Store()
	user, err := store.GetUser(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Authentication{}, ErrInvalidCredential
		}
		return Authentication{}, err
	}
	tenantRec, err := store.GetTenant(ctx, cred.TenantID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Authentication{}, ErrInvalidCredential
		}
		return Authentication{}, err
	}
	tenant := &tenantRec

	authn, err := s.issueToken(ctx, user, tenant)
	if err != nil {
		return Authentication{}, err
	}
	_ = audit.LogEvent(ctx, "authn.signed.issued", map[string]any{
		"user_id":   user.ID,
		"tenant_id": cred.TenantID,
		"token_id":  authn.Token.ID,
	})
	obs.ObserveAuthentication("ec2", "issued")
	return authn, nil
}

// issueToken is the common tail of both authentication paths: resolve
// metadata and catalog, expand role ids into full records, mint the token.
func (s *Service) issueToken(ctx context.Context, user identity.User, tenant *identity.Tenant) (Authentication, error) {
	store := s.identity.Store()

	md := identity.Metadata{UserID: user.ID, Roles: identity.RoleSet{}}
	tenantID := ""
	if tenant != nil {
		tenantID = tenant.ID
		md.TenantID = tenantID
		got, err := store.GetMetadata(ctx, user.ID, tenantID)
		switch {
		case err == nil:
			md = got
		case errors.Is(err, identity.ErrNotFound):
			// No grants yet; the token carries an empty role set.
		default:
			return Authentication{}, err
		}
	}

	endpoints, err := s.catalog.Resolve(ctx, user.ID, tenantID, md)
	if err != nil {
		return Authentication{}, err
	}

	// Missing role ids are omitted, not an error: a role deleted after the
	// grant should not block authentication.
	var roles []identity.Role
	for _, roleID := range md.Roles.List() {
		role, err := store.GetRole(ctx, roleID)
		if errors.Is(err, identity.ErrNotFound) {
			continue
		}
		if err != nil {
			return Authentication{}, err
		}
		roles = append(roles, role)
	}

	tok, err := s.tokens.Issue(ctx, user, tenant, md, roles)
	if err != nil {
		return Authentication{}, err
	}
	obs.ObserveTokenIssued()
	return Authentication{Token: tok, Catalog: endpoints}, nil
}

// GetToken returns the bound snapshot for a token id.
func (s *Service) GetToken(ctx context.Context, id string) (token.Token, error) {
	return s.tokens.Get(ctx, id)
}

// DeleteToken removes a single token record.
func (s *Service) DeleteToken(ctx context.Context, id string) error {
	return s.tokens.Delete(ctx, id)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
