package auth

import "errors"

var (
	// ErrInvalidCredential is the single externally visible authentication
	// failure. A missing user, a wrong password, an unknown access key and a
	// bad signature all collapse into it so callers cannot enumerate valid
	// identities. Internal logs keep the distinction.
	ErrInvalidCredential = errors.New("auth: invalid credential")

	// ErrTenantNotAuthorized means the authenticated user has no membership
	// in the requested tenant.
	ErrTenantNotAuthorized = errors.New("auth: tenant not authorized")

	// ErrUnauthorized is the policy gate's denial.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
