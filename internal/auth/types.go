package auth

import (
	"context"
	"errors"
	"slices"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read receiver state but not change it.
	RoleViewer Role = "viewer"

	// RoleController can edit queues and drive playback.
	RoleController Role = "controller"
)

// ValidRoles is the set of valid caller roles.
var ValidRoles = []Role{RoleViewer, RoleController}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Caller is an authenticated API client.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrNoCredentials = errors.New("no credentials presented")
	ErrKeyInvalid    = errors.New("invalid API key")
	ErrTokenInvalid  = errors.New("invalid token")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrNoSecret      = errors.New("jwt secret not configured")
)

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
