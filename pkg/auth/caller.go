package auth

import (
	"context"
	"strings"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Caller is the authenticated principal of a request. Token is the raw bearer
// credential, kept so it can be forwarded to downstream services.
type Caller struct {
	Subject string
	Token   string
	Email   string
	Roles   []string
}

// HasRole reports whether the caller holds role, ignoring case and any
// ROLE_ prefix.
func (c Caller) HasRole(role string) bool {
	role = NormalizeRole(role)
	if role == "" {
		return false
	}
	for _, r := range c.Roles {
		if NormalizeRole(r) == role {
			return true
		}
	}
	return false
}

func (c Caller) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// NormalizeRole upper-cases a role name and strips a ROLE_ prefix.
func NormalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(role, "ROLE_")
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
