package kernel

import "strings"

// AuthContext is the authenticated caller injected on every protected request
type AuthContext struct {
	UserID UserID   `json:"user_id"`
	Email  string   `json:"email"`
	Scopes []string `json:"scopes"`
}

// IsValid reports whether the context identifies a user
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.UserID.IsEmpty()
}

// HasScope checks for an exact scope, "*" or a "prefix:*" wildcard
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope || s == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(s, ":*"); ok && strings.HasPrefix(scope, prefix+":") {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context carries admin scopes
func (ac *AuthContext) IsAdmin() bool {
	return ac.HasScope("*") || ac.HasScope("admin:*")
}

type ContextKey string

const (
	// AuthContextKey stores the *AuthContext in fiber locals
	AuthContextKey ContextKey = "auth"

	RequestIDKey ContextKey = "request_id"
)
