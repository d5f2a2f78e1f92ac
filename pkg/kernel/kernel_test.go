package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthContext_HasScope(t *testing.T) {
	ac := &AuthContext{UserID: "u1", Scopes: []string{"connectors:*", "jobs:read"}}

	assert.True(t, ac.IsValid())
	assert.True(t, ac.HasScope("connectors:write"))
	assert.True(t, ac.HasScope("jobs:read"))
	assert.False(t, ac.HasScope("jobs:write"))
	assert.False(t, ac.HasScope("connectorsx:read"))
	assert.False(t, ac.IsAdmin())

	admin := &AuthContext{UserID: "root", Scopes: []string{"*"}}
	assert.True(t, admin.IsAdmin())
}

func TestAuthContext_IsValid(t *testing.T) {
	var nilCtx *AuthContext
	assert.False(t, nilCtx.IsValid())
	assert.False(t, (&AuthContext{}).IsValid())
}
