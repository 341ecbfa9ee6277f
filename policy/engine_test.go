package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name   string
		user   string
		owner  string
		action string
		want   bool
	}{
		{"owner reads", "u1", "u1", ActionRead, true},
		{"owner continues", "u1", "u1", ActionContinue, true},
		{"stranger reads", "u2", "u1", ActionRead, false},
		{"stranger continues", "u2", "u1", ActionContinue, false},
		{"anonymous", "", "", ActionRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := engine.AllowSession(ctx, tt.user, "student", tt.owner, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestCustomPolicyWithReason(t *testing.T) {
	ctx := context.Background()
	custom := `
package session_access

default decision := {"decision": "deny", "reason": "not owner"}

decision := {"decision": "allow", "reason": "parent"} if {
	input.role == "parent"
	input.action == "read"
}
`
	engine, err := NewEngine(ctx, custom)
	require.NoError(t, err)

	decision, reason, err := engine.Evaluate(ctx, SessionAccessInput{UserID: "t1", Role: "parent", SessionOwner: "u1", Action: ActionRead})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
	assert.Equal(t, "parent", reason)

	decision, reason, err = engine.Evaluate(ctx, SessionAccessInput{UserID: "t1", Role: "parent", SessionOwner: "u1", Action: ActionContinue})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)
	assert.Equal(t, "not owner", reason)
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()

	engine, err := NewEngineFromFile(ctx, "")
	require.NoError(t, err)
	allowed, err := engine.AllowSession(ctx, "u1", "", "u1", ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	path := filepath.Join(t.TempDir(), "open.rego")
	require.NoError(t, os.WriteFile(path, []byte("package session_access\n\ndecision := \"allow\"\n"), 0o600))
	engine, err = NewEngineFromFile(ctx, path)
	require.NoError(t, err)
	allowed, err = engine.AllowSession(ctx, "u2", "", "u1", ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = NewEngineFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}

func TestNewEngineRejectsBadRego(t *testing.T) {
	_, err := NewEngine(context.Background(), "package session_access\n\ndecision = {")
	assert.Error(t, err)
}
