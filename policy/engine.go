// Package policy decides who may read or continue a tutor session.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decisions returned by the session access policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Actions a caller can take on a session.
const (
	ActionRead     = "read"
	ActionContinue = "continue"
)

// SessionAccessInput is the document evaluated by the policy.
type SessionAccessInput struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	SessionOwner string `json:"session_owner"`
	Action       string `json:"action"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_access.decision"),
		rego.Module("session_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate returns the decision for input and a reason when the policy gives one.
func (e *Engine) Evaluate(ctx context.Context, input SessionAccessInput) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDeny, "undefined decision", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			decision = DecisionDeny
		}
		return decision, reason, nil
	default:
		return DecisionDeny, "unexpected return type", nil
	}
}

// AllowSession reports whether the caller may perform action on a session owned by owner.
func (e *Engine) AllowSession(ctx context.Context, userID, role, owner, action string) (bool, error) {
	decision, _, err := e.Evaluate(ctx, SessionAccessInput{
		UserID:       userID,
		Role:         role,
		SessionOwner: owner,
		Action:       action,
	})
	if err != nil {
		return false, err
	}
	return decision == DecisionAllow, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package session_access

default decision := "deny"

# Owners may read and continue their own sessions.
decision := "allow" if {
	input.user_id != ""
	input.user_id == input.session_owner
}
`
