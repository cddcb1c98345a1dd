package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const registrationQuery = "data.portal.registration.allow"

// Default registration policy: self-registration may only create plain users.
// Admins are provisioned out of band (cmd/seed).
const defaultRegoPolicy = `package portal.registration

default allow := false

allow if {
	input.requested_role == "user"
}
`

// OPAEvaluator evaluates the registration policy with an in-process OPA Rego engine.
// The query is compiled once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (package portal.registration, rule allow).
// An empty policy selects the built-in default.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"registration.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile registration policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(registrationQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare registration policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile loads the policy from path, or the default policy if path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registration policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// AllowRegistration reports whether the policy allows in. Anything other than a boolean true denies.
func (e *OPAEvaluator) AllowRegistration(ctx context.Context, in RegistrationInput) (bool, error) {
	input := map[string]interface{}{
		"email":          in.Email,
		"username":       in.Username,
		"requested_role": string(in.RequestedRole),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval registration policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

// HealthCheck evaluates the compiled policy against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.AllowRegistration(ctx, RegistrationInput{RequestedRole: "user"}); err != nil {
		return err
	}
	return nil
}
