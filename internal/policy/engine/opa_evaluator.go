package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const defaultOTPCodeLength = 6

// DefaultRegoPolicy decides demo mode from backend configuration and refuses demo mode in production.
const DefaultRegoPolicy = `package crm.session

default demo_mode = false
default demo_allowed = true
default otp_code_length = 6

demo_mode if {
	not input.backend_configured
}

demo_allowed = false if {
	input.env == "production"
}
`

// OPAEvaluator evaluates the session-mode policy using OPA Rego.
type OPAEvaluator struct {
	policy string
}

// NewOPAEvaluator returns an evaluator for the given Rego source. Empty policy uses DefaultRegoPolicy.
func NewOPAEvaluator(policy string) *OPAEvaluator {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	return &OPAEvaluator{policy: policy}
}

// NewOPAEvaluatorFromFile reads the policy from path. Empty path uses DefaultRegoPolicy.
func NewOPAEvaluatorFromFile(path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(""), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return NewOPAEvaluator(string(b)), nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": DefaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query("data.crm.session.demo_mode"),
		rego.Compiler(compiler),
		rego.Input(map[string]interface{}{"env": "", "backend_configured": false}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateMode evaluates the session-mode policy. Compile or evaluation failures are logged and
// the built-in defaults are returned with a nil error.
func (e *OPAEvaluator) EvaluateMode(ctx context.Context, in ModeInput) (ModeResult, error) {
	input := map[string]interface{}{
		"env":                in.Env,
		"backend_configured": in.BackendConfigured,
	}
	result, err := e.evaluate(ctx, input)
	if err != nil {
		log.Printf("policy: evaluation failed: %v, using defaults", err)
		return DefaultResult(in), nil
	}
	return result, nil
}

// DefaultResult is the decision of DefaultRegoPolicy computed without OPA.
func DefaultResult(in ModeInput) ModeResult {
	return ModeResult{
		DemoMode:      !in.BackendConfigured,
		DemoAllowed:   in.Env != "production",
		OTPCodeLength: defaultOTPCodeLength,
	}
}

func (e *OPAEvaluator) evaluate(ctx context.Context, input map[string]interface{}) (ModeResult, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": e.policy})
	if err != nil {
		return ModeResult{}, fmt.Errorf("compile policy: %w", err)
	}

	q := rego.New(
		rego.Query("data.crm.session"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return ModeResult{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ModeResult{}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return ModeResult{}, fmt.Errorf("policy package crm.session is undefined")
	}

	out := ModeResult{OTPCodeLength: defaultOTPCodeLength}
	if v, ok := doc["demo_mode"].(bool); ok {
		out.DemoMode = v
	}
	out.DemoAllowed = true
	if v, ok := doc["demo_allowed"].(bool); ok {
		out.DemoAllowed = v
	}
	switch v := doc["otp_code_length"].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			out.OTPCodeLength = int(n)
		}
	case float64:
		if n := int(v); n > 0 {
			out.OTPCodeLength = n
		}
	case int64:
		if v > 0 {
			out.OTPCodeLength = int(v)
		}
	}
	return out, nil
}
