package engine

import "context"

// ModeInput is the context the session-mode policy decides on.
type ModeInput struct {
	Env               string
	BackendConfigured bool
}

// ModeResult holds the result of session-mode policy evaluation.
type ModeResult struct {
	DemoMode      bool
	DemoAllowed   bool
	OTPCodeLength int
}

// Evaluator evaluates the session-mode policy using OPA or other engines.
type Evaluator interface {
	// EvaluateMode decides whether the session store runs in demo mode, whether demo mode is permitted,
	// and the expected OTP code length.
	EvaluateMode(ctx context.Context, in ModeInput) (ModeResult, error)
}
