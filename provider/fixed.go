package provider

import "context"

// Fixed is a deterministic Provider double for scheduler/pipeline tests: it
// always returns the same Decision regardless of the bundle it is handed.
type Fixed struct {
	Decision *Decision
	Usage    Usage
	Err      error
}

// NewFixedHold builds a Fixed provider that always returns HOLD.
func NewFixedHold() *Fixed {
	return &Fixed{Decision: &Decision{Action: ActionHold, Reasoning: "fixed: hold"}}
}

func (f *Fixed) Decide(_ context.Context, _ ContextBundle) (*Decision, Usage, error) {
	if f.Err != nil {
		return nil, Usage{}, f.Err
	}
	return f.Decision, f.Usage, nil
}
