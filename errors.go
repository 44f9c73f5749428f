package pageguard

import (
	"errors"
	"fmt"
)

// Sentinel failures of the evaluation pipeline. All are non-fatal to the
// calling request: the aggregator catches them and falls back per tier.
var (
	// ErrStoreUnavailable wraps a failed policy-store fetch on a cache miss.
	ErrStoreUnavailable = errors.New("policy store unavailable")

	// ErrNoPolicy is wrapped by store lookups when the requested policy
	// does not exist. Not an error condition for the evaluation pipeline.
	ErrNoPolicy = errors.New("no policy for resource")

	// ErrUnsupportedStrategy is returned by stores when asked to persist
	// a policy whose strategy is neither SIMPLE nor COMPLEX.
	ErrUnsupportedStrategy = errors.New("strategy not supported")
)

// EvaluationFault marks a malformed condition, unsupported operator, or field
// resolution failure. It is caught at the smallest scope possible: the
// failing condition or rule evaluates to false rather than aborting the tree.
type EvaluationFault struct {
	Scope string // "condition", "rule", "policy"
	Ref   string // id or field path of the failing element
	Err   error
}

func (f *EvaluationFault) Error() string {
	return fmt.Sprintf("evaluation fault at %s %s: %v", f.Scope, f.Ref, f.Err)
}

func (f *EvaluationFault) Unwrap() error { return f.Err }
