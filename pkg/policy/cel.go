package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pactmesh/pact-core/pkg/contracts"
)

// CELEvaluator evaluates settlement-routing `when.cel` predicates against
// a candidate evaluation activation, grounded on the teacher's
// governance.CELPolicyEvaluator (a cached cel.Env + per-expression
// cel.Program). Unlike the teacher's evaluator, rules here are boolean
// predicates over the candidate record, not module-lifecycle checks.
type CELEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEvaluator builds the evaluator with the candidate-record
// variables routing rules are allowed to reference.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("mode", cel.StringType),
		cel.Variable("trust_tier", cel.StringType),
		cel.Variable("trust_score", cel.DoubleType),
		cel.Variable("region", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	return &CELEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// EvalBool compiles (with caching) and evaluates expr against the given
// candidate fields, returning the boolean result.
func (e *CELEvaluator) EvalBool(expr string, amount float64, mode, trustTier string, trustScore float64, region string) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"amount":      amount,
		"mode":        mode,
		"trust_tier":  trustTier,
		"trust_score": trustScore,
		"region":      region,
	})
	if err != nil {
		return false, fmt.Errorf("policy: cel eval %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: cel expression %q did not return bool", expr)
	}
	return b, nil
}

func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: cel compile %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: cel program %q: %w", expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// CandidateActivation adapts a CandidateEvaluation into the named
// variables EvalBool expects.
func CandidateActivation(c contracts.CandidateEvaluation, amount float64, mode string) (float64, string, string, float64, string) {
	return amount, mode, c.TrustTier, c.TrustScore, c.Region
}
