package settlement

import (
	"fmt"
	"math"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/policy"
)

// RoutingDecision is the router's answer plus the rationale recorded in
// transcript.settlement_lifecycle.routing (spec §4.5).
type RoutingDecision struct {
	Use          string
	MatchedIndex int // -1 when the default provider was used
	Rationale    string
}

// Router walks policy.settlement_routing.rules top-to-bottom and picks
// the first matching rail, falling back to default_provider. Grounded
// on the teacher's CEL-based rule evaluation in core/pkg/governance
// (a compiled cel.Env cached per expression), composed here with the
// policy package's CELEvaluator.
type Router struct {
	rules           []policy.RoutingRule
	defaultProvider string
	cel             *policy.CELEvaluator
}

// NewRouter builds a Router from a compiled Policy. cel may be nil if no
// rule uses a `when.cel` predicate; a nil cel with a CEL rule present is
// a configuration error surfaced at Route time.
func NewRouter(p *policy.Policy, cel *policy.CELEvaluator) *Router {
	return &Router{
		rules:           p.Settlement.Routing.Rules,
		defaultProvider: p.Settlement.Routing.DefaultProvider,
		cel:             cel,
	}
}

// Route picks a rail for (amount, mode, trust_tier, trust_score, region).
// amount must be finite and >= 0; trust_score is clamped to [0,1].
func (r *Router) Route(amount float64, mode, trustTier string, trustScore float64, region string) (RoutingDecision, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return RoutingDecision{}, fmt.Errorf("settlement: router: invalid amount %v", amount)
	}
	trustScore = clamp01(trustScore)

	for i, rule := range r.rules {
		if rule.MaxAmount > 0 && amount > rule.MaxAmount {
			continue
		}
		if rule.MinTrustTier != "" && contracts.TierRank(trustTier) < contracts.TierRank(rule.MinTrustTier) {
			continue
		}
		if rule.Mode != "" && rule.Mode != mode {
			continue
		}
		if rule.CELWhen != "" {
			if r.cel == nil {
				return RoutingDecision{}, fmt.Errorf("settlement: router: rule %d has a cel predicate but no evaluator configured", i)
			}
			ok, err := r.cel.EvalBool(rule.CELWhen, amount, mode, trustTier, trustScore, region)
			if err != nil {
				return RoutingDecision{}, fmt.Errorf("settlement: router: rule %d cel eval: %w", i, err)
			}
			if !ok {
				continue
			}
		}
		return RoutingDecision{
			Use:          rule.Use,
			MatchedIndex: i,
			Rationale:    fmt.Sprintf("matched rule %d (use=%s)", i, rule.Use),
		}, nil
	}

	if r.defaultProvider == "" {
		return RoutingDecision{}, fmt.Errorf("settlement: router: no rule matched and no default_provider configured")
	}
	return RoutingDecision{
		Use:          r.defaultProvider,
		MatchedIndex: -1,
		Rationale:    "no rule matched, used default_provider",
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
