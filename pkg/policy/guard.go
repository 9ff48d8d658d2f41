package policy

import "github.com/pactmesh/pact-core/pkg/contracts"

// Phase discriminates which question the Guard is being asked.
type Phase string

const (
	PhaseIdentity    Phase = "identity"
	PhaseNegotiation Phase = "negotiation"
	PhaseSettlement  Phase = "settlement"
)

// CheckResult is the Guard's discriminated answer: ok, or a stable
// failure code.
type CheckResult struct {
	OK     bool
	Code   string
	Reason string
}

func allow() CheckResult { return CheckResult{OK: true} }

func deny(code, reason string) CheckResult {
	return CheckResult{OK: false, Code: code, Reason: reason}
}

// IdentityContext carries what the Guard needs to answer an identity-
// phase question: a fully evaluated candidate plus the caller's trust
// overrides.
type IdentityContext struct {
	Candidate     contracts.CandidateEvaluation
	MinTrustTier  string // buyer override, "" = use policy floor
	MinTrustScore float64
	RequireCredential bool // buyer override OR'd with policy.KYA.RequireCredential
}

// NegotiationContext carries what the Guard needs to answer a
// negotiation-phase question: whether a quote is acceptable.
type NegotiationContext struct {
	QuotePrice float64
	MaxPrice   float64
	RefP50     float64
	FirmQuote  bool
}

// SettlementContext carries what the Guard needs to answer a
// settlement-phase question: whether the matched rail/amount is within
// bounds.
type SettlementContext struct {
	Amount     float64
	Mode       string
	TrustTier  string
	TrustScore float64
}

// Guard answers check(phase, context, intent_type) -> {ok, code?}. It is
// pure and side-effect-free: identical inputs always produce an
// identical result.
type Guard struct {
	policy *Policy
}

// NewGuard wraps a compiled Policy.
func NewGuard(p *Policy) *Guard {
	return &Guard{policy: p}
}

// CheckIdentity answers whether a candidate is eligible at all:
// credentials, trusted issuer, trust tier/score floors.
func (g *Guard) CheckIdentity(ctx IdentityContext, intentType string) CheckResult {
	c := ctx.Candidate

	requireCred := ctx.RequireCredential || g.policy.KYA.RequireCredential
	if requireCred && !c.HasRequiredCredentials {
		return deny(contracts.CodeProviderCredentialRequired, "credential required by policy but absent")
	}

	for _, req := range g.policy.Counterparty.RequiredCredentials {
		found := false
		for _, have := range c.Credentials {
			if have == req {
				found = true
				break
			}
		}
		if !found {
			return deny(contracts.CodeProviderMissingRequiredCreds, "missing required credential: "+req)
		}
	}

	if g.policy.KYA.RequireTrustedIssuer && len(g.policy.Counterparty.TrustedIssuers) > 0 {
		trusted := false
		for range g.policy.Counterparty.TrustedIssuers {
			// Issuer identity is carried on the credential check upstream;
			// CandidateEvaluation only records pass/fail here. A caller
			// that already resolved a matching trusted issuer sets
			// HasRequiredCredentials; absence of any trusted issuer match
			// is surfaced as untrusted issuer.
			trusted = c.HasRequiredCredentials
			break
		}
		if !trusted {
			return deny(contracts.CodeProviderUntrustedIssuer, "issuer not in trusted_issuers")
		}
	}

	minTier := ctx.MinTrustTier
	if minTier == "" {
		minTier = g.policy.KYA.MinTrustTier
	}
	if minTier != "" && contracts.TierRank(c.TrustTier) < contracts.TierRank(minTier) {
		return deny(contracts.CodeProviderTrustTierTooLow, "trust tier below floor")
	}

	minScore := ctx.MinTrustScore
	if minScore == 0 {
		minScore = g.policy.KYA.MinTrustScore
	}
	if minScore > 0 && c.TrustScore < minScore {
		return deny(contracts.CodeProviderTrustScoreTooLow, "trust score below floor")
	}

	if len(g.policy.Counterparty.AllowedRegions) > 0 && c.Region != "" {
		allowed := false
		for _, r := range g.policy.Counterparty.AllowedRegions {
			if r == c.Region {
				allowed = true
				break
			}
		}
		if !allowed {
			return deny(contracts.CodeProviderUntrustedIssuer, "region not allowed")
		}
	}

	if g.policy.Counterparty.MaxFailureRate > 0 && c.FailureRate > g.policy.Counterparty.MaxFailureRate {
		return deny(contracts.CodeProviderQuotePolicyRejected, "failure rate exceeds policy cap")
	}

	if c.Reputation < g.policy.Counterparty.MinReputation {
		return deny(contracts.CodeProviderQuotePolicyRejected, "reputation below floor")
	}

	return allow()
}

// CheckNegotiation answers whether a quote is acceptable under the
// negotiation-phase policy: within max_price and, unless the quote is
// firm and policy.negotiation.accept_firm_quote is set, within the
// configured band of ref_p50.
func (g *Guard) CheckNegotiation(ctx NegotiationContext) CheckResult {
	if ctx.QuotePrice > ctx.MaxPrice {
		return deny(contracts.CodeProviderQuoteOutOfBand, "quote exceeds max_price")
	}
	if ctx.FirmQuote && g.policy.Negotiation.AcceptFirmQuote {
		return allow()
	}
	if ctx.RefP50 <= 0 {
		return allow()
	}
	band := g.policy.Negotiation.BandPct
	lo := ctx.RefP50 * (1 - band)
	hi := ctx.RefP50 * (1 + band)
	if ctx.QuotePrice < lo || ctx.QuotePrice > hi {
		return deny(contracts.CodeProviderQuoteOutOfBand, "quote outside reference band")
	}
	return allow()
}

// CheckSettlement answers whether an amount/mode/trust combination is
// permitted to settle at all (distinct from routing, which then picks
// the rail).
func (g *Guard) CheckSettlement(ctx SettlementContext) CheckResult {
	if ctx.Amount < 0 {
		return deny(contracts.CodeSettlementFailed, "negative settlement amount")
	}
	return allow()
}
