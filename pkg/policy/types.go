// Package policy compiles the declarative policy document and exposes
// the Guard: a pure, side-effect-free check(phase, context, intent_type)
// operation that every other component delegates to for identity,
// negotiation and settlement decisions.
package policy

// Policy is the compiled, in-memory policy — grouped the same way the
// on-disk document is grouped (spec §4.2).
type Policy struct {
	SchemaVersion string

	Counterparty CounterpartyPolicy
	Negotiation  NegotiationPolicy
	Economics    EconomicsPolicy
	Settlement   SettlementPolicy
	KYA          KYAPolicy
	ZKKYA        ZKKYAPolicy
	Disputes     DisputesPolicy
}

// CounterpartyPolicy gates which providers are eligible at all.
type CounterpartyPolicy struct {
	RequiredCredentials []string
	TrustedIssuers      []string
	MinReputation       float64
	AllowedRegions      []string // empty = no region restriction
	MaxFailureRate      float64  // 0 = no cap
	MaxTimeoutRateMs    int64    // reserved for future timeout-rate caps
}

// NegotiationPolicy bounds the negotiation session.
type NegotiationPolicy struct {
	MaxRounds         int
	BandPct           float64
	AcceptFirmQuote   bool
	UrgentBandWidenPct float64 // used by aggressive_if_urgent
}

// EconomicsPolicy bounds seller bonding.
type EconomicsPolicy struct {
	SellerMinBond      float64
	SellerBondMultiple float64
}

// SettlementPolicy groups settlement-time configuration.
type SettlementPolicy struct {
	StreamingTickMs   int64
	SLA               SettlementSLAPolicy
	Routing           RoutingPolicy
	SplitEnabled      bool
	SplitMaxSegments  int
}

// SettlementSLAPolicy bounds commit/poll waits.
type SettlementSLAPolicy struct {
	Enabled         bool
	MaxPendingMs    int64
	MaxPollAttempts int
	PollIntervalMs  int64
	Penalty         PenaltyPolicy
}

// PenaltyPolicy controls whether an SLA violation ingests a zero-value
// penalty receipt for the offending seller.
type PenaltyPolicy struct {
	Enabled bool
}

// RoutingPolicy is the settlement router's rule table.
type RoutingPolicy struct {
	DefaultProvider string
	Rules           []RoutingRule
}

// RoutingRule matches (amount, mode, trust_tier, trust_score) against a
// rail. CELWhen, if non-empty, is evaluated against a candidate
// activation in addition to the structural predicates below; both must
// pass for the rule to match.
type RoutingRule struct {
	MaxAmount    float64 // 0 = unbounded
	MinTrustTier string  // "" = no floor
	Mode         string  // "" = any
	CELWhen      string
	Use          string
}

// KYAPolicy is the Know-Your-Agent trust configuration.
type KYAPolicy struct {
	IssuerWeights        map[string]float64
	RequireTrustedIssuer bool
	RequireCredential    bool
	MinTrustTier         string
	MinTrustScore        float64
}

// ZKKYAPolicy is the optional zero-knowledge KYA requirement.
type ZKKYAPolicy struct {
	Required       bool
	AllowedIssuers []string
	MinTier        string
}

// DisputesPolicy gates the dispute open/decide/remedy flow (spec §4.9).
type DisputesPolicy struct {
	Enabled      bool
	WindowMs     int64
	MaxRefundPct float64
	AllowPartial bool
}

// UtilityWeights are the per-unit weights of the candidate utility score.
// Policy has no utility-weight fields, so a policy document cannot set
// them; the orchestrator always ranks with DefaultUtilityWeights.
type UtilityWeights struct {
	LatencyPerMs      float64
	FailureRatePerUnit float64
	ReputationPerUnit float64
	TrustBonusLow     float64
	TrustBonusTrusted float64
}

// DefaultUtilityWeights are the constants named in spec §9.
func DefaultUtilityWeights() UtilityWeights {
	return UtilityWeights{
		LatencyPerMs:       1e-8,
		FailureRatePerUnit: 1e-3,
		ReputationPerUnit:  1e-6,
		TrustBonusLow:      0.02,
		TrustBonusTrusted:  0.05,
	}
}
