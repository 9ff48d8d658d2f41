package contracts

// Trust tier ordering: untrusted < low < trusted.
const (
	TierUntrusted = "untrusted"
	TierLow       = "low"
	TierTrusted   = "trusted"
)

// TierRank gives a total order over trust tiers for comparisons like
// "min_trust_tier: trusted".
func TierRank(tier string) int {
	switch tier {
	case TierTrusted:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// CandidateEvaluation is the per-provider evaluation record produced by
// the provider-selection pipeline (discovery -> credential/trust
// verification -> quote verification -> utility scoring).
type CandidateEvaluation struct {
	ProviderID             string   `json:"provider_id"`
	PubkeyB58              string   `json:"pubkey_b58"`
	Endpoint               string   `json:"endpoint,omitempty"`
	Credentials            []string `json:"credentials,omitempty"`
	Region                 string   `json:"region,omitempty"`
	BaselineLatencyMs      int64    `json:"baseline_latency_ms"`
	FailureRate            float64  `json:"failure_rate,omitempty"`
	TrustScore             float64  `json:"trust_score"`
	TrustTier              string   `json:"trust_tier"`
	AskPrice               float64  `json:"ask_price"`
	Utility                float64  `json:"utility"`
	Reputation             float64  `json:"reputation"`
	HasRequiredCredentials bool     `json:"has_required_credentials"`
	Eligible               bool     `json:"eligible"`
	IneligibleCode         string   `json:"ineligible_code,omitempty"`
	IneligibleReason       string   `json:"ineligible_reason,omitempty"`
}

// Provider is the static directory entry for a candidate, before
// evaluation.
type Provider struct {
	ProviderID        string   `json:"provider_id"`
	PubkeyB58         string   `json:"pubkey_b58"`
	Endpoint          string   `json:"endpoint,omitempty"`
	IntentTypes       []string `json:"intent_types"`
	Region            string   `json:"region,omitempty"`
	BaselineLatencyMs int64    `json:"baseline_latency_ms"`
	FailureRate       float64  `json:"failure_rate,omitempty"`
	IssuerID          string   `json:"issuer_id,omitempty"`

	// Quote lets tests and demos stub a deterministic quote instead of
	// round-tripping through an HTTP endpoint.
	Quote *StubQuote `json:"-"`
}

// StubQuote lets an in-process provider (no Endpoint) answer /quote and
// /stream_chunk deterministically.
type StubQuote struct {
	Price     float64
	FirmQuote bool
}
