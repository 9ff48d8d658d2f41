// Package trust computes KYA trust scores and tiers (spec §4.7). It is
// grounded on the teacher's multi-dimensional trust scoring in
// core/pkg/trust/leaderboard.go (GetBadgeLevel thresholds over a
// composite score) and core/pkg/trust/certification.go (policy-driven
// level requirements) — generalized from org certification badges to
// per-provider commerce trust tiers.
package trust

import "github.com/pactmesh/pact-core/pkg/contracts"

// Tier thresholds over the composite [0,1] score. Grounded on the
// teacher's badge-level cutoffs, narrowed from four bands to the three
// the spec names.
const (
	trustedFloor = 0.75
	lowFloor     = 0.40
)

// TierForScore maps a composite score to a trust tier.
func TierForScore(score float64) string {
	switch {
	case score >= trustedFloor:
		return contracts.TierTrusted
	case score >= lowFloor:
		return contracts.TierLow
	default:
		return contracts.TierUntrusted
	}
}

// Input carries the four dimensions the spec names: issuer weight, claim
// completeness, region match, mode match.
type Input struct {
	IssuerWeight       float64 // from policy.kya.issuer_weights[issuer_id], 0 if unknown issuer
	ClaimCompleteness  float64 // fraction of requested capabilities the credential actually lists, in [0,1]
	RegionMatch        bool    // provider.region == requested region (or no region requested)
	ModeMatch          bool    // provider supports the requested settlement mode
}

// Dimension weights. No credential at all (IssuerWeight=0, ClaimCompleteness=0)
// yields the untrusted floor even with region/mode match, by design: identity
// and claim evidence dominate the composite.
const (
	weightIssuer      = 0.5
	weightClaims      = 0.3
	weightRegionMode  = 0.2
)

// Score computes the composite [0,1] trust score and its tier.
func Score(in Input) (score float64, tier string) {
	issuer := clamp01(in.IssuerWeight)
	claims := clamp01(in.ClaimCompleteness)

	var regionMode float64
	switch {
	case in.RegionMatch && in.ModeMatch:
		regionMode = 1.0
	case in.RegionMatch || in.ModeMatch:
		regionMode = 0.5
	default:
		regionMode = 0.0
	}

	score = weightIssuer*issuer + weightClaims*claims + weightRegionMode*regionMode
	score = clamp01(score)
	return score, TierForScore(score)
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

// MeetsFloor reports whether (score, tier) satisfy a buyer/policy floor.
// An empty minTier or zero minScore imposes no constraint on that axis.
func MeetsFloor(score float64, tier string, minTier string, minScore float64) bool {
	if minTier != "" && contracts.TierRank(tier) < contracts.TierRank(minTier) {
		return false
	}
	if minScore > 0 && score < minScore {
		return false
	}
	return true
}
