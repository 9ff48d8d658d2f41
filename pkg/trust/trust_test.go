package trust_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/trust"
)

func TestTierForScore_Bounds(t *testing.T) {
	require.Equal(t, contracts.TierUntrusted, trust.TierForScore(0))
	require.Equal(t, contracts.TierUntrusted, trust.TierForScore(0.39))
	require.Equal(t, contracts.TierLow, trust.TierForScore(0.40))
	require.Equal(t, contracts.TierLow, trust.TierForScore(0.74))
	require.Equal(t, contracts.TierTrusted, trust.TierForScore(0.75))
	require.Equal(t, contracts.TierTrusted, trust.TierForScore(1.0))
}

func TestScore_NoCredentialYieldsUntrustedFloorEvenWithMatches(t *testing.T) {
	score, tier := trust.Score(trust.Input{
		IssuerWeight:      0,
		ClaimCompleteness: 0,
		RegionMatch:       true,
		ModeMatch:         true,
	})
	require.InDelta(t, 0.2, score, 1e-9) // weightRegionMode(0.2) * 1.0
	require.Equal(t, contracts.TierUntrusted, tier)
}

func TestScore_FullCredentialAndMatchIsTrusted(t *testing.T) {
	score, tier := trust.Score(trust.Input{
		IssuerWeight:      1.0,
		ClaimCompleteness: 1.0,
		RegionMatch:       true,
		ModeMatch:         true,
	})
	require.InDelta(t, 1.0, score, 1e-9)
	require.Equal(t, contracts.TierTrusted, tier)
}

func TestScore_ClampsOutOfRangeInputs(t *testing.T) {
	score, _ := trust.Score(trust.Input{IssuerWeight: 5, ClaimCompleteness: -5})
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)
}

func TestMeetsFloor_TierAndScoreGates(t *testing.T) {
	require.True(t, trust.MeetsFloor(0.8, contracts.TierTrusted, contracts.TierLow, 0.5))
	require.False(t, trust.MeetsFloor(0.8, contracts.TierLow, contracts.TierTrusted, 0))
	require.False(t, trust.MeetsFloor(0.3, contracts.TierTrusted, "", 0.5))
	require.True(t, trust.MeetsFloor(0, "", "", 0)) // no constraints imposed
}
