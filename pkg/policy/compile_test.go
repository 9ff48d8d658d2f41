package policy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/policyloader"
)

func validRaw() *policyloader.RawPolicy {
	raw := &policyloader.RawPolicy{SchemaVersion: "1.0.0"}
	raw.Negotiation.MaxRounds = 3
	raw.Negotiation.BandPct = 0.1
	raw.Settlement.SettlementRouting.DefaultProvider = "mock"
	return raw
}

func TestCompile_AcceptsSupportedSchemaVersion(t *testing.T) {
	p, err := policy.Compile(validRaw())
	require.NoError(t, err)
	require.Equal(t, "1.0.0", p.SchemaVersion)
	require.Equal(t, 3, p.Negotiation.MaxRounds)
	require.Equal(t, "mock", p.Settlement.Routing.DefaultProvider)
}

func TestCompile_RejectsUnsupportedSchemaVersion(t *testing.T) {
	raw := validRaw()
	raw.SchemaVersion = "2.0.0"
	_, err := policy.Compile(raw)
	require.Error(t, err)
}

func TestCompile_RejectsInvalidSemver(t *testing.T) {
	raw := validRaw()
	raw.SchemaVersion = "not-semver"
	_, err := policy.Compile(raw)
	require.Error(t, err)
}

func TestCompile_RejectsNegativeMaxRounds(t *testing.T) {
	raw := validRaw()
	raw.Negotiation.MaxRounds = -1
	_, err := policy.Compile(raw)
	require.Error(t, err)
}

func TestCompile_RejectsRoutingRuleMissingUse(t *testing.T) {
	raw, err := policyloader.LoadBytes([]byte(`
schema_version: "1.0.0"
settlement:
  settlement_routing:
    rules:
      - when: { max_amount: 10 }
        use: some-rail
`))
	require.NoError(t, err)
	// simulate a rule that lost its rail name after load-time validation
	raw.Settlement.SettlementRouting.Rules[0].Use = ""

	_, err = policy.Compile(raw)
	require.Error(t, err)
}

func TestCompile_SplitEnabledDefaultsMaxSegments(t *testing.T) {
	raw := validRaw()
	raw.Settlement.Split.Enabled = true
	raw.Settlement.Split.MaxSegments = 0
	p, err := policy.Compile(raw)
	require.NoError(t, err)
	require.Equal(t, 1, p.Settlement.SplitMaxSegments)
}

func TestDefault_ProducesUsablePolicy(t *testing.T) {
	p := policy.Default()
	require.Equal(t, "mock", p.Settlement.Routing.DefaultProvider)
	require.Equal(t, 3, p.Negotiation.MaxRounds)
}

func TestDefaultUtilityWeights_NonZero(t *testing.T) {
	w := policy.DefaultUtilityWeights()
	require.NotZero(t, w.LatencyPerMs)
}
