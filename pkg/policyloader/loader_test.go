package policyloader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/policyloader"
)

func TestLoadBytes_MinimalValidDocument(t *testing.T) {
	doc := []byte(`
schema_version: "1.0.0"
negotiation:
  max_rounds: 3
  band_pct: 0.1
`)
	raw, err := policyloader.LoadBytes(doc)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", raw.SchemaVersion)
	require.Equal(t, 3, raw.Negotiation.MaxRounds)
}

func TestLoadBytes_FullDocument(t *testing.T) {
	doc := []byte(`
schema_version: "1.2.0"
counterparty:
  required_credentials: ["kyc"]
  trusted_issuers: ["issuer-a"]
  allowed_regions: ["us", "eu"]
negotiation:
  max_rounds: 5
  band_pct: 0.2
  accept_firm_quote: true
economics:
  seller_min_bond: 1.5
  seller_bond_multiple: 0.2
settlement:
  streaming_tick_ms: 250
  settlement_sla:
    enabled: true
    max_poll_attempts: 4
  settlement_routing:
    default_provider: mock
    rules:
      - when: { max_amount: 10 }
        use: small-rail
disputes:
  enabled: true
  window_ms: 86400000
  max_refund_pct: 0.5
`)
	raw, err := policyloader.LoadBytes(doc)
	require.NoError(t, err)
	require.Equal(t, int64(250), raw.Settlement.StreamingTickMs)
	require.Equal(t, "mock", raw.Settlement.SettlementRouting.DefaultProvider)
	require.Len(t, raw.Settlement.SettlementRouting.Rules, 1)
	require.Equal(t, "small-rail", raw.Settlement.SettlementRouting.Rules[0].Use)
	require.True(t, raw.Disputes.Enabled)
}

func TestLoadBytes_MissingSchemaVersionFailsValidation(t *testing.T) {
	doc := []byte(`
negotiation:
  max_rounds: 3
`)
	_, err := policyloader.LoadBytes(doc)
	require.Error(t, err)
}

func TestLoadBytes_BadSchemaVersionPatternFails(t *testing.T) {
	doc := []byte(`schema_version: "not-a-version"`)
	_, err := policyloader.LoadBytes(doc)
	require.Error(t, err)
}

func TestLoadBytes_RuleMissingUseFailsValidation(t *testing.T) {
	doc := []byte(`
schema_version: "1.0.0"
settlement:
  settlement_routing:
    rules:
      - when: { max_amount: 10 }
`)
	_, err := policyloader.LoadBytes(doc)
	require.Error(t, err)
}

func TestLoadBytes_InvalidYAMLFails(t *testing.T) {
	_, err := policyloader.LoadBytes([]byte("not: valid: yaml: : :"))
	require.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := policyloader.Load("/nonexistent/path/policy.yaml")
	require.Error(t, err)
}
