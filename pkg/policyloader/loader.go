// Package policyloader loads and schema-validates the on-disk policy
// document. Loading/validation live here deliberately so that
// pkg/policy's Compile stays a pure function of an already-parsed,
// already-validated document (spec §1: "policy file loading and schema
// validation details" are named out of the core's scope, but the
// ambient stack still needs a concrete loader to hand policy.Compile
// something real).
package policyloader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// RawPolicy is the on-disk shape of a policy document, read with
// yaml.v3 and validated against schema.json before pkg/policy.Compile
// ever sees it.
type RawPolicy struct {
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	Counterparty struct {
		RequiredCredentials []string          `yaml:"required_credentials" json:"required_credentials"`
		TrustedIssuers      []string          `yaml:"trusted_issuers" json:"trusted_issuers"`
		MinReputation       float64           `yaml:"min_reputation" json:"min_reputation"`
		AllowedRegions      []string          `yaml:"allowed_regions" json:"allowed_regions"`
		MaxFailureRate      float64           `yaml:"max_failure_rate" json:"max_failure_rate"`
	} `yaml:"counterparty" json:"counterparty"`

	Negotiation struct {
		MaxRounds          int     `yaml:"max_rounds" json:"max_rounds"`
		BandPct            float64 `yaml:"band_pct" json:"band_pct"`
		AcceptFirmQuote    bool    `yaml:"accept_firm_quote" json:"accept_firm_quote"`
		UrgentBandWidenPct float64 `yaml:"urgent_band_widen_pct" json:"urgent_band_widen_pct"`
	} `yaml:"negotiation" json:"negotiation"`

	Economics struct {
		SellerMinBond      float64 `yaml:"seller_min_bond" json:"seller_min_bond"`
		SellerBondMultiple float64 `yaml:"seller_bond_multiple" json:"seller_bond_multiple"`
	} `yaml:"economics" json:"economics"`

	Settlement struct {
		StreamingTickMs int64 `yaml:"streaming_tick_ms" json:"streaming_tick_ms"`
		SettlementSLA   struct {
			Enabled         bool  `yaml:"enabled" json:"enabled"`
			MaxPendingMs    int64 `yaml:"max_pending_ms" json:"max_pending_ms"`
			MaxPollAttempts int   `yaml:"max_poll_attempts" json:"max_poll_attempts"`
			PollIntervalMs  int64 `yaml:"poll_interval_ms" json:"poll_interval_ms"`
			Penalty         struct {
				Enabled bool `yaml:"enabled" json:"enabled"`
			} `yaml:"penalty" json:"penalty"`
		} `yaml:"settlement_sla" json:"settlement_sla"`
		SettlementRouting struct {
			DefaultProvider string `yaml:"default_provider" json:"default_provider"`
			Rules           []struct {
				When struct {
					MaxAmount    float64 `yaml:"max_amount" json:"max_amount"`
					MinTrustTier string  `yaml:"min_trust_tier" json:"min_trust_tier"`
					Mode         string  `yaml:"mode" json:"mode"`
					CEL          string  `yaml:"cel" json:"cel"`
				} `yaml:"when" json:"when"`
				Use string `yaml:"use" json:"use"`
			} `yaml:"rules" json:"rules"`
		} `yaml:"settlement_routing" json:"settlement_routing"`
		Split struct {
			Enabled      bool `yaml:"enabled" json:"enabled"`
			MaxSegments  int  `yaml:"max_segments" json:"max_segments"`
		} `yaml:"split" json:"split"`
	} `yaml:"settlement" json:"settlement"`

	KYA struct {
		IssuerWeights        map[string]float64 `yaml:"issuer_weights" json:"issuer_weights"`
		RequireTrustedIssuer bool               `yaml:"require_trusted_issuer" json:"require_trusted_issuer"`
		RequireCredential    bool               `yaml:"require_credential" json:"require_credential"`
		MinTrustTier         string             `yaml:"min_trust_tier" json:"min_trust_tier"`
		MinTrustScore        float64            `yaml:"min_trust_score" json:"min_trust_score"`
	} `yaml:"kya" json:"kya"`

	ZKKYA struct {
		Required       bool     `yaml:"required" json:"required"`
		AllowedIssuers []string `yaml:"allowed_issuers" json:"allowed_issuers"`
		MinTier        string   `yaml:"min_tier" json:"min_tier"`
	} `yaml:"zk_kya" json:"zk_kya"`

	Disputes struct {
		Enabled      bool    `yaml:"enabled" json:"enabled"`
		WindowMs     int64   `yaml:"window_ms" json:"window_ms"`
		MaxRefundPct float64 `yaml:"max_refund_pct" json:"max_refund_pct"`
		AllowPartial bool    `yaml:"allow_partial" json:"allow_partial"`
	} `yaml:"disputes" json:"disputes"`
}

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("policyloader: embedded schema is invalid: %v", err))
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("policyloader: embedded schema failed to compile: %v", err))
	}
	compiledSchema = s
}

// Load reads path as YAML, validates it against the embedded JSON
// Schema, and returns the parsed RawPolicy.
func Load(path string) (*RawPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyloader: read %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates a YAML policy document already in
// memory (used by tests and callers that build policy documents
// programmatically).
func LoadBytes(data []byte) (*RawPolicy, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("policyloader: parse yaml: %w", err)
	}

	// jsonschema validates JSON-shaped values (map[string]interface{}),
	// so round-trip through JSON to normalize yaml.v3's node types.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("policyloader: normalize yaml: %w", err)
	}
	var validatable any
	if err := json.Unmarshal(asJSON, &validatable); err != nil {
		return nil, fmt.Errorf("policyloader: normalize yaml: %w", err)
	}
	if err := compiledSchema.Validate(validatable); err != nil {
		return nil, fmt.Errorf("policyloader: schema validation failed: %w", err)
	}

	var raw RawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policyloader: decode yaml: %w", err)
	}
	return &raw, nil
}
