package policy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pactmesh/pact-core/pkg/policyloader"
)

// SupportedSchemaVersions is the semver range of policy schema versions
// this build's Compile understands, grounded on the teacher's
// trust/pack_loader.go semver compatibility gate for installed pack
// versions.
const SupportedSchemaVersions = ">= 1.0.0, < 2.0.0"

func init() {
	c, err := semver.NewConstraint(SupportedSchemaVersions)
	if err != nil {
		panic(fmt.Sprintf("policy: invalid SupportedSchemaVersions constraint: %v", err))
	}
	constraint = c
}

var constraint *semver.Constraints

// Compile converts an already-loaded, already-schema-validated RawPolicy
// into the in-memory Policy the Guard and Router consume. It is
// deliberately pure: no file I/O, no defaults sourced from the
// environment.
func Compile(raw *policyloader.RawPolicy) (*Policy, error) {
	v, err := semver.NewVersion(raw.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid schema_version %q: %w", raw.SchemaVersion, err)
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("policy: schema_version %s is not in supported range %s", raw.SchemaVersion, SupportedSchemaVersions)
	}

	p := &Policy{
		SchemaVersion: raw.SchemaVersion,
		Counterparty: CounterpartyPolicy{
			RequiredCredentials: raw.Counterparty.RequiredCredentials,
			TrustedIssuers:      raw.Counterparty.TrustedIssuers,
			MinReputation:       raw.Counterparty.MinReputation,
			AllowedRegions:      raw.Counterparty.AllowedRegions,
			MaxFailureRate:      raw.Counterparty.MaxFailureRate,
		},
		Negotiation: NegotiationPolicy{
			MaxRounds:          raw.Negotiation.MaxRounds,
			BandPct:            raw.Negotiation.BandPct,
			AcceptFirmQuote:    raw.Negotiation.AcceptFirmQuote,
			UrgentBandWidenPct: raw.Negotiation.UrgentBandWidenPct,
		},
		Economics: EconomicsPolicy{
			SellerMinBond:      raw.Economics.SellerMinBond,
			SellerBondMultiple: raw.Economics.SellerBondMultiple,
		},
		Settlement: SettlementPolicy{
			StreamingTickMs: raw.Settlement.StreamingTickMs,
			SLA: SettlementSLAPolicy{
				Enabled:         raw.Settlement.SettlementSLA.Enabled,
				MaxPendingMs:    raw.Settlement.SettlementSLA.MaxPendingMs,
				MaxPollAttempts: raw.Settlement.SettlementSLA.MaxPollAttempts,
				PollIntervalMs:  raw.Settlement.SettlementSLA.PollIntervalMs,
				Penalty:         PenaltyPolicy{Enabled: raw.Settlement.SettlementSLA.Penalty.Enabled},
			},
			Routing: RoutingPolicy{
				DefaultProvider: raw.Settlement.SettlementRouting.DefaultProvider,
			},
			SplitEnabled:     raw.Settlement.Split.Enabled,
			SplitMaxSegments: raw.Settlement.Split.MaxSegments,
		},
		KYA: KYAPolicy{
			IssuerWeights:        raw.KYA.IssuerWeights,
			RequireTrustedIssuer: raw.KYA.RequireTrustedIssuer,
			RequireCredential:    raw.KYA.RequireCredential,
			MinTrustTier:         raw.KYA.MinTrustTier,
			MinTrustScore:        raw.KYA.MinTrustScore,
		},
		ZKKYA: ZKKYAPolicy{
			Required:       raw.ZKKYA.Required,
			AllowedIssuers: raw.ZKKYA.AllowedIssuers,
			MinTier:        raw.ZKKYA.MinTier,
		},
		Disputes: DisputesPolicy{
			Enabled:      raw.Disputes.Enabled,
			WindowMs:     raw.Disputes.WindowMs,
			MaxRefundPct: raw.Disputes.MaxRefundPct,
			AllowPartial: raw.Disputes.AllowPartial,
		},
	}

	for _, r := range raw.Settlement.SettlementRouting.Rules {
		if r.Use == "" {
			return nil, fmt.Errorf("policy: settlement_routing rule missing 'use' rail")
		}
		p.Settlement.Routing.Rules = append(p.Settlement.Routing.Rules, RoutingRule{
			MaxAmount:    r.When.MaxAmount,
			MinTrustTier: r.When.MinTrustTier,
			Mode:         r.When.Mode,
			CELWhen:      r.When.CEL,
			Use:          r.Use,
		})
	}

	if p.Negotiation.MaxRounds < 0 {
		return nil, fmt.Errorf("policy: negotiation.max_rounds must be >= 0")
	}
	if p.Settlement.SplitEnabled && p.Settlement.SplitMaxSegments < 1 {
		p.Settlement.SplitMaxSegments = 1
	}

	return p, nil
}

// Default returns a conservative default policy for callers (tests,
// demos) that do not load a policy file: generous band, no credential
// requirements, mock rail as the only route.
func Default() *Policy {
	return &Policy{
		SchemaVersion: "1.0.0",
		Negotiation: NegotiationPolicy{
			MaxRounds:          3,
			BandPct:            0.1,
			AcceptFirmQuote:    true,
			UrgentBandWidenPct: 0.5,
		},
		Economics: EconomicsPolicy{
			SellerMinBond:      0,
			SellerBondMultiple: 0.1,
		},
		Settlement: SettlementPolicy{
			StreamingTickMs: 100,
			SLA: SettlementSLAPolicy{
				Enabled:         false,
				MaxPendingMs:    5000,
				MaxPollAttempts: 5,
				PollIntervalMs:  100,
			},
			Routing: RoutingPolicy{DefaultProvider: "mock"},
		},
		KYA: KYAPolicy{
			IssuerWeights: map[string]float64{"self": 0.5},
		},
	}
}
