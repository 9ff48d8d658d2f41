// Package zkkya implements the optional ZK-KYA (zero-knowledge
// Know-Your-Agent) verification step (spec §4.7/§6): the buyer
// presents a proof, the orchestrator canonicalizes it to
// {scheme, circuit_id, issuer_id, public_inputs_hash, proof_hash} and
// checks it against policy (required/allowed_issuers/min_tier). The
// proof itself is carried as a signed JWT, grounded on the teacher's
// `core/pkg/identity/token.go` (`golang-jwt/jwt/v5`, claims struct
// embedding `jwt.RegisteredClaims`) — generalized from an identity
// bearer token into a proof-claim container. Real zero-knowledge
// circuit verification is out of scope (spec.md's Non-goals exclude
// "new cryptographic primitives"); this package verifies the JWT
// envelope and applies the policy gate over its claims.
package zkkya

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Claims is the canonical ZK-KYA proof shape (spec §4.7), carried as
// the JWT's custom claims alongside jwt.RegisteredClaims for expiry.
type Claims struct {
	jwt.RegisteredClaims
	Scheme            string `json:"scheme"`
	CircuitID         string `json:"circuit_id"`
	IssuerID          string `json:"issuer_id"`
	PublicInputsHash  string `json:"public_inputs_hash"`
	ProofHash         string `json:"proof_hash"`
	Tier              string `json:"tier"`
}

// Proof is the canonical form extracted from a verified token, exposed
// to callers assembling transcript evidence.
type Proof struct {
	Scheme           string
	CircuitID        string
	IssuerID         string
	PublicInputsHash string
	ProofHash        string
	Tier             string
}

// Result is the outcome of Verify.
type Result struct {
	OK    bool
	Proof Proof
	Code  string
	Reason string
}

// KeyFunc resolves the verification key for a proof's issuer; callers
// supply one backed by whatever issuer keyset this deployment trusts
// (test fixtures use a single shared HMAC key; production deployments
// would resolve per-issuer Ed25519/RSA keys the same way
// `core/pkg/identity.KeySet.KeyFunc` does).
type KeyFunc func(issuerID string) (any, error)

// Verify parses and validates tokenString as a ZK-KYA proof against
// policy, at time nowMs. An empty tokenString with policy.Required
// fails ZK_KYA_REQUIRED; a missing/invalid/expired/disallowed-issuer/
// under-tier proof fails with the matching stable code (spec §4.7).
func Verify(tokenString string, required bool, allowedIssuers []string, minTier string, keyFn KeyFunc, nowMs int64) Result {
	if tokenString == "" {
		if required {
			return Result{Code: contracts.CodeZKKYARequired, Reason: "policy requires a zk_kya_proof but none was supplied"}
		}
		return Result{OK: true}
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		issuer, _ := t.Claims.(*Claims)
		if issuer == nil || issuer.IssuerID == "" {
			return nil, fmt.Errorf("zkkya: token carries no issuer_id")
		}
		return keyFn(issuer.IssuerID)
	}, jwt.WithoutClaimsValidation()) // expiry is checked against nowMs below
	if err != nil || !token.Valid {
		return Result{Code: contracts.CodeZKKYAInvalid, Reason: fmt.Sprintf("proof parse/verify failed: %v", err)}
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.UnixMilli() <= nowMs {
		return Result{Code: contracts.CodeZKKYAExpired, Reason: "proof expired"}
	}

	if len(allowedIssuers) > 0 && !contains(allowedIssuers, claims.IssuerID) {
		return Result{Code: contracts.CodeZKKYAIssuerNotAllowed, Reason: fmt.Sprintf("issuer %q not in allowed_issuers", claims.IssuerID)}
	}

	if minTier != "" && contracts.TierRank(claims.Tier) < contracts.TierRank(minTier) {
		return Result{Code: contracts.CodeZKKYATierTooLow, Reason: fmt.Sprintf("proof tier %q below required %q", claims.Tier, minTier)}
	}

	return Result{
		OK: true,
		Proof: Proof{
			Scheme:           claims.Scheme,
			CircuitID:        claims.CircuitID,
			IssuerID:         claims.IssuerID,
			PublicInputsHash: claims.PublicInputsHash,
			ProofHash:        claims.ProofHash,
			Tier:             claims.Tier,
		},
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
