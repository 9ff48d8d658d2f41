package contracts

import "github.com/pactmesh/pact-core/pkg/canon"

// FingerprintInput is the deterministic SHA-256 input for the intent
// fingerprint (§3): stable across retries of the same economic intent,
// and the key for at-most-one-commit enforcement.
type FingerprintInput struct {
	IntentType   string      `json:"intent_type"`
	Scope        string      `json:"scope"`
	Constraints  Constraints `json:"constraints"`
	BuyerAgentID string      `json:"buyer_agent_id"`
}

// Fingerprint computes the intent fingerprint: SHA-256 over the canonical
// form of {intent_type, scope (NFC-normalized), constraints,
// buyer_agent_id}.
func Fingerprint(intentType, scope string, constraints Constraints, buyerAgentID string) (string, error) {
	return canon.CanonicalHash(FingerprintInput{
		IntentType:   intentType,
		Scope:        canon.NormalizeScope(scope),
		Constraints:  constraints,
		BuyerAgentID: buyerAgentID,
	})
}

// ContentionFingerprintInput hashes {intent_type, policy_hash, buyer_id}
// for the PACT-330 contention exclusivity record.
type ContentionFingerprintInput struct {
	IntentType string `json:"intent_type"`
	PolicyHash string `json:"policy_hash"`
	BuyerID    string `json:"buyer_id"`
}

// ContentionFingerprint computes the PACT-330 contention key.
func ContentionFingerprint(intentType, policyHash, buyerID string) (string, error) {
	return canon.CanonicalHash(ContentionFingerprintInput{
		IntentType: intentType,
		PolicyHash: policyHash,
		BuyerID:    buyerID,
	})
}
