// Package credentials verifies provider credential envelopes over HTTP
// (spec §4.7): fetch a signed credential listing capabilities per intent
// type, verify its signature, verify signer == provider pubkey, verify
// not expired, verify a capability matches the requested intent type.
//
// Grounded on the teacher's core/pkg/util/resiliency/client.go HTTP
// client wrapper (timeout + retry idiom, simplified here to a single
// bounded-timeout client since quote/credential fetches are
// user-latency-sensitive and must not retry into the negotiation
// budget) and core/pkg/credentials/store.go's env-fallback pattern,
// adapted from "missing DB row -> fall back to env var" into "404 ->
// graceful degradation unless required".
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Claim is the signed, wire-shaped credential document a provider serves
// at its credential endpoint.
type Claim struct {
	IssuerID      string   `json:"issuer_id"`
	Capabilities  []string `json:"capabilities"`
	ExpiresAtMs   int64    `json:"expires_at_ms"`
	SubjectPubkey string   `json:"subject_pubkey_b58"`
}

// Result is the outcome of a credential check against a single provider,
// grounded on spec §3's credential_check transcript section.
type Result struct {
	Present           bool
	Verified          bool
	IssuerID          string
	Capabilities      []string
	ClaimCompleteness float64
	Code              string // populated on failure
	Reason            string
}

// Client fetches and verifies provider credential envelopes.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with a bounded timeout; credential fetches
// happen inline during candidate evaluation and must not stall the
// negotiation budget.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 5 * time.Second}}
}

// Verify fetches endpoint+"/credential", verifies the envelope, and
// checks the claim against the requested intentType. requireCredential
// controls whether a 404 (no credential offered) is tolerated.
func (c *Client) Verify(endpoint, providerPubkeyB58, intentType string, requireCredential bool, nowMs int64) Result {
	if endpoint == "" {
		if requireCredential {
			return Result{Code: contracts.CodeProviderCredentialRequired, Reason: "no endpoint to fetch credential from"}
		}
		return Result{Present: false, Verified: false}
	}

	resp, err := c.http.Get(endpoint + "/credential")
	if err != nil {
		if requireCredential {
			return Result{Code: contracts.CodeProviderCredentialRequired, Reason: fmt.Sprintf("credential fetch failed: %v", err)}
		}
		return Result{Present: false, Verified: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		if requireCredential {
			return Result{Code: contracts.CodeProviderCredentialRequired, Reason: "provider offered no credential"}
		}
		return Result{Present: false, Verified: false}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{Code: contracts.CodeProviderCredentialInvalid, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var env canon.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Result{Code: contracts.CodeProviderCredentialInvalid, Reason: fmt.Sprintf("decode envelope: %v", err)}
	}

	ok, err := canon.VerifyEnvelope(&env, "")
	if err != nil || !ok {
		return Result{Code: contracts.CodeProviderSignatureInvalid, Reason: "credential envelope signature invalid"}
	}
	if env.SignerPublicKeyB58 != providerPubkeyB58 {
		return Result{Code: contracts.CodeProviderSignerMismatch, Reason: "credential signer does not match provider pubkey"}
	}

	claim, err := decodeClaim(env.Message)
	if err != nil {
		return Result{Code: contracts.CodeProviderCredentialInvalid, Reason: err.Error()}
	}

	if claim.ExpiresAtMs > 0 && claim.ExpiresAtMs <= nowMs {
		return Result{Code: contracts.CodeProviderCredentialInvalid, Reason: "credential expired"}
	}

	matched := false
	for _, cap := range claim.Capabilities {
		if cap == intentType {
			matched = true
			break
		}
	}
	if !matched {
		return Result{Code: contracts.CodeProviderCredentialInvalid, Reason: "credential does not cover requested intent_type"}
	}

	completeness := 0.0
	if len(claim.Capabilities) > 0 {
		completeness = 1.0 / float64(len(claim.Capabilities))
		if matched {
			completeness = 1.0
		}
	}

	return Result{
		Present:           true,
		Verified:          true,
		IssuerID:          claim.IssuerID,
		Capabilities:      claim.Capabilities,
		ClaimCompleteness: completeness,
	}
}

func decodeClaim(message any) (Claim, error) {
	var claim Claim
	if err := canon.DecodeMessage(message, &claim); err != nil {
		return Claim{}, errors.New("credentials: decode claim: " + err.Error())
	}
	return claim, nil
}
