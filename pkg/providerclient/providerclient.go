// Package providerclient drives the buyer side of the HTTP provider
// surface mandated by spec §6 ("External Interfaces"): POST /quote,
// /commit, /reveal, /stream_chunk, each answering with a signed
// canon.Envelope the caller still has to verify against the candidate's
// directory-declared pubkey before trusting it.
//
// Grounded on pkg/credentials/credentials.go's HTTP client idiom: a
// single bounded-timeout client, one attempt per call, no retry into
// the negotiation/settlement budget (see DESIGN.md's Open Question
// resolution on quote/commit/reveal fetch retries).
package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Client issues the four provider-surface HTTP calls.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with a bounded timeout matching
// credentials.NewClient's budget.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 5 * time.Second}}
}

// QuoteRequest is the POST /quote body (spec §6).
type QuoteRequest struct {
	IntentID    string                `json:"intent_id"`
	IntentType  string                `json:"intent_type"`
	MaxPrice    float64               `json:"max_price"`
	Constraints contracts.Constraints `json:"constraints"`
	Urgent      bool                  `json:"urgent"`
}

// CommitRequest is the POST /commit body (spec §6). The buyer generates
// payload/nonce and sends them to the provider, which hashes and signs
// a COMMIT attesting to the pair it will later reveal.
type CommitRequest struct {
	IntentID   string `json:"intent_id"`
	PayloadB64 string `json:"payload_b64"`
	NonceB64   string `json:"nonce_b64"`
}

// RevealRequest is the POST /reveal body (spec §6).
type RevealRequest struct {
	IntentID      string `json:"intent_id"`
	PayloadB64    string `json:"payload_b64"`
	NonceB64      string `json:"nonce_b64"`
	CommitHashHex string `json:"commit_hash_hex"`
}

// StreamChunkRequest is the POST /stream_chunk body (spec §6).
type StreamChunkRequest struct {
	IntentID string `json:"intent_id"`
	Seq      int64  `json:"seq"`
	SentAtMs int64  `json:"sent_at_ms"`
}

type envelopeResponse struct {
	Envelope canon.Envelope `json:"envelope"`
}

type revealResponse struct {
	OK       bool           `json:"ok"`
	Envelope canon.Envelope `json:"envelope"`
	Code     string         `json:"code"`
	Reason   string         `json:"reason"`
}

func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("providerclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("providerclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("providerclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("providerclient: unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("providerclient: decode response: %w", err)
	}
	return nil
}

// Quote performs the POST /quote round trip and returns the signed ASK
// envelope. Callers still must run it through canon.VerifyEnvelope
// against the candidate's directory pubkey before trusting it.
func (c *Client) Quote(ctx context.Context, endpoint string, req QuoteRequest) (canon.Envelope, error) {
	var out envelopeResponse
	if err := c.post(ctx, endpoint+"/quote", req, &out); err != nil {
		return canon.Envelope{}, err
	}
	return out.Envelope, nil
}

// Commit performs the POST /commit round trip and returns the signed
// COMMIT envelope.
func (c *Client) Commit(ctx context.Context, endpoint string, req CommitRequest) (canon.Envelope, error) {
	var out envelopeResponse
	if err := c.post(ctx, endpoint+"/commit", req, &out); err != nil {
		return canon.Envelope{}, err
	}
	return out.Envelope, nil
}

// Reveal performs the POST /reveal round trip. A provider-side proof
// rejection (ok=false) surfaces as an error carrying the provider's
// code/reason rather than a usable envelope.
func (c *Client) Reveal(ctx context.Context, endpoint string, req RevealRequest) (canon.Envelope, error) {
	var out revealResponse
	if err := c.post(ctx, endpoint+"/reveal", req, &out); err != nil {
		return canon.Envelope{}, err
	}
	if !out.OK {
		return canon.Envelope{}, fmt.Errorf("providerclient: reveal rejected: %s: %s", out.Code, out.Reason)
	}
	return out.Envelope, nil
}

// StreamChunk performs the POST /stream_chunk round trip and returns
// the signed STREAM_CHUNK envelope for one tick.
func (c *Client) StreamChunk(ctx context.Context, endpoint string, req StreamChunkRequest) (canon.Envelope, error) {
	var out envelopeResponse
	if err := c.post(ctx, endpoint+"/stream_chunk", req, &out); err != nil {
		return canon.Envelope{}, err
	}
	return out.Envelope, nil
}
