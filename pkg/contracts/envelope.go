// Package contracts defines the wire and transcript data model shared by
// every component: envelopes, intents, agreements, candidate evaluation
// records, receipts, and the per-intent transcript.
package contracts

// Message type tags for the envelope's tagged variant. These are the
// literal strings that travel on the wire.
const (
	MsgIntent      = "INTENT"
	MsgAsk         = "ASK"
	MsgCounter     = "COUNTER"
	MsgAccept      = "ACCEPT"
	MsgCommit      = "COMMIT"
	MsgReveal      = "REVEAL"
	MsgStreamChunk = "STREAM_CHUNK"
	MsgCredential  = "CREDENTIAL"
)

// IntentMessage is the buyer's signed statement of what it wants to
// acquire and under what constraints.
type IntentMessage struct {
	IntentID       string      `json:"intent_id"`
	IntentType     string      `json:"intent_type"`
	Scope          string      `json:"scope"`
	Constraints    Constraints `json:"constraints"`
	MaxPrice       float64     `json:"max_price"`
	SettlementMode string      `json:"settlement_mode"`
	SentAtMs       int64       `json:"sent_at_ms"`
	ExpiresAtMs    int64       `json:"expires_at_ms"`
}

// Constraints bounds what counts as an acceptable fulfillment.
type Constraints struct {
	LatencyMs    int64 `json:"latency_ms"`
	FreshnessSec int64 `json:"freshness_sec"`
}

// AskMessage is the seller's signed quote in response to an intent.
type AskMessage struct {
	IntentID  string  `json:"intent_id"`
	Price     float64 `json:"price"`
	RefP50    float64 `json:"ref_p50,omitempty"`
	FirmQuote bool    `json:"firm_quote,omitempty"`
	SentAtMs  int64   `json:"sent_at_ms"`
}

// CounterMessage is a buyer counteroffer between ASK and ACCEPT.
type CounterMessage struct {
	IntentID     string  `json:"intent_id"`
	Round        int     `json:"round"`
	CounterPrice float64 `json:"counter_price"`
	SentAtMs     int64   `json:"sent_at_ms"`
}

// AcceptMessage finalizes a negotiation round at agreed_price.
type AcceptMessage struct {
	IntentID           string  `json:"intent_id"`
	AgreedPrice        float64 `json:"agreed_price"`
	ChallengeWindowMs  int64   `json:"challenge_window_ms"`
	DeliveryDeadlineMs int64   `json:"delivery_deadline_ms"`
	SentAtMs           int64   `json:"sent_at_ms"`
}

// CommitMessage carries the hash-reveal commitment hash.
type CommitMessage struct {
	IntentID      string `json:"intent_id"`
	CommitHashHex string `json:"commit_hash_hex"`
	SentAtMs      int64  `json:"sent_at_ms"`
}

// RevealMessage carries the payload/nonce whose hash must equal the prior
// CommitMessage's CommitHashHex.
type RevealMessage struct {
	IntentID  string `json:"intent_id"`
	PayloadB64 string `json:"payload_b64"`
	NonceB64   string `json:"nonce_b64"`
	SentAtMs   int64  `json:"sent_at_ms"`
}

// StreamChunkMessage is one signed streaming delivery unit.
type StreamChunkMessage struct {
	IntentID string `json:"intent_id"`
	Seq      int64  `json:"seq"`
	SentAtMs int64  `json:"sent_at_ms"`
}

// CredentialMessage is a signed capability listing for an intent type,
// issued by (or on behalf of) a provider.
type CredentialMessage struct {
	ProviderPubkeyB58 string   `json:"provider_pubkey_b58"`
	IssuerID          string   `json:"issuer_id"`
	Capabilities      []string `json:"capabilities"`
	Region            string   `json:"region,omitempty"`
	IssuedAtMs        int64    `json:"issued_at_ms"`
	ExpiresAtMs       int64    `json:"expires_at_ms"`
}
