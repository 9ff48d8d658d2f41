package contracts

// Transcript is the append-only per-intent record committed exactly once,
// atomically with the reputation-store fingerprint marking. Field order
// matches spec §3; FinalHash is computed over every field except
// FailureEvent and FinalHash itself, so FailureEvent can reference
// the hash of the rest.
type Transcript struct {
	Version int `json:"version"`

	Input              SanitizedInput           `json:"input"`
	Directory          []CandidateEvaluation    `json:"directory"`
	CredentialChecks   []CredentialCheck        `json:"credential_checks"`
	Quotes             []QuoteRecord            `json:"quotes"`
	Selection          *Selection               `json:"selection,omitempty"`
	Negotiation        NegotiationSummary       `json:"negotiation"`
	NegotiationRounds  []NegotiationRound       `json:"negotiation_rounds"`
	Settlement         SettlementSummary        `json:"settlement"`
	SettlementLifecycle SettlementLifecycle     `json:"settlement_lifecycle"`
	SettlementAttempts []SettlementAttempt      `json:"settlement_attempts"`
	StreamingAttempts  []StreamingAttempt       `json:"streaming_attempts"`
	StreamingSummary   *StreamingSummary        `json:"streaming_summary,omitempty"`
	SettlementSegments []SettlementSegment      `json:"settlement_segments,omitempty"`
	SettlementSLA      SettlementSLA            `json:"settlement_sla"`
	Receipt            *Receipt                 `json:"receipt,omitempty"`
	Outcome            Outcome                  `json:"outcome"`
	Wallet             *Wallet                  `json:"wallet,omitempty"`
	Contention         *ContentionRecord        `json:"contention,omitempty"`
	ReconcileEvents    []ReconcileEvent         `json:"reconcile_events,omitempty"`
	Disputes           []DisputeRecord          `json:"disputes,omitempty"`

	FailureEvent *FailureEvent `json:"failure_event,omitempty"`
	FinalHash    string        `json:"final_hash,omitempty"`
}

// SanitizedInput is the input section with secrets stripped (no private
// keys, no wallet seed material).
type SanitizedInput struct {
	IntentType     string      `json:"intent_type"`
	Scope          string      `json:"scope"`
	Constraints    Constraints `json:"constraints"`
	MaxPrice       float64     `json:"max_price"`
	Urgent         bool        `json:"urgent,omitempty"`
	SettlementMode string      `json:"settlement_mode"`
	BuyerAgentID   string      `json:"buyer_agent_id"`
	SellerAgentID  string      `json:"seller_agent_id,omitempty"`
}

// CredentialCheck records one provider's KYA credential verification.
type CredentialCheck struct {
	ProviderID string `json:"provider_id"`
	Present    bool   `json:"present"`
	Valid      bool   `json:"valid"`
	Code       string `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// QuoteRecord records one provider's /quote round-trip.
type QuoteRecord struct {
	ProviderID string  `json:"provider_id"`
	Price      float64 `json:"price"`
	Verified   bool    `json:"verified"`
	Code       string  `json:"code,omitempty"`
}

// Selection records the winning provider and the ranked fallback order.
type Selection struct {
	WinnerProviderID string   `json:"winner_provider_id"`
	FallbackOrder    []string `json:"fallback_order"`
}

// NegotiationSummary records the overall negotiation outcome.
type NegotiationSummary struct {
	Strategy   string `json:"strategy"`
	RoundsUsed int    `json:"rounds_used"`
	Log        []LogEntry `json:"log,omitempty"`
}

// LogEntry is a free-form evidence line referenced from explain output.
type LogEntry struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NegotiationRound records one COUNTER round.
type NegotiationRound struct {
	Round        int     `json:"round"`
	QuotePrice   float64 `json:"quote_price"`
	CounterPrice float64 `json:"counter_price"`
	Accepted     bool    `json:"accepted"`
	WithinBand   bool    `json:"within_band"`
	Reason       string  `json:"reason,omitempty"`
}

// SettlementSummary records the chosen mode and a human-readable
// verification summary (e.g. hash match / poll outcome).
type SettlementSummary struct {
	Mode                string `json:"mode"`
	VerificationSummary string `json:"verification_summary,omitempty"`
}

// SettlementLifecycle tracks one settlement attempt end to end.
type SettlementLifecycle struct {
	Provider        string             `json:"provider,omitempty"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
	Status          string             `json:"status,omitempty"` // pending|committed|failed
	HandleID        string             `json:"handle_id,omitempty"`
	PreparedAtMs    int64              `json:"prepared_at_ms,omitempty"`
	CommittedAtMs   int64              `json:"committed_at_ms,omitempty"`
	AbortedAtMs     int64              `json:"aborted_at_ms,omitempty"`
	PaidAmount      float64            `json:"paid_amount,omitempty"`
	SettlementEvents []SettlementEvent `json:"settlement_events,omitempty"`
	FailureCode     string             `json:"failure_code,omitempty"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	Errors          []string           `json:"errors,omitempty"`
	Routing         *RoutingDecision   `json:"routing,omitempty"`
}

// RoutingDecision records the settlement router's rule match.
type RoutingDecision struct {
	Rail      string `json:"rail"`
	RuleIndex int    `json:"rule_index"` // -1 means default_provider
	Rationale string `json:"rationale"`
}

// SettlementEvent is one lifecycle transition (prepare/commit/poll/abort).
type SettlementEvent struct {
	Kind    string `json:"kind"`
	AtMs    int64  `json:"at_ms"`
	Detail  string `json:"detail,omitempty"`
}

// SettlementAttempt records one whole-attempt outcome against one
// candidate in the fallback plan.
type SettlementAttempt struct {
	ProviderID string `json:"provider_id"`
	Mode       string `json:"mode"`
	Outcome    string `json:"outcome"` // committed|failed|pending
	Code       string `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// StreamingAttempt records one streaming attempt against one candidate.
type StreamingAttempt struct {
	ProviderID    string  `json:"provider_id"`
	TicksThisAttempt int  `json:"ticks_this_attempt"`
	PaidThisAttempt  float64 `json:"paid_this_attempt"`
	TerminationReason string `json:"termination_reason"`
}

// StreamingSummary is the cumulative state across all streaming attempts
// against one intent.
type StreamingSummary struct {
	TotalTicks   int     `json:"total_ticks"`
	TotalChunks  int     `json:"total_chunks"`
	TotalPaid    float64 `json:"total_paid"`
	BudgetTotal  float64 `json:"budget_total"`
	Fulfilled    bool    `json:"fulfilled"`
}

// SettlementSegment records one independently-routed split-settlement
// segment.
type SettlementSegment struct {
	SegmentIndex int     `json:"segment_index"`
	Amount       float64 `json:"amount"`
	Rail         string  `json:"rail"`
	Status       string  `json:"status"`
	FailureCode  string  `json:"failure_code,omitempty"`
}

// SettlementSLA records bounded-time/attempt violations.
type SettlementSLA struct {
	Enabled    bool               `json:"enabled"`
	Violations []SettlementSLAViolation `json:"violations,omitempty"`
}

// SettlementSLAViolation is one max_pending_ms/max_poll_attempts breach.
type SettlementSLAViolation struct {
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"` // max_pending_ms|max_poll_attempts
	Detail     string `json:"detail"`
	PenaltyApplied bool `json:"penalty_applied"`
}

// Outcome is the terminal ok/code/reason triple.
type Outcome struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ContentionRecord records the winner pubkey and fingerprint for PACT-330
// exclusivity enforcement.
type ContentionRecord struct {
	WinnerPubkeyB58      string `json:"winner_pubkey_b58"`
	ContentionFingerprint string `json:"contention_fingerprint"`
}

// FailureEvent references the hash of the rest of the transcript at the
// point of terminal failure.
type FailureEvent struct {
	Code           string `json:"code"`
	Reason         string `json:"reason"`
	TranscriptHash string `json:"transcript_hash"`
}

// ReconcileEvent is one reconciliation poll against a pending settlement
// handle (spec §4.9): same (transcript, provider state) must always
// produce the same outcome.
type ReconcileEvent struct {
	AtMs          int64  `json:"at_ms"`
	HandleID      string `json:"handle_id"`
	PriorStatus   string `json:"prior_status"`
	NewStatus     string `json:"new_status"`
	PaidAmount    float64 `json:"paid_amount,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// DisputeRecord is the open/decide/remedy lifecycle for one dispute filed
// against a settled receipt (spec §4.9).
type DisputeRecord struct {
	DisputeID       string          `json:"dispute_id"`
	IntentID        string          `json:"intent_id"`
	Reason          string          `json:"reason"`
	OpenedAtMs      int64           `json:"opened_at_ms"`
	DeadlineMs      int64           `json:"deadline_ms"`
	Decision        *DisputeDecision `json:"decision,omitempty"`
	RemedyAppliedAtMs int64         `json:"remedy_applied_at_ms,omitempty"`
	RemedyAmount    float64         `json:"remedy_amount,omitempty"`
	Status          string          `json:"status"` // open|decided|remedied|rejected
}

// DisputeDecision is the arbiter-signed outcome of one dispute, signed
// over {dispute_id, outcome, refund_amount, notes, policy_snapshot}.
type DisputeDecision struct {
	DisputeID      string  `json:"dispute_id"`
	Outcome        string  `json:"outcome"` // refund|reject|partial_refund
	RefundAmount   float64 `json:"refund_amount"`
	Notes          string  `json:"notes,omitempty"`
	PolicySnapshot string  `json:"policy_snapshot"`
	SignerPubkeyB58 string `json:"signer_pubkey_b58"`
	SignatureB58   string  `json:"signature_b58"`
	DecidedAtMs    int64   `json:"decided_at_ms"`
}
