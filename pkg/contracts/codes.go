package contracts

// Failure codes — the complete set at the orchestrator boundary (spec §6).
const (
	CodeInvalidPolicy                    = "INVALID_POLICY"
	CodeNoProviders                       = "NO_PROVIDERS"
	CodeNoEligibleProviders               = "NO_ELIGIBLE_PROVIDERS"
	CodeProviderMissingRequiredCreds      = "PROVIDER_MISSING_REQUIRED_CREDENTIALS"
	CodeProviderUntrustedIssuer           = "PROVIDER_UNTRUSTED_ISSUER"
	CodeProviderCredentialInvalid         = "PROVIDER_CREDENTIAL_INVALID"
	CodeProviderCredentialRequired        = "PROVIDER_CREDENTIAL_REQUIRED"
	CodeProviderTrustTierTooLow           = "PROVIDER_TRUST_TIER_TOO_LOW"
	CodeProviderTrustScoreTooLow          = "PROVIDER_TRUST_SCORE_TOO_LOW"
	CodeProviderSignatureInvalid          = "PROVIDER_SIGNATURE_INVALID"
	CodeProviderSignerMismatch            = "PROVIDER_SIGNER_MISMATCH"
	CodeProviderQuoteHTTPError            = "PROVIDER_QUOTE_HTTP_ERROR"
	CodeProviderQuoteParseError           = "PROVIDER_QUOTE_PARSE_ERROR"
	CodeProviderQuoteInvalid              = "PROVIDER_QUOTE_INVALID"
	CodeProviderQuoteOutOfBand            = "PROVIDER_QUOTE_OUT_OF_BAND"
	CodeProviderQuotePolicyRejected       = "PROVIDER_QUOTE_POLICY_REJECTED"
	CodeNegotiationFailed                 = "NEGOTIATION_FAILED"
	CodeSettlementFailed                  = "SETTLEMENT_FAILED"
	CodeSettlementPollTimeout             = "SETTLEMENT_POLL_TIMEOUT"
	CodeSettlementProviderNotImplemented  = "SETTLEMENT_PROVIDER_NOT_IMPLEMENTED"
	CodeStreamingNotConfigured            = "STREAMING_NOT_CONFIGURED"
	CodeHTTPStreamingError                = "HTTP_STREAMING_ERROR"
	CodeHTTPProviderError                 = "HTTP_PROVIDER_ERROR"
	CodeFailedProof                       = "FAILED_PROOF"
	CodeFailedIdentity                    = "FAILED_IDENTITY"
	CodeNoAgreement                       = "NO_AGREEMENT"
	CodeNoReceipt                         = "NO_RECEIPT"
	CodeWalletConnectFailed               = "WALLET_CONNECT_FAILED"
	CodeWalletCapabilityMissing           = "WALLET_CAPABILITY_MISSING"
	CodeWalletProofFailed                 = "WALLET_PROOF_FAILED"
	CodeZKKYARequired                     = "ZK_KYA_REQUIRED"
	CodeZKKYAExpired                      = "ZK_KYA_EXPIRED"
	CodeZKKYAInvalid                      = "ZK_KYA_INVALID"
	CodeZKKYATierTooLow                   = "ZK_KYA_TIER_TOO_LOW"
	CodeZKKYAIssuerNotAllowed             = "ZK_KYA_ISSUER_NOT_ALLOWED"
	CodePact330                           = "PACT-330"
	CodePact331                           = "PACT-331"
	CodeSettlementSLAViolation            = "SETTLEMENT_SLA_VIOLATION"
	CodeBuyerStopped                      = "BUYER_STOPPED"
	CodeInvalidMessageType                = "INVALID_MESSAGE_TYPE"
	CodeDisputesDisabled                  = "DISPUTES_DISABLED"
	CodeDisputeWindowExpired              = "DISPUTE_WINDOW_EXPIRED"
	CodeDisputeRefundExceedsCap           = "DISPUTE_REFUND_EXCEEDS_CAP"
	CodeDisputePartialNotAllowed          = "DISPUTE_PARTIAL_NOT_ALLOWED"
	CodeDisputeAlreadyDecided             = "DISPUTE_ALREADY_DECIDED"
	CodeDisputeNotDecided                 = "DISPUTE_NOT_DECIDED"
	CodeDisputeRemedyFailed               = "DISPUTE_REMEDY_FAILED"
	CodeReconcileNoHandle                 = "RECONCILE_NO_HANDLE"
	CodeReconcileNotPending               = "RECONCILE_NOT_PENDING"
)

// Terminality classifications (spec §7).
const (
	TerminalityRetryable = "retryable"
	TerminalityTerminal  = "terminal"
	TerminalityPending   = "pending"
)

// retryableCodes are always retryable: on failure, the orchestrator
// advances to the next candidate in the fallback plan.
var retryableCodes = map[string]bool{
	CodeProviderSignatureInvalid:         true,
	CodeProviderSignerMismatch:           true,
	CodeProviderQuoteHTTPError:           true,
	CodeProviderQuoteParseError:          true,
	CodeSettlementFailed:                 true,
	CodeSettlementProviderNotImplemented: true,
	CodeHTTPProviderError:                true,
	CodeHTTPStreamingError:               true,
	CodeInvalidMessageType:               true,
}

// terminalCodes always seal the transcript immediately; no further
// candidates are attempted.
var terminalCodes = map[string]bool{
	CodeInvalidPolicy:          true,
	CodePact330:                true,
	CodePact331:                true,
	CodeFailedProof:            true,
	CodeStreamingNotConfigured: true,
	CodeBuyerStopped:           true,
}

// pendingCodes stop the fallback loop without sealing the transcript as a
// failure: status stays "pending" and a handle_id is preserved for later
// reconciliation (spec §7, "Pending, not terminal").
var pendingCodes = map[string]bool{
	CodeSettlementPollTimeout: true,
}

// IsPending reports whether code leaves the transcript in "pending"
// status rather than failing or continuing the fallback loop.
func IsPending(code string) bool {
	return pendingCodes[code]
}

// walletCodes and zkKYACodes are terminal only when the corresponding
// requirement is in force; callers pass the "required" flag to
// IsRetryable (directly or via events.IsRetryable) rather than baking it
// in here.
var walletCodes = map[string]bool{
	CodeWalletConnectFailed:     true,
	CodeWalletCapabilityMissing: true,
	CodeWalletProofFailed:       true,
}

var zkKYACodes = map[string]bool{
	CodeZKKYARequired:         true,
	CodeZKKYAExpired:          true,
	CodeZKKYAInvalid:          true,
	CodeZKKYATierTooLow:       true,
	CodeZKKYAIssuerNotAllowed: true,
}

// allFailCandidatesCodes are terminal only once every candidate has been
// exhausted with the same code (PROVIDER_MISSING_REQUIRED_CREDENTIALS,
// PROVIDER_UNTRUSTED_ISSUER) — the orchestrator tracks exhaustion itself
// and asks IsRetryable per-candidate during the fallback loop.
var allFailCandidatesCodes = map[string]bool{
	CodeProviderMissingRequiredCreds: true,
	CodeProviderUntrustedIssuer:      true,
}

// IsRetryable reports whether code should advance the fallback loop to
// the next candidate rather than sealing the transcript. required
// indicates whether the wallet/ZK-KYA requirement that produced code was
// actually in force (those codes are terminal only when required).
func IsRetryable(code string, required bool) bool {
	if pendingCodes[code] {
		return false
	}
	if retryableCodes[code] {
		return true
	}
	if terminalCodes[code] {
		return false
	}
	if walletCodes[code] || zkKYACodes[code] {
		return !required
	}
	if allFailCandidatesCodes[code] {
		// Per-candidate, this is retryable; all-candidates-exhausted
		// handling is the orchestrator's responsibility.
		return true
	}
	// Default: unknown codes are treated as retryable-once, matching
	// the fail-open-to-next-candidate bias of the fallback loop.
	return true
}

// IsAllCandidatesExhaustionCode reports whether code only becomes
// terminal once every candidate has failed with it.
func IsAllCandidatesExhaustionCode(code string) bool {
	return allFailCandidatesCodes[code]
}
