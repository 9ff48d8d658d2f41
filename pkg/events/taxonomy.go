package events

import (
	"errors"
	"fmt"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// CodedError pairs a protocol failure code with a human-readable reason,
// the shape every component in this module returns instead of a bare
// error once it reaches an orchestrator boundary. Grounded on the
// teacher's api.ProblemDetail (core/pkg/api/apierror.go): a typed error
// carrying a stable code plus a free-form detail string, generalized
// here from an HTTP response body into a value any caller can wrap with
// fmt.Errorf("%w", ...) and later recover with AsCodedError.
type CodedError struct {
	Code   string
	Reason string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// NewCodedError constructs a CodedError.
func NewCodedError(code, reason string) *CodedError {
	return &CodedError{Code: code, Reason: reason}
}

// MapError recovers (code, reason) from err. If err (or anything it
// wraps) is a *CodedError, its fields are returned directly; otherwise
// err is reported under CodeSettlementFailed, the catch-all code for
// an unclassified failure reaching the orchestrator from a rail or
// transport this module does not otherwise model.
func MapError(err error) (code, reason string) {
	if err == nil {
		return "", ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Reason
	}
	return contracts.CodeSettlementFailed, err.Error()
}

// IsRetryable reports whether code should advance the fallback loop to
// the next candidate. required indicates whether the wallet/ZK-KYA
// requirement that produced code was actually in force; it is ignored
// for codes unrelated to those requirements. Thin wrapper kept in this
// package so orchestrator code calls one taxonomy surface rather than
// reaching into contracts directly.
func IsRetryable(code string, required bool) bool {
	return contracts.IsRetryable(code, required)
}

// IsPending reports whether code leaves the transcript in "pending"
// status (settlement rail returned an unresolved poll) rather than
// failing or continuing the fallback loop.
func IsPending(code string) bool {
	return contracts.IsPending(code)
}

// ShouldRetryAfterFailure decides whether the orchestrator's fallback
// loop should attempt the next candidate after a failure with code,
// given whether the wallet/ZK-KYA requirement that produced it was in
// force and whether every remaining candidate has already failed with
// an all-candidates-exhaustion code (spec §7: PROVIDER_MISSING_REQUIRED_CREDENTIALS
// and PROVIDER_UNTRUSTED_ISSUER are terminal only once every candidate
// is exhausted).
func ShouldRetryAfterFailure(code string, required bool, allRemainingExhausted bool) bool {
	if IsPending(code) {
		return false
	}
	if contracts.IsAllCandidatesExhaustionCode(code) && allRemainingExhausted {
		return false
	}
	return IsRetryable(code, required)
}

// MapErrorToFailureTaxonomy classifies code into one of the three
// terminality buckets (spec §7): retryable, terminal, or pending.
// required has the same meaning as in IsRetryable.
func MapErrorToFailureTaxonomy(code string, required bool) string {
	switch {
	case IsPending(code):
		return contracts.TerminalityPending
	case IsRetryable(code, required):
		return contracts.TerminalityRetryable
	default:
		return contracts.TerminalityTerminal
	}
}
