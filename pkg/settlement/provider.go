// Package settlement implements the Settlement Engine (C5, C8) and
// Router (C6): a pluggable provider interface with idempotent
// operations, a mock in-process rail for tests/demos, and a
// policy-driven router. Grounded on coinbase/x402's idempotency-store
// interface (other_examples) for the exactly-once semantics, and on the
// teacher's CEL-driven governance rule matching
// (core/pkg/governance/*) for the router.
package settlement

import (
	"context"
	"errors"
)

// CommitStatus is the discriminated result of commit/poll.
type CommitStatus string

const (
	StatusCommitted CommitStatus = "committed"
	StatusPending   CommitStatus = "pending"
	StatusFailed    CommitStatus = "failed"
)

// CommitResult is returned by Commit and Poll.
type CommitResult struct {
	Status      CommitStatus
	PaidAmount  float64
	FailureCode string
}

// Handle identifies a locked amount pending commit.
type Handle string

// RefundRequest is the optional refund operation used by disputes (§4.9).
type RefundRequest struct {
	DisputeID      string
	From           string
	To             string
	Amount         float64
	IdempotencyKey string
}

// RefundResult is the outcome of a refund attempt.
type RefundResult struct {
	OK              bool
	RefundedAmount  float64
	Code            string
}

var ErrRefundNotSupported = errors.New("settlement: provider does not support refund")

// Provider is the settlement rail interface every backend (mock, HTTP,
// on-chain adapter) implements. Every operation is idempotent under its
// idempotencyKey: repeated calls with the same key return the prior
// result rather than re-executing (spec §4.5).
type Provider interface {
	Name() string

	Credit(ctx context.Context, acct string, amount float64, chainID, assetID, idempotencyKey string) error
	Debit(ctx context.Context, acct string, amount float64, chainID, assetID, idempotencyKey string) error
	Lock(ctx context.Context, acct string, amount float64, idempotencyKey string) (Handle, error)
	Release(ctx context.Context, handle Handle, idempotencyKey string) error
	Commit(ctx context.Context, handle Handle, idempotencyKey string) (CommitResult, error)
	Poll(ctx context.Context, handle Handle) (CommitResult, error)
	Abort(ctx context.Context, handle Handle, idempotencyKey string) error
	GetBalance(ctx context.Context, acct, chainID, assetID string) (float64, error)

	// Refund is optional; backends that don't support it return
	// ErrRefundNotSupported.
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}
