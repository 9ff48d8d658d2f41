// Package disputes implements the OPEN/ARBITER/APPLY_REMEDY flow (spec
// §4.9): a buyer opens a dispute against a settled receipt within a
// policy-bounded window, an arbiter signs a decision over the dispute's
// canonical fields, and applying the remedy invokes the settlement
// rail's refund operation keyed by dispute_id for exactly-once
// semantics. Grounded on pkg/canon's sign-the-canonical-bytes idiom
// (the same one pkg/negotiation uses for COMMIT/REVEAL) and on
// pkg/settlement.Provider's idempotent-refund contract.
package disputes

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

// OpenInput carries the fields spec §4.9 requires to open a dispute.
type OpenInput struct {
	Receipt contracts.Receipt
	Reason  string
	NowMs   int64
	Policy  policy.DisputesPolicy
}

// Open validates the dispute window against policy and returns a new,
// "open"-status DisputeRecord. Deterministic: same (receipt, reason,
// now, policy) always yields the same dispute_id input (uuid aside) and
// deadline.
func Open(in OpenInput) (contracts.DisputeRecord, error) {
	if !in.Policy.Enabled {
		return contracts.DisputeRecord{}, fmt.Errorf("disputes: %s: disputes are disabled by policy", contracts.CodeDisputesDisabled)
	}
	deadline := in.Receipt.TimestampMs + in.Policy.WindowMs
	if in.NowMs > deadline {
		return contracts.DisputeRecord{}, fmt.Errorf("disputes: %s: dispute window closed at %d, now %d", contracts.CodeDisputeWindowExpired, deadline, in.NowMs)
	}
	return contracts.DisputeRecord{
		DisputeID: "dispute-" + uuid.NewString(),
		IntentID:  in.Receipt.IntentID,
		Reason:    in.Reason,
		OpenedAtMs: in.NowMs,
		DeadlineMs: deadline,
		Status:    "open",
	}, nil
}

// Decide has arbiter sign a DisputeDecision over the dispute's canonical
// fields and attaches it to rec, transitioning rec.Status to "decided".
// refundAmount and outcome are the arbiter's own judgment; Decide only
// enforces the policy caps (max_refund_pct, allow_partial) spec §4.9
// names.
func Decide(arbiter canon.Signer, rec *contracts.DisputeRecord, outcome string, refundAmount float64, notes string, pol policy.DisputesPolicy, maxRefundable float64, policySnapshotHash string, nowMs int64) error {
	if rec.Status != "open" {
		return fmt.Errorf("disputes: %s: dispute %s is not open (status=%s)", contracts.CodeDisputeAlreadyDecided, rec.DisputeID, rec.Status)
	}
	if outcome == "partial_refund" && !pol.AllowPartial {
		return fmt.Errorf("disputes: %s: partial refunds are not allowed by policy", contracts.CodeDisputePartialNotAllowed)
	}
	cap := maxRefundable * pol.MaxRefundPct
	if pol.MaxRefundPct > 0 && refundAmount > cap {
		return fmt.Errorf("disputes: %s: refund_amount %.8f exceeds policy cap %.8f", contracts.CodeDisputeRefundExceedsCap, refundAmount, cap)
	}

	decision := contracts.DisputeDecision{
		DisputeID:      rec.DisputeID,
		Outcome:        outcome,
		RefundAmount:   refundAmount,
		Notes:          notes,
		PolicySnapshot: policySnapshotHash,
		SignerPubkeyB58: arbiter.PublicKeyB58(),
		DecidedAtMs:    nowMs,
	}
	canonical, err := canon.JCS(decision)
	if err != nil {
		return fmt.Errorf("disputes: canonicalize decision: %w", err)
	}
	sig, err := arbiter.Sign(canonical)
	if err != nil {
		return fmt.Errorf("disputes: sign decision: %w", err)
	}
	decision.SignatureB58 = sig

	rec.Decision = &decision
	rec.Status = "decided"
	return nil
}

// ApplyRemedy invokes provider.Refund keyed by dispute_id, so a repeated
// call for the same dispute is a no-op returning the prior result rather
// than refunding twice. Transitions rec.Status to "remedied" on a
// refund/partial_refund decision with a non-zero refund amount; a
// "reject" decision needs no rail call and transitions straight to
// "remedied" with a zero remedy amount.
func ApplyRemedy(ctx context.Context, provider settlement.Provider, rec *contracts.DisputeRecord, from, to string, nowMs int64) error {
	if rec.Status != "decided" {
		return fmt.Errorf("disputes: %s: dispute %s has no decision to remedy (status=%s)", contracts.CodeDisputeNotDecided, rec.DisputeID, rec.Status)
	}
	if rec.Decision.Outcome == "reject" || rec.Decision.RefundAmount == 0 {
		rec.Status = "remedied"
		rec.RemedyAppliedAtMs = nowMs
		rec.RemedyAmount = 0
		return nil
	}

	res, err := provider.Refund(ctx, settlement.RefundRequest{
		DisputeID:      rec.DisputeID,
		From:           from,
		To:             to,
		Amount:         rec.Decision.RefundAmount,
		IdempotencyKey: rec.DisputeID,
	})
	if err != nil {
		return fmt.Errorf("disputes: %s: refund failed: %w", contracts.CodeDisputeRemedyFailed, err)
	}
	if !res.OK {
		return fmt.Errorf("disputes: %s: refund rejected by provider: %s", contracts.CodeDisputeRemedyFailed, res.Code)
	}

	rec.Status = "remedied"
	rec.RemedyAppliedAtMs = nowMs
	rec.RemedyAmount = res.RefundedAmount
	return nil
}
