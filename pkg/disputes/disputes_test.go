package disputes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/disputes"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

func enabledPolicy() policy.DisputesPolicy {
	return policy.DisputesPolicy{Enabled: true, WindowMs: 86_400_000, MaxRefundPct: 1.0, AllowPartial: true}
}

func settledReceipt() contracts.Receipt {
	return contracts.Receipt{IntentID: "intent-1", AgreedPrice: 10, Fulfilled: true, PaidAmount: 10, TimestampMs: 1_000_000}
}

func TestOpen_DisabledByPolicy(t *testing.T) {
	_, err := disputes.Open(disputes.OpenInput{Receipt: settledReceipt(), Reason: "bad output", NowMs: 1_000_100, Policy: policy.DisputesPolicy{Enabled: false}})
	require.ErrorContains(t, err, contracts.CodeDisputesDisabled)
}

func TestOpen_WindowExpired(t *testing.T) {
	pol := enabledPolicy()
	pol.WindowMs = 1000
	_, err := disputes.Open(disputes.OpenInput{Receipt: settledReceipt(), Reason: "bad output", NowMs: 1_000_000 + 2000, Policy: pol})
	require.ErrorContains(t, err, contracts.CodeDisputeWindowExpired)
}

func TestOpen_WithinWindowSucceeds(t *testing.T) {
	rec, err := disputes.Open(disputes.OpenInput{Receipt: settledReceipt(), Reason: "bad output", NowMs: 1_000_100, Policy: enabledPolicy()})
	require.NoError(t, err)
	require.Equal(t, "open", rec.Status)
	require.Equal(t, "intent-1", rec.IntentID)
	require.NotEmpty(t, rec.DisputeID)
	require.Equal(t, int64(1_000_000+enabledPolicy().WindowMs), rec.DeadlineMs)
}

func TestDecide_RejectsAlreadyDecided(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	rec := &contracts.DisputeRecord{Status: "decided"}
	err = disputes.Decide(signer, rec, "refund", 5, "", enabledPolicy(), 10, "snap", 2000)
	require.ErrorContains(t, err, contracts.CodeDisputeAlreadyDecided)
}

func TestDecide_PartialRefundRejectedWhenNotAllowed(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	rec := &contracts.DisputeRecord{Status: "open"}
	pol := enabledPolicy()
	pol.AllowPartial = false
	err = disputes.Decide(signer, rec, "partial_refund", 5, "", pol, 10, "snap", 2000)
	require.ErrorContains(t, err, contracts.CodeDisputePartialNotAllowed)
}

func TestDecide_RefundExceedsCap(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	rec := &contracts.DisputeRecord{Status: "open"}
	pol := enabledPolicy()
	pol.MaxRefundPct = 0.5
	err = disputes.Decide(signer, rec, "refund", 8, "", pol, 10, "snap", 2000)
	require.ErrorContains(t, err, contracts.CodeDisputeRefundExceedsCap)
}

func TestDecide_SignsAndTransitions(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	rec := &contracts.DisputeRecord{DisputeID: "dispute-1", Status: "open"}

	err = disputes.Decide(signer, rec, "refund", 10, "defective", enabledPolicy(), 10, "snap", 2500)
	require.NoError(t, err)
	require.Equal(t, "decided", rec.Status)
	require.NotNil(t, rec.Decision)
	require.Equal(t, "refund", rec.Decision.Outcome)
	require.Equal(t, 10.0, rec.Decision.RefundAmount)
	require.Equal(t, signer.PublicKeyB58(), rec.Decision.SignerPubkeyB58)
	require.NotEmpty(t, rec.Decision.SignatureB58)

	// signature verifies against the canonicalized decision sans the
	// signature field itself being part of the signed payload
	canonical, err := canon.JCS(contracts.DisputeDecision{
		DisputeID:       rec.Decision.DisputeID,
		Outcome:         rec.Decision.Outcome,
		RefundAmount:    rec.Decision.RefundAmount,
		Notes:           rec.Decision.Notes,
		PolicySnapshot:  rec.Decision.PolicySnapshot,
		SignerPubkeyB58: rec.Decision.SignerPubkeyB58,
		DecidedAtMs:     rec.Decision.DecidedAtMs,
	})
	require.NoError(t, err)
	ok, err := canon.Verify(signer.PublicKeyB58(), rec.Decision.SignatureB58, canonical)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyRemedy_RequiresDecided(t *testing.T) {
	rec := &contracts.DisputeRecord{Status: "open"}
	provider := settlement.NewMockProvider(nil)
	err := disputes.ApplyRemedy(context.Background(), provider, rec, "seller", "buyer", 3000)
	require.ErrorContains(t, err, contracts.CodeDisputeNotDecided)
}

func TestApplyRemedy_RejectSkipsRailCall(t *testing.T) {
	rec := &contracts.DisputeRecord{
		Status:   "decided",
		Decision: &contracts.DisputeDecision{Outcome: "reject", RefundAmount: 0},
	}
	provider := settlement.NewMockProvider(nil)
	err := disputes.ApplyRemedy(context.Background(), provider, rec, "seller", "buyer", 4000)
	require.NoError(t, err)
	require.Equal(t, "remedied", rec.Status)
	require.Equal(t, 0.0, rec.RemedyAmount)
	require.Equal(t, int64(4000), rec.RemedyAppliedAtMs)
}

func TestApplyRemedy_RefundCallsRailOnce(t *testing.T) {
	rec := &contracts.DisputeRecord{
		DisputeID: "dispute-42",
		Status:    "decided",
		Decision:  &contracts.DisputeDecision{Outcome: "refund", RefundAmount: 7},
	}
	provider := settlement.NewMockProvider(map[string]float64{"seller": 100})

	err := disputes.ApplyRemedy(context.Background(), provider, rec, "seller", "buyer", 5000)
	require.NoError(t, err)
	require.Equal(t, "remedied", rec.Status)
	require.Equal(t, 7.0, rec.RemedyAmount)

	sellerBal, err := provider.GetBalance(context.Background(), "seller", "", "")
	require.NoError(t, err)
	require.Equal(t, 93.0, sellerBal)

	// repeating ApplyRemedy against a fresh record with the same
	// dispute_id must not double-refund (idempotency key = dispute_id)
	rec2 := &contracts.DisputeRecord{
		DisputeID: "dispute-42",
		Status:    "decided",
		Decision:  &contracts.DisputeDecision{Outcome: "refund", RefundAmount: 7},
	}
	err = disputes.ApplyRemedy(context.Background(), provider, rec2, "seller", "buyer", 6000)
	require.NoError(t, err)
	sellerBal2, err := provider.GetBalance(context.Background(), "seller", "", "")
	require.NoError(t, err)
	require.Equal(t, 93.0, sellerBal2) // unchanged by the repeated call
}
