package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/reconcile"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

// fakeProvider implements settlement.Provider with a scripted Poll
// result, so reconcile tests can assert exact status transitions
// without depending on MockProvider's own lock bookkeeping.
type fakeProvider struct {
	pollResult settlement.CommitResult
	pollErr    error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Credit(context.Context, string, float64, string, string, string) error {
	return nil
}
func (f *fakeProvider) Debit(context.Context, string, float64, string, string, string) error {
	return nil
}
func (f *fakeProvider) Lock(context.Context, string, float64, string) (settlement.Handle, error) {
	return "", nil
}
func (f *fakeProvider) Release(context.Context, settlement.Handle, string) error { return nil }
func (f *fakeProvider) Commit(context.Context, settlement.Handle, string) (settlement.CommitResult, error) {
	return settlement.CommitResult{}, nil
}
func (f *fakeProvider) Poll(context.Context, settlement.Handle) (settlement.CommitResult, error) {
	return f.pollResult, f.pollErr
}
func (f *fakeProvider) Abort(context.Context, settlement.Handle, string) error { return nil }
func (f *fakeProvider) GetBalance(context.Context, string, string, string) (float64, error) {
	return 0, nil
}
func (f *fakeProvider) Refund(context.Context, settlement.RefundRequest) (settlement.RefundResult, error) {
	return settlement.RefundResult{}, settlement.ErrRefundNotSupported
}

func pendingTranscript() *contracts.Transcript {
	return &contracts.Transcript{
		SettlementLifecycle: contracts.SettlementLifecycle{
			Status:   "pending",
			HandleID: "handle-1",
		},
		Receipt: &contracts.Receipt{IntentID: "intent-1"},
	}
}

func TestReconcile_NonPendingIsNoOp(t *testing.T) {
	tr := pendingTranscript()
	tr.SettlementLifecycle.Status = "committed"
	provider := &fakeProvider{}

	res := reconcile.Reconcile(context.Background(), tr, provider, 1000)

	require.True(t, res.OK)
	require.False(t, res.Changed)
	require.Empty(t, tr.ReconcileEvents)
}

func TestReconcile_MissingHandleFails(t *testing.T) {
	tr := pendingTranscript()
	tr.SettlementLifecycle.HandleID = ""
	provider := &fakeProvider{}

	res := reconcile.Reconcile(context.Background(), tr, provider, 1000)

	require.False(t, res.OK)
	require.Equal(t, contracts.CodeReconcileNoHandle, res.Code)
}

func TestReconcile_StillPendingRecordsEventButNoChange(t *testing.T) {
	tr := pendingTranscript()
	provider := &fakeProvider{pollResult: settlement.CommitResult{Status: settlement.StatusPending}}

	res := reconcile.Reconcile(context.Background(), tr, provider, 2000)

	require.True(t, res.OK)
	require.False(t, res.Changed)
	require.Equal(t, "pending", tr.SettlementLifecycle.Status)
	require.Len(t, tr.ReconcileEvents, 1)
	require.Equal(t, "pending", tr.ReconcileEvents[0].PriorStatus)
	require.Equal(t, "pending", tr.ReconcileEvents[0].NewStatus)
}

func TestReconcile_CommittedUpdatesReceiptAndOutcome(t *testing.T) {
	tr := pendingTranscript()
	provider := &fakeProvider{pollResult: settlement.CommitResult{Status: settlement.StatusCommitted, PaidAmount: 4.5}}

	res := reconcile.Reconcile(context.Background(), tr, provider, 3000)

	require.True(t, res.OK)
	require.True(t, res.Changed)
	require.Equal(t, "committed", tr.SettlementLifecycle.Status)
	require.Equal(t, int64(3000), tr.SettlementLifecycle.CommittedAtMs)
	require.Equal(t, 4.5, tr.SettlementLifecycle.PaidAmount)
	require.True(t, tr.Receipt.Fulfilled)
	require.Equal(t, 4.5, tr.Receipt.PaidAmount)
	require.True(t, tr.Outcome.OK)
	require.Len(t, tr.ReconcileEvents, 1)
	require.Equal(t, "committed", tr.ReconcileEvents[0].NewStatus)
}

func TestReconcile_FailedSetsFailureFields(t *testing.T) {
	tr := pendingTranscript()
	provider := &fakeProvider{pollResult: settlement.CommitResult{Status: settlement.StatusFailed, FailureCode: "SETTLEMENT_FAILED"}}

	res := reconcile.Reconcile(context.Background(), tr, provider, 4000)

	require.False(t, res.OK)
	require.True(t, res.Changed)
	require.Equal(t, "failed", tr.SettlementLifecycle.Status)
	require.Equal(t, "SETTLEMENT_FAILED", tr.SettlementLifecycle.FailureCode)
	require.False(t, tr.Outcome.OK)
}

func TestReconcile_PollErrorRecordsFailureEvent(t *testing.T) {
	tr := pendingTranscript()
	provider := &fakeProvider{pollErr: errors.New("rail unreachable")}

	res := reconcile.Reconcile(context.Background(), tr, provider, 5000)

	require.False(t, res.OK)
	require.Equal(t, contracts.CodeSettlementFailed, res.Code)
	require.Equal(t, "pending", tr.SettlementLifecycle.Status) // unchanged
	require.Len(t, tr.ReconcileEvents, 1)
}
