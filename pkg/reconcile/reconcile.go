// Package reconcile implements reconciliation (C9, spec §4.9): for any
// transcript whose settlement_lifecycle.status is "pending" and carries
// a handle_id, poll the settlement rail once, update status/paid_amount/
// failure fields in place, and append a reconcile_event. Same
// (transcript, provider state) must always produce the same outcome —
// there is no hidden retry or backoff here, matching the orchestrator's
// own single-attempt-per-call discipline in pkg/orchestrator.
package reconcile

import (
	"context"
	"fmt"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

// Result is the outcome of one Reconcile call.
type Result struct {
	OK        bool
	Changed   bool // true if status transitioned from pending
	NewStatus string
	Code      string
	Reason    string
}

// Reconcile polls provider for t.SettlementLifecycle.HandleID and updates
// t in place at time nowMs. It is a no-op (Changed=false, OK=true) when
// the transcript is not in "pending" status, matching spec §4.9's scope
// ("for any transcript whose settlement_lifecycle.status = pending").
func Reconcile(ctx context.Context, t *contracts.Transcript, provider settlement.Provider, nowMs int64) Result {
	lc := &t.SettlementLifecycle
	if lc.Status != "pending" {
		return Result{OK: true, Changed: false, Code: contracts.CodeReconcileNotPending, NewStatus: lc.Status}
	}
	if lc.HandleID == "" {
		return Result{OK: false, Code: contracts.CodeReconcileNoHandle, Reason: "pending settlement has no handle_id"}
	}

	prior := lc.Status
	res, err := provider.Poll(ctx, settlement.Handle(lc.HandleID))
	if err != nil {
		event := contracts.ReconcileEvent{
			AtMs: nowMs, HandleID: lc.HandleID, PriorStatus: prior, NewStatus: prior,
			FailureCode: contracts.CodeSettlementFailed, FailureReason: fmt.Sprintf("poll: %v", err),
		}
		t.ReconcileEvents = append(t.ReconcileEvents, event)
		return Result{OK: false, Code: contracts.CodeSettlementFailed, Reason: event.FailureReason}
	}

	event := contracts.ReconcileEvent{AtMs: nowMs, HandleID: lc.HandleID, PriorStatus: prior}

	switch res.Status {
	case settlement.StatusCommitted:
		lc.Status = "committed"
		lc.CommittedAtMs = nowMs
		lc.PaidAmount = res.PaidAmount
		if t.Receipt != nil {
			t.Receipt.Fulfilled = true
			t.Receipt.PaidAmount = res.PaidAmount
		}
		t.Outcome = contracts.Outcome{OK: true}
	case settlement.StatusFailed:
		lc.Status = "failed"
		lc.FailureCode = res.FailureCode
		lc.FailureReason = "settlement provider reported failure on reconciliation poll"
		t.Outcome = contracts.Outcome{OK: false, Code: res.FailureCode, Reason: lc.FailureReason}
	default:
		// Still pending: nothing to change, but the poll itself is
		// recorded as evidence.
		event.NewStatus = prior
		t.ReconcileEvents = append(t.ReconcileEvents, event)
		return Result{OK: true, Changed: false, NewStatus: prior}
	}

	event.NewStatus = lc.Status
	event.PaidAmount = lc.PaidAmount
	event.FailureCode = lc.FailureCode
	event.FailureReason = lc.FailureReason
	t.ReconcileEvents = append(t.ReconcileEvents, event)

	return Result{OK: lc.Status == "committed", Changed: true, NewStatus: lc.Status, Code: lc.FailureCode, Reason: lc.FailureReason}
}
