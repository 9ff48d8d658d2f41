// Package streaming implements the streaming settlement mode (part of
// C8, spec §4.5): a tick-driven pay-as-you-go exchange with a monotonic
// stream clock distinct from the session clock, cumulative state that
// survives fallback across providers, and early-termination conditions
// (budget exhausted, buyer stop, retryable/non-retryable error).
//
// Grounded on the teacher's deterministic-clock idiom in
// core/pkg/kernel (control loops advance an injected clock, never
// time.Now) and on the Streaming Exchange's description in spec §4.5.
package streaming

import (
	"context"
	"math"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/settlement"
)

// epsilon absorbs floating point rounding when comparing paid_amount
// against total_budget for early termination.
const epsilon = 1e-9

// BatchSize computes clamp(floor(1000/tick_ms), 5, 50) per spec §4.5.
func BatchSize(tickMs int64) int {
	if tickMs <= 0 {
		return 5
	}
	n := int(math.Floor(1000.0 / float64(tickMs)))
	if n < 5 {
		return 5
	}
	if n > 50 {
		return 50
	}
	return n
}

// Clock advances tick_ms+5 per tick, distinct from the session's
// monotonic clock (the +5 is deliberate skew guaranteeing forward
// progress under a deterministic clock, per spec §4.5).
type Clock struct {
	tickMs int64
	cur    int64
}

// NewClock starts the stream clock at startMs.
func NewClock(startMs, tickMs int64) *Clock {
	return &Clock{tickMs: tickMs, cur: startMs}
}

func (c *Clock) Advance() int64 {
	c.cur += c.tickMs + 5
	return c.cur
}

func (c *Clock) Now() int64 { return c.cur }

// State is the cumulative streaming state that must persist across
// fallback attempts (spec §4.5: "chunk sequence numbers continue, and
// the receipt reflects total paid across all streaming attempts").
type State struct {
	Ticks      int
	Chunks     int
	PaidAmount float64
}

// Input configures one streaming attempt against one candidate/provider.
type Input struct {
	TotalBudget        float64
	TickMs             int64
	PlannedTicks        int
	BuyerAcct           string
	SellerAcct          string
	ProviderPubkeyB58   string
	BuyerStopAfterTicks int // 0 = never

	// ChunkFn is called once per tick to obtain the next signed
	// STREAM_CHUNK envelope; in tests this is backed by a deterministic
	// stub, in production by an HTTP round-trip to the provider.
	ChunkFn func(seq int64) (canon.Envelope, error)
}

// Outcome is the result of one streaming attempt.
type Outcome struct {
	Attempt           contracts.StreamingAttempt
	State             State
	Fulfilled         bool
	TerminationReason string
	FailureCode       string
	Retryable         bool
}

// Run executes one streaming attempt, starting from cumulative, against
// provider. It mutates a copy of cumulative and returns the updated
// state in Outcome.State.
func Run(ctx context.Context, provider settlement.Provider, clk *Clock, in Input, cumulative State, idempotencyKeyFn func(seq int64) string, emitBatch func(ticksThisAttempt int)) Outcome {
	state := cumulative
	perTick := round8(in.TotalBudget / float64(in.PlannedTicks))
	ticksThisAttempt := 0
	batchSize := BatchSize(in.TickMs)

	for i := 1; i <= in.PlannedTicks; i++ {
		clk.Advance()
		seq := int64(state.Chunks)

		env, err := in.ChunkFn(seq)
		if err != nil {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "chunk_fetch_error"},
				State:             state,
				TerminationReason: "chunk_fetch_error",
				FailureCode:       contracts.CodeHTTPStreamingError,
				Retryable:         true,
			}
		}

		ok, verr := canon.VerifyEnvelope(&env, in.ProviderPubkeyB58)
		if verr != nil || !ok {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "chunk_signature_invalid"},
				State:             state,
				TerminationReason: "chunk_signature_invalid",
				FailureCode:       contracts.CodeProviderSignatureInvalid,
				Retryable:         true,
			}
		}

		debitKey := idempotencyKeyFn(seq)
		if err := provider.Debit(ctx, in.BuyerAcct, perTick, "", "", debitKey); err != nil {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "debit_failed"},
				State:             state,
				TerminationReason: "debit_failed",
				FailureCode:       contracts.CodeSettlementFailed,
				Retryable:         true,
			}
		}
		if err := provider.Credit(ctx, in.SellerAcct, perTick, "", "", debitKey+"_credit"); err != nil {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "credit_failed"},
				State:             state,
				TerminationReason: "credit_failed",
				FailureCode:       contracts.CodeSettlementFailed,
				Retryable:         true,
			}
		}

		state.Ticks++
		state.Chunks++
		state.PaidAmount = round8(state.PaidAmount + perTick)
		ticksThisAttempt++

		if ticksThisAttempt%batchSize == 0 && emitBatch != nil {
			emitBatch(ticksThisAttempt)
		}

		if state.PaidAmount+epsilon >= in.TotalBudget {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "budget_exhausted"},
				State:             state,
				Fulfilled:         true,
				TerminationReason: "budget_exhausted",
			}
		}

		if in.BuyerStopAfterTicks > 0 && state.Ticks >= in.BuyerStopAfterTicks {
			return Outcome{
				Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "buyer_stop"},
				State:             state,
				Fulfilled:         false,
				TerminationReason: "buyer_stop",
				FailureCode:       contracts.CodeBuyerStopped,
				Retryable:         false,
			}
		}
	}

	return Outcome{
		Attempt:           contracts.StreamingAttempt{TicksThisAttempt: ticksThisAttempt, PaidThisAttempt: perTick * float64(ticksThisAttempt), TerminationReason: "planned_ticks_exhausted"},
		State:             state,
		Fulfilled:         state.PaidAmount+epsilon >= in.TotalBudget,
		TerminationReason: "planned_ticks_exhausted",
	}
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
