package events

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Phase names (spec §4.8).
const (
	PhasePolicyValidation    = "policy_validation"
	PhaseProviderDiscovery   = "provider_discovery"
	PhaseProviderEvaluation  = "provider_evaluation"
	PhaseNegotiation         = "negotiation"
	PhaseSettlementPrepare   = "settlement_prepare"
	PhaseSettlementCommit    = "settlement_commit"
	PhaseSettlementStreaming = "settlement_streaming"
	PhaseSettlement          = "settlement"
	PhaseTranscriptCommit    = "transcript_commit"
	PhaseReconciliation      = "reconciliation"
	PhaseDisputesOpen        = "disputes_open"
	PhaseDisputesDecide      = "disputes_decide"
	PhaseDisputesRemedy      = "disputes_remedy"
)

// EventType is one of {progress, success, failure}.
type EventType string

const (
	TypeProgress EventType = "progress"
	TypeSuccess  EventType = "success"
	TypeFailure  EventType = "failure"
)

// Event is one observable orchestrator step (spec §4.8).
type Event struct {
	Phase         string
	Type          EventType
	IntentID      string
	TsMs          int64
	Payload       map[string]any
	Evidence      *contracts.LogEntry
	FailureCode   string
	FailureReason string
	Retryable     bool
	IdempotencyKey string
}

// Handler processes an Event; the transcript-commit handler is expected
// to be registered exactly once and to write the transcript exactly
// once per intent (spec §4.8 ordering guarantee).
type Handler func(Event)

// Runner emits events synchronously in program order: handlers run to
// completion before the orchestrator continues. Idempotency is enforced
// at the Runner: re-emitting an event with a previously-seen
// IdempotencyKey is a no-op (no handler runs, no log entry is appended).
//
// Ambient OpenTelemetry spans (go.opentelemetry.io/otel, no-op exporter
// by default) wrap each phase purely for observability; they carry no
// protocol semantics and are never consulted by retry/terminality
// decisions.
type Runner struct {
	mu       sync.Mutex
	handlers []Handler
	seen     map[string]Event
	log      []contracts.LogEntry
	tracer   trace.Tracer
}

// NewRunner constructs a Runner with the given handlers, evaluated in
// registration order.
func NewRunner(handlers ...Handler) *Runner {
	return &Runner{
		handlers: handlers,
		seen:     make(map[string]Event),
		tracer:   otel.Tracer("pactmesh/pact-core/events"),
	}
}

// Emit runs ev through every registered handler exactly once per
// IdempotencyKey, appending an evidence log entry and recording a no-op
// OTel span for the phase.
func (r *Runner) Emit(ev Event) {
	r.mu.Lock()
	if ev.IdempotencyKey != "" {
		if prior, ok := r.seen[ev.IdempotencyKey]; ok {
			r.mu.Unlock()
			_ = prior
			return
		}
	}
	r.mu.Unlock()

	_, span := r.tracer.Start(context.Background(), ev.Phase,
		trace.WithAttributes(
			attribute.String("pact.intent_id", ev.IntentID),
			attribute.String("pact.event_type", string(ev.Type)),
		))
	defer span.End()

	for _, h := range r.handlers {
		h(ev)
	}

	r.mu.Lock()
	if ev.IdempotencyKey != "" {
		r.seen[ev.IdempotencyKey] = ev
	}
	r.log = append(r.log, contracts.LogEntry{
		Code:    ev.FailureCode,
		Message: fmt.Sprintf("phase=%s type=%s ts_ms=%d reason=%q retryable=%t", ev.Phase, ev.Type, ev.TsMs, ev.FailureReason, ev.Retryable),
	})
	r.mu.Unlock()
}

// Log returns the accumulated explain-log entries (spec §3's
// "explain.log").
func (r *Runner) Log() []contracts.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.LogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// AttachHandler registers an additional handler; used by the
// orchestrator to wire the single transcript-commit handler after
// constructing the Runner with ambient logging handlers.
func (r *Runner) AttachHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// LoggingHandler is the default ambient handler: it appends nothing
// itself (Emit already maintains the log) but exists as the place a
// structured-logging library call would go were one wired; in this
// module, the explain.log entry produced by Emit is the logging
// surface the orchestrator and CLI both read from.
func LoggingHandler(sink func(format string, args ...any)) Handler {
	return func(ev Event) {
		if sink == nil {
			return
		}
		switch ev.Type {
		case TypeFailure:
			sink("phase=%s type=failure code=%s reason=%q intent=%s", ev.Phase, ev.FailureCode, ev.FailureReason, ev.IntentID)
		case TypeSuccess:
			sink("phase=%s type=success intent=%s", ev.Phase, ev.IntentID)
		default:
			sink("phase=%s type=progress intent=%s", ev.Phase, ev.IntentID)
		}
	}
}
