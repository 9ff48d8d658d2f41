package events_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/events"
)

func TestEmit_RunsHandlersInRegistrationOrder(t *testing.T) {
	var order []int
	r := events.NewRunner(
		func(events.Event) { order = append(order, 1) },
		func(events.Event) { order = append(order, 2) },
	)
	r.Emit(events.Event{Phase: events.PhaseNegotiation, Type: events.TypeProgress})
	require.Equal(t, []int{1, 2}, order)
}

func TestEmit_IdempotencyKeySkipsHandlersOnReplay(t *testing.T) {
	count := 0
	r := events.NewRunner(func(events.Event) { count++ })

	r.Emit(events.Event{Phase: events.PhaseSettlementCommit, Type: events.TypeSuccess, IdempotencyKey: "commit-1"})
	r.Emit(events.Event{Phase: events.PhaseSettlementCommit, Type: events.TypeSuccess, IdempotencyKey: "commit-1"})

	require.Equal(t, 1, count)
}

func TestEmit_AppendsLogEntry(t *testing.T) {
	r := events.NewRunner()
	r.Emit(events.Event{Phase: events.PhaseNegotiation, Type: events.TypeFailure, FailureCode: "X", FailureReason: "boom"})
	log := r.Log()
	require.Len(t, log, 1)
	require.Equal(t, "X", log[0].Code)
}

func TestAttachHandler_RunsForSubsequentEmits(t *testing.T) {
	r := events.NewRunner()
	var got []events.Event
	r.AttachHandler(func(ev events.Event) { got = append(got, ev) })
	r.Emit(events.Event{Phase: events.PhaseTranscriptCommit, Type: events.TypeSuccess})
	require.Len(t, got, 1)
}

func TestLoggingHandler_NilSinkIsNoop(t *testing.T) {
	h := events.LoggingHandler(nil)
	require.NotPanics(t, func() { h(events.Event{}) })
}

func TestLoggingHandler_FormatsFailure(t *testing.T) {
	var got string
	h := events.LoggingHandler(func(format string, args ...any) {
		got = format
		_ = args
	})
	h(events.Event{Type: events.TypeFailure})
	require.Contains(t, got, "type=failure")
}
