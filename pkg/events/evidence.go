package events

import (
	"sync"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
)

// Evidence is one append-only record attached to a phase: a kind tag
// (e.g. "quote_received", "lock_acquired", "poll_timeout") plus
// arbitrary structured data. Evidence never participates in retry or
// terminality decisions — it exists purely so explain output can show
// its work, grounded on spec §4.8's "evidence is append-only and
// referenced from, but never drives, orchestrator control flow".
type Evidence struct {
	Phase string         `json:"phase"`
	Kind  string         `json:"kind"`
	Data  map[string]any `json:"data,omitempty"`
}

// EvidenceLog accumulates Evidence records in append order.
type EvidenceLog struct {
	mu      sync.Mutex
	records []Evidence
}

// NewEvidenceLog constructs an empty log.
func NewEvidenceLog() *EvidenceLog {
	return &EvidenceLog{}
}

// Append records one evidence entry.
func (l *EvidenceLog) Append(phase, kind string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Evidence{Phase: phase, Kind: kind, Data: data})
}

// All returns a copy of the accumulated evidence in append order.
func (l *EvidenceLog) All() []Evidence {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Evidence, len(l.records))
	copy(out, l.records)
	return out
}

// SealTranscript computes FinalHash over transcript with FailureEvent
// and FinalHash themselves excluded, then — if failureCode is non-empty
// — attaches a FailureEvent referencing that hash. Grounded on spec §3:
// "TranscriptHash is computed over every field except FailureEvent and
// TranscriptHash itself, so FailureEvent can reference the hash of the
// rest." Callers pass the same *contracts.Transcript value they intend
// to persist; SealTranscript mutates only its FailureEvent/FinalHash
// fields.
func SealTranscript(t *contracts.Transcript, failureCode, failureReason string) error {
	t.FailureEvent = nil
	t.FinalHash = ""

	hash, err := canon.CanonicalHash(*t)
	if err != nil {
		return err
	}

	if failureCode != "" {
		t.FailureEvent = &contracts.FailureEvent{
			Code:           failureCode,
			Reason:         failureReason,
			TranscriptHash: hash,
		}
	}
	t.FinalHash = hash
	return nil
}
