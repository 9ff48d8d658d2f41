// Package reputation implements the Reputation & Market Stats component
// (C4, spec §4 and §5): price percentiles and agent scores derived from
// a receipt log, plus the PACT-331 commit fingerprint ledger — the one
// cross-run shared resource in the whole system, so its CAS pair must be
// linearizable.
//
// Grounded on the teacher's budget.Storage pluggable-backend interface
// (core/pkg/budget/enforcer.go + memory_store.go + postgres_store.go)
// and core/pkg/store/receipt_store_sqlite.go for the SQLite migration
// idiom.
package reputation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// ErrAlreadyCommitted is returned by MarkFingerprintCommitted when a CAS
// loses to a concurrent commit.
var ErrAlreadyCommitted = errors.New("reputation: fingerprint already committed")

// Store is the pluggable backend every reputation implementation
// satisfies. Backing format is explicitly out of scope (spec §1
// Non-goals); only this interface is contractual.
type Store interface {
	// RecordReceipt ingests a settled (or penalty) receipt for intentType
	// into the market-stats and agent-score aggregates.
	RecordReceipt(ctx context.Context, r contracts.Receipt, intentType string) error

	// PricePercentile returns the p-th percentile (0..1) agreed_price
	// observed for intentType among fulfilled receipts. Returns
	// (0, false) if no data.
	PricePercentile(ctx context.Context, intentType string, p float64) (float64, bool, error)

	// AgentScore returns a composite reputation score in [0,1] for
	// agentID derived from its fulfillment rate. Returns a neutral 0.5
	// for agents with no history.
	AgentScore(ctx context.Context, agentID string) (float64, error)

	// HasCommittedFingerprint reports whether fp already has a winning
	// commit, and if so, which intent_id won.
	HasCommittedFingerprint(ctx context.Context, fp string) (committed bool, intentID string, err error)

	// MarkFingerprintCommitted atomically records intentID as the winner
	// for fp at nowMs. Returns ErrAlreadyCommitted if a different
	// intentID already won; the error does not carry the winner, so
	// callers must re-check HasCommittedFingerprint on that error to
	// learn it.
	MarkFingerprintCommitted(ctx context.Context, fp, intentID string, nowMs int64) error
}

type agentStats struct {
	fulfilled int
	total     int
}

// Memory is a thread-safe in-memory Store, the default backend for
// tests and single-process deployments.
type Memory struct {
	mu           sync.Mutex
	pricesByType map[string][]float64
	agents       map[string]*agentStats
	fingerprints map[string]string // fp -> winning intent_id
}

func NewMemory() *Memory {
	return &Memory{
		pricesByType: make(map[string][]float64),
		agents:       make(map[string]*agentStats),
		fingerprints: make(map[string]string),
	}
}

func (m *Memory) RecordReceipt(_ context.Context, r contracts.Receipt, intentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Fulfilled && r.AgreedPrice > 0 {
		m.pricesByType[intentType] = append(m.pricesByType[intentType], r.AgreedPrice)
	}

	for _, agent := range []string{r.SellerAgentID, r.BuyerAgentID} {
		if agent == "" {
			continue
		}
		st, ok := m.agents[agent]
		if !ok {
			st = &agentStats{}
			m.agents[agent] = st
		}
		st.total++
		if r.Fulfilled {
			st.fulfilled++
		}
	}
	return nil
}

func (m *Memory) PricePercentile(_ context.Context, intentType string, p float64) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return percentile(m.pricesByType[intentType], p)
}

func (m *Memory) AgentScore(_ context.Context, agentID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[agentID]
	if !ok || st.total == 0 {
		return 0.5, nil
	}
	return float64(st.fulfilled) / float64(st.total), nil
}

func (m *Memory) HasCommittedFingerprint(_ context.Context, fp string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intentID, ok := m.fingerprints[fp]
	return ok, intentID, nil
}

func (m *Memory) MarkFingerprintCommitted(_ context.Context, fp, intentID string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.fingerprints[fp]; ok && existing != intentID {
		return ErrAlreadyCommitted
	}
	m.fingerprints[fp] = intentID
	return nil
}

// percentile computes the nearest-rank percentile over a copy of values
// (0 <= p <= 1), sorted ascending. Deterministic: no interpolation, so
// repeated calls over the same receipt log always agree.
func percentile(values []float64, p float64) (float64, bool, error) {
	if len(values) == 0 {
		return 0, false, nil
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	sort.Float64s(cp)

	if p <= 0 {
		return cp[0], true, nil
	}
	if p >= 1 {
		return cp[len(cp)-1], true, nil
	}
	// Nearest rank is ceil(p*n); as a 0-based index that is ceil(p*n)-1.
	rank := p * float64(len(cp))
	idx := int(rank)
	if float64(idx) == rank {
		idx--
	}
	if idx >= len(cp) {
		idx = len(cp) - 1
	}
	return cp[idx], true, nil
}
