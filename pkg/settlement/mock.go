package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is the in-process settlement rail used by tests, demos,
// and whenever policy routes to the "mock" rail. It models a single
// ledger of account balances guarded by a mutex, with idempotency
// enforced per-operation via a seen-keys map (distinct from, and
// complementary to, the idemstore package: that package caches
// session-level settlement outcomes across the negotiation/settlement
// boundary; this one enforces that this specific rail never double-
// applies a ledger mutation for a repeated key).
type MockProvider struct {
	mu       sync.Mutex
	balances map[string]float64
	locks    map[Handle]lockEntry
	seen     map[string]error // idempotency_key -> prior error (nil = prior success)
	nextCommit CommitStatus    // test hook: force the next Commit's status
}

type lockEntry struct {
	acct   string
	amount float64
	status CommitStatus
}

// NewMockProvider constructs a MockProvider with optional seeded
// balances.
func NewMockProvider(seed map[string]float64) *MockProvider {
	balances := make(map[string]float64, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &MockProvider{
		balances:   balances,
		locks:      make(map[Handle]lockEntry),
		seen:       make(map[string]error),
		nextCommit: StatusCommitted,
	}
}

func (m *MockProvider) Name() string { return "mock" }

// SetNextCommitStatus configures the CommitStatus the next un-cached
// Commit call will return; used by tests exercising pending/failed
// settlement paths.
func (m *MockProvider) SetNextCommitStatus(s CommitStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCommit = s
}

func (m *MockProvider) idempotent(key string, op func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.seen[key]; ok {
		return prior
	}
	err := op()
	m.seen[key] = err
	return err
}

func (m *MockProvider) Credit(_ context.Context, acct string, amount float64, _, _, idempotencyKey string) error {
	return m.idempotent(idempotencyKey, func() error {
		m.balances[acct] += amount
		return nil
	})
}

func (m *MockProvider) Debit(_ context.Context, acct string, amount float64, _, _, idempotencyKey string) error {
	return m.idempotent(idempotencyKey, func() error {
		if m.balances[acct] < amount {
			return fmt.Errorf("settlement: mock: insufficient balance for %s", acct)
		}
		m.balances[acct] -= amount
		return nil
	})
}

func (m *MockProvider) Lock(_ context.Context, acct string, amount float64, idempotencyKey string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.seen[idempotencyKey]; ok {
		if prior != nil {
			return "", prior
		}
		for h, e := range m.locks {
			if e.acct == acct && e.amount == amount {
				return h, nil
			}
		}
	}

	if m.balances[acct] < amount {
		err := fmt.Errorf("settlement: mock: insufficient balance for %s", acct)
		m.seen[idempotencyKey] = err
		return "", err
	}
	handle := Handle(uuid.New().String())
	m.locks[handle] = lockEntry{acct: acct, amount: amount, status: StatusPending}
	m.seen[idempotencyKey] = nil
	return handle, nil
}

func (m *MockProvider) Release(_ context.Context, handle Handle, idempotencyKey string) error {
	return m.idempotent(idempotencyKey, func() error {
		delete(m.locks, handle)
		return nil
	})
}

var ErrUnknownHandle = errors.New("settlement: mock: unknown handle")

func (m *MockProvider) Commit(_ context.Context, handle Handle, idempotencyKey string) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.seen[idempotencyKey]; ok {
		entry, exists := m.locks[handle]
		if !exists {
			return CommitResult{Status: StatusCommitted}, nil
		}
		_ = prior
		// Committed and failed locks stay in m.locks, so the replay
		// rebuilds the result the first call returned.
		result := CommitResult{Status: entry.status}
		switch entry.status {
		case StatusCommitted:
			result.PaidAmount = entry.amount
		case StatusFailed:
			result.FailureCode = "SETTLEMENT_FAILED"
		}
		return result, nil
	}

	entry, exists := m.locks[handle]
	if !exists {
		err := ErrUnknownHandle
		m.seen[idempotencyKey] = err
		return CommitResult{}, err
	}

	status := m.nextCommit
	m.nextCommit = StatusCommitted
	entry.status = status
	m.locks[handle] = entry
	m.seen[idempotencyKey] = nil

	result := CommitResult{Status: status}
	if status == StatusCommitted {
		result.PaidAmount = entry.amount
	}
	if status == StatusFailed {
		result.FailureCode = "SETTLEMENT_FAILED"
	}
	return result, nil
}

func (m *MockProvider) Poll(_ context.Context, handle Handle) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, exists := m.locks[handle]
	if !exists {
		return CommitResult{Status: StatusCommitted}, nil
	}
	return CommitResult{Status: entry.status, PaidAmount: entry.amount}, nil
}

func (m *MockProvider) Abort(_ context.Context, handle Handle, idempotencyKey string) error {
	return m.idempotent(idempotencyKey, func() error {
		delete(m.locks, handle)
		return nil
	})
}

func (m *MockProvider) GetBalance(_ context.Context, acct, _, _ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[acct], nil
}

func (m *MockProvider) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.seen[req.IdempotencyKey]; ok {
		if prior != nil {
			return RefundResult{}, prior
		}
		return RefundResult{OK: true, RefundedAmount: req.Amount}, nil
	}

	if m.balances[req.From] < req.Amount {
		err := fmt.Errorf("settlement: mock: insufficient balance to refund from %s", req.From)
		m.seen[req.IdempotencyKey] = err
		return RefundResult{}, err
	}
	m.balances[req.From] -= req.Amount
	m.balances[req.To] += req.Amount
	m.seen[req.IdempotencyKey] = nil
	return RefundResult{OK: true, RefundedAmount: req.Amount}, nil
}
