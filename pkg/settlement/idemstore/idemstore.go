// Package idemstore provides the exactly-once idempotency cache backing
// settlement.Provider Commit calls (wired in by pkg/settlement/
// idemprovider; other Provider operations do not use it). Grounded directly on
// coinbase/x402's go-extensions idempotency store (other_examples):
// CheckAndMark/WaitForResult/Complete/Fail with the same three-status
// discriminated result, generalized from x402's SettleResponse to this
// module's settlement.CommitResult.
package idemstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/pactmesh/pact-core/pkg/settlement"
)

// Status mirrors x402's SettlementStatus.
type Status int

const (
	StatusNotFound Status = iota
	StatusCached
	StatusInFlight
)

// Store is the pluggable backend every idempotency cache implements.
// Implementations must be safe for concurrent use.
type Store interface {
	// CheckAndMark atomically checks the store and marks key in-flight if
	// needed. It returns StatusCached with the cached result,
	// StatusInFlight with a channel closed when the in-flight request
	// ends, or StatusNotFound with the done channel the caller passes to
	// Complete or Fail.
	CheckAndMark(key string) (Status, *settlement.CommitResult, chan struct{})

	// WaitForResult blocks on done until the in-flight request for key
	// completes or ctx is cancelled.
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*settlement.CommitResult, error)

	// Complete caches result under key and signals done.
	Complete(key string, result *settlement.CommitResult, done chan struct{})

	// Fail clears the in-flight marker without caching and signals done;
	// WaitForResult then returns a nil result.
	Fail(key string, done chan struct{})
}

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu       sync.Mutex
	cached   map[string]*settlement.CommitResult
	inFlight map[string]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		cached:   make(map[string]*settlement.CommitResult),
		inFlight: make(map[string]chan struct{}),
	}
}

func (m *Memory) CheckAndMark(key string) (Status, *settlement.CommitResult, chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.cached[key]; ok {
		return StatusCached, res, nil
	}
	if done, ok := m.inFlight[key]; ok {
		return StatusInFlight, nil, done
	}
	done := make(chan struct{})
	m.inFlight[key] = done
	return StatusNotFound, nil, done
}

func (m *Memory) WaitForResult(ctx context.Context, key string, done chan struct{}) (*settlement.CommitResult, error) {
	select {
	case <-done:
		m.mu.Lock()
		res := m.cached[key]
		m.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("idemstore: wait for %q: %w", key, ctx.Err())
	}
}

func (m *Memory) Complete(key string, result *settlement.CommitResult, done chan struct{}) {
	m.mu.Lock()
	m.cached[key] = result
	delete(m.inFlight, key)
	m.mu.Unlock()
	close(done)
}

func (m *Memory) Fail(key string, done chan struct{}) {
	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
	close(done)
}
