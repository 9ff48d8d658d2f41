// Package idemprovider decorates a settlement.Provider's Commit with an
// idemstore.Store-backed cache/replay layer, so CLI/demo rails gain the
// same exactly-once Commit semantics backends like coinbase/x402 (see
// pkg/settlement/idemstore's doc comment) build in natively. Every other
// Provider method passes straight through to the embedded rail.
package idemprovider

import (
	"context"
	"fmt"

	"github.com/pactmesh/pact-core/pkg/settlement"
	"github.com/pactmesh/pact-core/pkg/settlement/idemstore"
)

// IdempotentProvider wraps a settlement.Provider so repeated Commit
// calls under the same idempotencyKey replay the first outcome instead
// of re-committing, using store to cache/coordinate across callers.
type IdempotentProvider struct {
	settlement.Provider
	store idemstore.Store
}

// Wrap returns inner decorated with store-backed idempotent Commit.
func Wrap(inner settlement.Provider, store idemstore.Store) *IdempotentProvider {
	return &IdempotentProvider{Provider: inner, store: store}
}

func (p *IdempotentProvider) Commit(ctx context.Context, handle settlement.Handle, idempotencyKey string) (settlement.CommitResult, error) {
	status, cached, done := p.store.CheckAndMark(idempotencyKey)
	switch status {
	case idemstore.StatusCached:
		return *cached, nil
	case idemstore.StatusInFlight:
		result, err := p.store.WaitForResult(ctx, idempotencyKey, done)
		if err != nil {
			return settlement.CommitResult{}, err
		}
		if result == nil {
			return settlement.CommitResult{}, fmt.Errorf("idemprovider: in-flight commit for %q resolved with no cached result", idempotencyKey)
		}
		return *result, nil
	}

	result, err := p.Provider.Commit(ctx, handle, idempotencyKey)
	if err != nil {
		p.store.Fail(idempotencyKey, done)
		return result, err
	}
	p.store.Complete(idempotencyKey, &result, done)
	return result, nil
}
