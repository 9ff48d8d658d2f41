package idemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/pactmesh/pact-core/pkg/settlement"
)

// Postgres is an idemstore.Store backed by PostgreSQL, grounded on the
// teacher's upsert idiom in core/pkg/budget/postgres_store.go
// (INSERT ... ON CONFLICT DO UPDATE). The in-flight claim uses the same
// table's primary key as a mutex: a second INSERT for the same key fails
// with a unique-violation, which is treated as "already in flight".
type Postgres struct {
	db *sql.DB

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func NewPostgres(db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db, waiters: make(map[string][]chan struct{})}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate() error {
	_, err := p.db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS settlement_idempotency (
			idem_key TEXT PRIMARY KEY,
			result_json TEXT,
			completed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("idemstore: postgres migrate: %w", err)
	}
	return nil
}

func (p *Postgres) CheckAndMark(key string) (Status, *settlement.CommitResult, chan struct{}) {
	ctx := context.Background()

	var resultJSON sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT result_json FROM settlement_idempotency WHERE idem_key = $1`, key).Scan(&resultJSON)
	if err == nil && resultJSON.Valid && resultJSON.String != "" {
		var result settlement.CommitResult
		if jerr := json.Unmarshal([]byte(resultJSON.String), &result); jerr == nil {
			return StatusCached, &result, nil
		}
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO settlement_idempotency (idem_key, result_json, completed_at) VALUES ($1, NULL, NULL)`, key)
	if err != nil {
		// Unique violation: another attempt already claimed this key and
		// has not completed yet (or completed between our SELECT and our
		// INSERT, in which case a second SELECT will find it cached).
		var result settlement.CommitResult
		if jerr := p.db.QueryRowContext(ctx,
			`SELECT result_json FROM settlement_idempotency WHERE idem_key = $1`, key).Scan(&resultJSON); jerr == nil &&
			resultJSON.Valid && resultJSON.String != "" {
			if jerr := json.Unmarshal([]byte(resultJSON.String), &result); jerr == nil {
				return StatusCached, &result, nil
			}
		}
		return StatusInFlight, nil, p.localDone(key)
	}

	return StatusNotFound, nil, p.localDone(key)
}

func (p *Postgres) localDone(key string) chan struct{} {
	done := make(chan struct{})
	p.mu.Lock()
	p.waiters[key] = append(p.waiters[key], done)
	p.mu.Unlock()
	return done
}

func (p *Postgres) WaitForResult(ctx context.Context, key string, done chan struct{}) (*settlement.CommitResult, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return p.fetchCached(key)
		case <-ticker.C:
			if result, err := p.fetchCached(key); err == nil && result != nil {
				return result, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("idemstore: wait for %q: %w", key, ctx.Err())
		}
	}
}

func (p *Postgres) fetchCached(key string) (*settlement.CommitResult, error) {
	var resultJSON sql.NullString
	err := p.db.QueryRowContext(context.Background(),
		`SELECT result_json FROM settlement_idempotency WHERE idem_key = $1`, key).Scan(&resultJSON)
	if err != nil || !resultJSON.Valid || resultJSON.String == "" {
		return nil, nil
	}
	var result settlement.CommitResult
	if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
		return nil, fmt.Errorf("idemstore: decode cached result: %w", err)
	}
	return &result, nil
}

func (p *Postgres) Complete(key string, result *settlement.CommitResult, done chan struct{}) {
	data, _ := json.Marshal(result)
	_, _ = p.db.ExecContext(context.Background(),
		`UPDATE settlement_idempotency SET result_json = $2, completed_at = $3 WHERE idem_key = $1`,
		key, string(data), time.Now().UTC())
	p.signal(key, done)
}

func (p *Postgres) Fail(key string, done chan struct{}) {
	_, _ = p.db.ExecContext(context.Background(),
		`DELETE FROM settlement_idempotency WHERE idem_key = $1 AND result_json IS NULL`, key)
	p.signal(key, done)
}

func (p *Postgres) signal(key string, done chan struct{}) {
	close(done)
	p.mu.Lock()
	waiters := p.waiters[key]
	delete(p.waiters, key)
	p.mu.Unlock()
	for _, w := range waiters {
		if w != done {
			close(w)
		}
	}
}
