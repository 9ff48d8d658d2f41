package reputation

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// SQLite is a Store backed by modernc.org/sqlite, grounded on the
// teacher's core/pkg/store/receipt_store_sqlite.go migrate-then-query
// idiom (CREATE TABLE IF NOT EXISTS on construction, plain database/sql
// thereafter).
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reputation_prices (
			intent_type TEXT NOT NULL,
			agreed_price REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reputation_agents (
			agent_id TEXT PRIMARY KEY,
			total INTEGER NOT NULL DEFAULT 0,
			fulfilled INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS reputation_fingerprints (
			fingerprint TEXT PRIMARY KEY,
			intent_id TEXT NOT NULL,
			committed_at_ms INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("reputation: sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLite) RecordReceipt(ctx context.Context, r contracts.Receipt, intentType string) error {
	if r.Fulfilled && r.AgreedPrice > 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reputation_prices (intent_type, agreed_price) VALUES (?, ?)`,
			intentType, r.AgreedPrice)
		if err != nil {
			return fmt.Errorf("reputation: sqlite insert price: %w", err)
		}
	}
	for _, agent := range []string{r.SellerAgentID, r.BuyerAgentID} {
		if agent == "" {
			continue
		}
		fulfilledDelta := 0
		if r.Fulfilled {
			fulfilledDelta = 1
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reputation_agents (agent_id, total, fulfilled) VALUES (?, 1, ?)
			ON CONFLICT (agent_id) DO UPDATE SET
				total = total + 1,
				fulfilled = fulfilled + excluded.fulfilled
		`, agent, fulfilledDelta)
		if err != nil {
			return fmt.Errorf("reputation: sqlite upsert agent: %w", err)
		}
	}
	return nil
}

func (s *SQLite) PricePercentile(ctx context.Context, intentType string, p float64) (float64, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agreed_price FROM reputation_prices WHERE intent_type = ? ORDER BY agreed_price ASC`, intentType)
	if err != nil {
		return 0, false, fmt.Errorf("reputation: sqlite query prices: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, false, fmt.Errorf("reputation: sqlite scan price: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	return percentile(values, p)
}

func (s *SQLite) AgentScore(ctx context.Context, agentID string) (float64, error) {
	var total, fulfilled int
	err := s.db.QueryRowContext(ctx,
		`SELECT total, fulfilled FROM reputation_agents WHERE agent_id = ?`, agentID).
		Scan(&total, &fulfilled)
	if err == sql.ErrNoRows || total == 0 {
		return 0.5, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: sqlite query agent: %w", err)
	}
	return float64(fulfilled) / float64(total), nil
}

func (s *SQLite) HasCommittedFingerprint(ctx context.Context, fp string) (bool, string, error) {
	var intentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT intent_id FROM reputation_fingerprints WHERE fingerprint = ?`, fp).Scan(&intentID)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("reputation: sqlite query fingerprint: %w", err)
	}
	return true, intentID, nil
}

// MarkFingerprintCommitted relies on the fingerprint primary key to make
// the compare-and-set atomic: a second INSERT for the same fingerprint
// fails with a constraint violation, which this treats as "already
// committed" after confirming it wasn't this same intent_id racing
// itself.
func (s *SQLite) MarkFingerprintCommitted(ctx context.Context, fp, intentID string, nowMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reputation_fingerprints (fingerprint, intent_id, committed_at_ms) VALUES (?, ?, ?)`,
		fp, intentID, nowMs)
	if err == nil {
		return nil
	}
	committed, existing, checkErr := s.HasCommittedFingerprint(ctx, fp)
	if checkErr != nil {
		return fmt.Errorf("reputation: sqlite fingerprint insert failed and recheck failed: %w", checkErr)
	}
	if committed && existing == intentID {
		return nil
	}
	return ErrAlreadyCommitted
}
