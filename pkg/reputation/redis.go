package reputation

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

// fingerprintCASScript performs the PACT-331 compare-and-set atomically:
// set the fingerprint's winner only if unset or already set to the same
// intent_id. Grounded on the teacher's redisTokenBucketScript
// (core/pkg/kernel/limiter_redis.go) — a Lua script is the idiom this
// codebase reaches for whenever a check-then-set must be atomic in
// Redis.
//
// KEYS[1] = fingerprint key
// ARGV[1] = intent_id attempting to commit
var fingerprintCASScript = redis.NewScript(`
local key = KEYS[1]
local intent_id = ARGV[1]
local existing = redis.call("GET", key)
if existing == false then
    redis.call("SET", key, intent_id)
    return {1, intent_id}
end
if existing == intent_id then
    return {1, intent_id}
end
return {0, existing}
`)

// Redis is a Store backed by Redis: sorted-set-free price lists (fetched
// and sorted in Go, since the receipt log per intent_type is small
// enough that percentile computation need not live in Lua), hash-based
// agent counters, and the Lua-scripted fingerprint CAS above.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func priceKey(intentType string) string  { return "pact:prices:" + intentType }
func agentKey(agentID string) string     { return "pact:agent:" + agentID }
func fingerprintKey(fp string) string    { return "pact:fp:" + fp }

func (r *Redis) RecordReceipt(ctx context.Context, rcpt contracts.Receipt, intentType string) error {
	if rcpt.Fulfilled && rcpt.AgreedPrice > 0 {
		if err := r.client.RPush(ctx, priceKey(intentType), rcpt.AgreedPrice).Err(); err != nil {
			return fmt.Errorf("reputation: redis record price: %w", err)
		}
	}
	for _, agent := range []string{rcpt.SellerAgentID, rcpt.BuyerAgentID} {
		if agent == "" {
			continue
		}
		pipe := r.client.Pipeline()
		pipe.HIncrBy(ctx, agentKey(agent), "total", 1)
		if rcpt.Fulfilled {
			pipe.HIncrBy(ctx, agentKey(agent), "fulfilled", 1)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("reputation: redis record agent stats: %w", err)
		}
	}
	return nil
}

func (r *Redis) PricePercentile(ctx context.Context, intentType string, p float64) (float64, bool, error) {
	raw, err := r.client.LRange(ctx, priceKey(intentType), 0, -1).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reputation: redis fetch prices: %w", err)
	}
	values := make([]float64, 0, len(raw))
	for _, s := range raw {
		var v float64
		if _, err := fmt.Sscanf(s, "%g", &v); err == nil {
			values = append(values, v)
		}
	}
	sort.Float64s(values)
	return percentile(values, p)
}

func (r *Redis) AgentScore(ctx context.Context, agentID string) (float64, error) {
	res, err := r.client.HGetAll(ctx, agentKey(agentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("reputation: redis fetch agent stats: %w", err)
	}
	if len(res) == 0 {
		return 0.5, nil
	}
	var total, fulfilled int
	_, _ = fmt.Sscanf(res["total"], "%d", &total)
	_, _ = fmt.Sscanf(res["fulfilled"], "%d", &fulfilled)
	if total == 0 {
		return 0.5, nil
	}
	return float64(fulfilled) / float64(total), nil
}

func (r *Redis) HasCommittedFingerprint(ctx context.Context, fp string) (bool, string, error) {
	val, err := r.client.Get(ctx, fingerprintKey(fp)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("reputation: redis fetch fingerprint: %w", err)
	}
	return true, val, nil
}

func (r *Redis) MarkFingerprintCommitted(ctx context.Context, fp, intentID string, _ int64) error {
	res, err := fingerprintCASScript.Run(ctx, r.client, []string{fingerprintKey(fp)}, intentID).Result()
	if err != nil {
		return fmt.Errorf("reputation: redis fingerprint CAS: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return fmt.Errorf("reputation: unexpected CAS script response")
	}
	won, _ := results[0].(int64)
	if won == 1 {
		return nil
	}
	return ErrAlreadyCommitted
}
