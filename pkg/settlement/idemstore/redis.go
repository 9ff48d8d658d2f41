package idemstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pactmesh/pact-core/pkg/settlement"
)

// claimScript atomically claims an in-flight slot: SETNX the
// "inflight" marker, or report the cached result if already complete.
// Grounded on the same Lua-CAS idiom as reputation.Redis
// (core/pkg/kernel/limiter_redis.go).
var claimScript = redis.NewScript(`
local cachedKey = KEYS[1]
local inflightKey = KEYS[2]
local cached = redis.call("GET", cachedKey)
if cached ~= false then
    return {1, cached}
end
local claimed = redis.call("SETNX", inflightKey, "1")
if claimed == 1 then
    redis.call("EXPIRE", inflightKey, 300)
    return {0, ""}
end
return {2, ""}
`)

// Redis is an idemstore.Store backed by Redis. Because Redis offers no
// in-process channel to block waiters on, WaitForResult polls the cached
// key at a short interval until ctx is cancelled or a result appears —
// acceptable here since settlement commits complete in low-second
// timescales, not the microsecond latencies a condvar would matter for.
type Redis struct {
	client *redis.Client

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		waiters: make(map[string][]chan struct{}),
	}
}

func cachedKey(key string) string  { return "pact:settle:cached:" + key }
func inflightKey(key string) string { return "pact:settle:inflight:" + key }

func (r *Redis) CheckAndMark(key string) (Status, *settlement.CommitResult, chan struct{}) {
	ctx := context.Background()
	res, err := claimScript.Run(ctx, r.client, []string{cachedKey(key), inflightKey(key)}).Result()
	if err != nil {
		// Fail open to StatusNotFound on transport error: the caller
		// proceeds and will simply re-attempt the settlement operation,
		// which is safe because Provider operations are independently
		// idempotent under the same key.
		return StatusNotFound, nil, r.localDone(key)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return StatusNotFound, nil, r.localDone(key)
	}
	kind, _ := results[0].(int64)
	switch kind {
	case 1:
		cachedStr, _ := results[1].(string)
		var result settlement.CommitResult
		if err := json.Unmarshal([]byte(cachedStr), &result); err != nil {
			return StatusNotFound, nil, r.localDone(key)
		}
		return StatusCached, &result, nil
	case 2:
		return StatusInFlight, nil, r.localDone(key)
	default:
		return StatusNotFound, nil, r.localDone(key)
	}
}

// localDone hands back a process-local channel used only to satisfy the
// Store interface's blocking-wait contract; cross-process waiters poll
// instead (see WaitForResult).
func (r *Redis) localDone(key string) chan struct{} {
	done := make(chan struct{})
	r.mu.Lock()
	r.waiters[key] = append(r.waiters[key], done)
	r.mu.Unlock()
	return done
}

func (r *Redis) WaitForResult(ctx context.Context, key string, done chan struct{}) (*settlement.CommitResult, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			val, err := r.client.Get(context.Background(), cachedKey(key)).Result()
			if err == redis.Nil {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("idemstore: redis fetch cached: %w", err)
			}
			var result settlement.CommitResult
			if err := json.Unmarshal([]byte(val), &result); err != nil {
				return nil, fmt.Errorf("idemstore: decode cached result: %w", err)
			}
			return &result, nil
		case <-ticker.C:
			val, err := r.client.Get(context.Background(), cachedKey(key)).Result()
			if err == nil {
				var result settlement.CommitResult
				if jerr := json.Unmarshal([]byte(val), &result); jerr == nil {
					return &result, nil
				}
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("idemstore: wait for %q: %w", key, ctx.Err())
		}
	}
}

func (r *Redis) Complete(key string, result *settlement.CommitResult, done chan struct{}) {
	data, _ := json.Marshal(result)
	ctx := context.Background()
	pipe := r.client.Pipeline()
	pipe.Set(ctx, cachedKey(key), data, 24*time.Hour)
	pipe.Del(ctx, inflightKey(key))
	_, _ = pipe.Exec(ctx)
	r.signal(key, done)
}

func (r *Redis) Fail(key string, done chan struct{}) {
	r.client.Del(context.Background(), inflightKey(key))
	r.signal(key, done)
}

func (r *Redis) signal(key string, done chan struct{}) {
	close(done)
	r.mu.Lock()
	waiters := r.waiters[key]
	delete(r.waiters, key)
	r.mu.Unlock()
	for _, w := range waiters {
		if w != done {
			close(w)
		}
	}
}
