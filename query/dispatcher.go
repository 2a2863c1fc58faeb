// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	redis "github.com/go-redis/redis/v7"

	"github.com/agentsched/core/cache"
	"github.com/agentsched/core/metrics"
	"github.com/agentsched/core/tasks"
)

var (
	cacheHitCounter  = metrics.NewRegisteredCounter("query/cache/hit")
	cacheMissCounter = metrics.NewRegisteredCounter("query/cache/miss")
	invalidCounter   = metrics.NewRegisteredCounter("query/invalid")
)

// CacheOptions configures the Dispatcher's result cache. Redis is optional:
// when nil, caching is purely in-process. TTL is applied only to Redis
// entries; in-process entries do not expire.
type CacheOptions struct {
	Size  int
	TTL   time.Duration
	Redis *redis.Client
}

// Dispatcher drives Client calls for a task's queries, per §4.6; the
// resulting transforms are applied by the package-level ApplyTransforms.
type Dispatcher struct {
	client Client
	cache  cache.Cache
	redis  *redis.Client
	ttl    time.Duration
}

// NewDispatcher builds a Dispatcher. An in-process LRU cache is always
// present; opts.Redis, if set, is checked/populated alongside it so
// multiple manager instances sharing a Redis backend avoid redundant
// predicate calls within the TTL.
func NewDispatcher(client Client, opts CacheOptions) (*Dispatcher, error) {
	size := opts.Size
	if size <= 0 {
		size = 512
	}
	c, err := cache.New(cache.LRUConfig{Size: size})
	if err != nil {
		return nil, err
	}
	return &Dispatcher{client: client, cache: c, redis: opts.Redis, ttl: opts.TTL}, nil
}

func cacheKey(moduleAddress string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(moduleAddress))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) lookup(key string) (Result, bool) {
	if v, ok := d.cache.Get(key); ok {
		cacheHitCounter.Inc(1)
		return v.(Result), true
	}
	if d.redis != nil {
		raw, err := d.redis.Get(key).Bytes()
		if err == nil {
			var r Result
			if jsonErr := json.Unmarshal(raw, &r); jsonErr == nil {
				d.cache.Add(key, r)
				cacheHitCounter.Inc(1)
				return r, true
			}
		}
	}
	cacheMissCounter.Inc(1)
	return Result{}, false
}

func (d *Dispatcher) store(key string, r Result) {
	d.cache.Add(key, r)
	if d.redis != nil {
		if raw, err := json.Marshal(r); err == nil {
			d.redis.Set(key, raw, d.ttl)
		}
	}
}

// Evaluate implements the §4.4 step-2 / §4.6 evaluation: invoke each query
// module in order; a true CheckResult keeps going, a false one means "not
// ready this tick" (ready=false, err=nil); a module error means the task
// is malformed (ready=false, err!=nil — caller removes and refunds).
func (d *Dispatcher) Evaluate(ctx context.Context, task *tasks.Task) (ready bool, responses []Result, err error) {
	responses = make([]Result, len(task.Queries))
	for i, q := range task.Queries {
		key := cacheKey(q.ModuleAddress, q.Payload)
		if cached, ok := d.lookup(key); ok {
			responses[i] = cached
		} else {
			res, callErr := d.client.Evaluate(ctx, q.ModuleAddress, q.Payload, q.CheckResult)
			if callErr != nil {
				invalidCounter.Inc(1)
				logger.Warn("predicate module call failed, task will be invalidated", "hash", task.Hash, "module", q.ModuleAddress, "err", callErr)
				return false, responses, callErr
			}
			d.store(key, res)
			responses[i] = res
		}
		if q.CheckResult && !responses[i].Ready {
			return false, responses, nil
		}
	}
	return true, responses, nil
}
