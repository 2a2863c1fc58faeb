// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package cache provides the bounded-size read-through caches used by the
// task store and predicate query dispatcher. It generalizes the teacher's
// common/cache.go Cache interface (originally shard/ARC/LRU variants keyed
// by common.Hash/common.Address for state-trie nodes) to plain string keys,
// since every cache in this domain is keyed by task hash or a query
// fingerprint.
package cache

import (
	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/agentsched/core/log"
)

var logger = log.NewModuleLogger(log.Cache)

// Cache is a bounded, string-keyed, performance-only cache: losing its
// contents must never change observable behavior, only how many times the
// backing store is consulted.
type Cache interface {
	Add(key string, value interface{}) (evicted bool)
	Get(key string) (value interface{}, ok bool)
	Contains(key string) bool
	Remove(key string)
	Purge()
	Len() int
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key string, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key string) (interface{}, bool)               { return c.lru.Get(key) }
func (c *lruCache) Contains(key string) bool                         { return c.lru.Contains(key) }
func (c *lruCache) Remove(key string)                                { c.lru.Remove(key) }
func (c *lruCache) Purge()                                           { c.lru.Purge() }
func (c *lruCache) Len() int                                         { return c.lru.Len() }

type arcCache struct {
	arc *lru.ARCCache
}

func (c *arcCache) Add(key string, value interface{}) (evicted bool) {
	had := c.arc.Contains(key)
	before := c.arc.Len()
	c.arc.Add(key, value)
	return !had && c.arc.Len() <= before
}
func (c *arcCache) Get(key string) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcCache) Contains(key string) bool           { return c.arc.Contains(key) }
func (c *arcCache) Remove(key string)                  { c.arc.Remove(key) }
func (c *arcCache) Purge()                             { c.arc.Purge() }
func (c *arcCache) Len() int                            { return c.arc.Len() }

// Configer constructs a Cache; callers pick LRUConfig or ARCConfig.
type Configer interface {
	newCache() (Cache, error)
}

// New builds a Cache from the given config.
func New(config Configer) (Cache, error) {
	if config == nil {
		return nil, errors.New("cache: config is nil")
	}
	return config.newCache()
}

// LRUConfig builds a plain least-recently-used cache.
type LRUConfig struct {
	Size int
}

func (c LRUConfig) newCache() (Cache, error) {
	if c.Size <= 0 {
		logger.Error("invalid cache size", "size", c.Size)
		return nil, errors.New("cache: size must be positive")
	}
	l, err := lru.New(c.Size)
	if err != nil {
		return nil, err
	}
	return &lruCache{l}, nil
}

// ARCConfig builds an adaptive replacement cache, useful when the
// workload mixes scan-heavy and hot-key access patterns (e.g. paginated
// `tasks` queries alongside repeated `task(hash)` lookups).
type ARCConfig struct {
	Size int
}

func (c ARCConfig) newCache() (Cache, error) {
	if c.Size <= 0 {
		return nil, errors.New("cache: size must be positive")
	}
	a, err := lru.NewARC(c.Size)
	if err != nil {
		return nil, err
	}
	return &arcCache{a}, nil
}
