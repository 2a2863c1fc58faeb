// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package event implements the §7 "every transition emits attributes"
// requirement as an in-process typed pub-sub bus (Post/Subscribe, in the
// shape of the teacher's event.TypeMux usage in work/worker.go), with an
// optional Kafka mirror for attributes consumed outside the process.
package event

import "sync"

// Transition is one state-change attribute set (§7): action plus entity
// identifiers and amounts, enough for an operator to reconstruct state
// without a full-history replay.
type Transition struct {
	Action string `json:"action"`

	TaskHash string `json:"task_hash,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	SlotID   uint64 `json:"slot_id,omitempty"`
	SlotKind string `json:"slot_kind,omitempty"`

	TaskStatus string `json:"task_status,omitempty"` // invalid | continue | remove

	Rewards         uint64 `json:"rewards,omitempty"`
	TaskCw20Balance uint64 `json:"task_cw20_balance,omitempty"`
}

// Subscription is returned by Subscribe; Unsubscribe stops delivery and
// closes the channel.
type Subscription struct {
	ch   chan Transition
	bus  *Bus
	once sync.Once
}

// Chan returns the delivery channel.
func (s *Subscription) Chan() <-chan Transition { return s.ch }

// Unsubscribe detaches the subscription from the bus.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus is a typed, synchronous-post pub-sub bus: Post offers the Transition
// to every subscriber's buffered channel and returns without waiting,
// matching the single-threaded, no-internal-parallelism model of §5 (a
// slow subscriber is only ever the process's own logging/metrics/kafka
// mirror, never core state).
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new listener with the given channel buffer depth.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Subscription{ch: make(chan Transition, buffer), bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Post delivers t to every current subscriber. A subscriber whose buffer
// is full is dropped from delivery for this post rather than blocking the
// caller — an event bus must never be able to stall core state
// transitions.
func (b *Bus) Post(t Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- t:
		default:
		}
	}
}
