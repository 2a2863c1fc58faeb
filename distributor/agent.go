// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package distributor implements §4.3's agent registry and fairness
// distribution: registration, nomination from Pending to Active, and the
// composite-key fairness sort behind get_available_tasks.
package distributor

// Status is an agent's membership state (GLOSSARY "Agent").
type Status int

const (
	Pending Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "pending"
}

// Agent is one registered worker identity.
type Agent struct {
	ID             string
	PayableAccount string
	Status         Status

	// Fairness bookkeeping (§4.3, §9 composite-key sort).
	LastExecutedSlot    uint64
	CompletedBlockTasks uint64
	CompletedCronTasks  uint64

	// Nomination bookkeeping (§4.3 TryNominateAgent).
	PendingIndex    int    // current position in the pending queue, kept up to date as agents leave it
	CheckpointBlock uint64 // not written by Registry, which tracks the nomination checkpoint itself; stays 0
	TasksSinceCheckpoint uint64
}

// fairnessKey is the tuple §9 directs sorting on: lexicographic, not the
// source's lossy decimal string-concatenation.
type fairnessKey struct {
	lastExecutedSlot uint64
	completedKind    uint64
}

func (a *Agent) fairnessKey(blockKind bool) fairnessKey {
	if blockKind {
		return fairnessKey{a.LastExecutedSlot, a.CompletedBlockTasks}
	}
	return fairnessKey{a.LastExecutedSlot, a.CompletedCronTasks}
}

func (k fairnessKey) less(o fairnessKey) bool {
	if k.lastExecutedSlot != o.lastExecutedSlot {
		return k.lastExecutedSlot < o.lastExecutedSlot
	}
	return k.completedKind < o.completedKind
}
