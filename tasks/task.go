// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package tasks implements §4.2's task store and slot index: the primary
// tasks_by_hash map, the owner secondary index, and the three disjoint
// slot structures (block_slots, time_slots, evented_tasks_lookup).
package tasks

import (
	"github.com/agentsched/core/interval"
)

// Coin is a single denom/amount pair, attached to an Action as a transfer
// amount or kept in a TaskBalance.
type Coin struct {
	Denom  string
	Amount uint64
}

// ActionKind distinguishes the two Action variants (Design Notes: "model
// actions as a sum type").
type ActionKind int

const (
	ActionTransfer ActionKind = iota
	ActionCall
)

// Action is one opaque step of a task (§3 "actions"). Kind selects which
// fields apply; the manager's ActionExecutor treats Call.Payload as fully
// opaque (§1 scope).
type Action struct {
	Kind ActionKind

	// ActionTransfer
	To     string
	Coins  []Coin

	// ActionCall
	Target   string
	Payload  []byte
	GasLimit *uint64
}

// Query is one predicate clause (§4.6).
type Query struct {
	ModuleAddress string
	Payload       []byte
	CheckResult   bool
}

// PathSegment is one step of a generic JSON path: either a field name or an
// array index (§4.6 Transforms).
type PathSegment struct {
	Field string
	Index int
	IsIdx bool
}

// Transform rewrites one action field from a query's response (§4.6).
type Transform struct {
	ActionIdx       int
	QueryIdx        int
	ActionPath      []PathSegment
	QueryResponsePath []PathSegment
}

// Task is not modified after creation; its prepaid balance is held
// separately, in balance.Ledger (§3).
type Task struct {
	Hash  string
	Owner string

	Schedule interval.Schedule
	Boundary interval.Boundary

	StopOnFail bool
	Actions    []Action
	Queries    []Query
	Transforms []Transform

	AmountForOneTask Amount

	Version uint64

	// Evented is true iff len(Queries) > 0 (§3 "task is evented iff
	// non-empty"); cached here to avoid recomputing on every lookup.
	Evented bool
}

// Amount is the pre-computed per-invocation cost (§4.5
// amount_for_one_task): gas units plus optional secondary-token and
// foreign-denom amounts.
type Amount struct {
	GasUnits uint64
	Native   uint64 // price(GasUnits) * (1 + total_fee_bps/10000) + attached native transfers

	SecondaryDenom  string
	SecondaryAmount uint64

	ForeignDenom  string
	ForeignAmount uint64
}
