// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package interval implements §4.1's interval & boundary math: given the
// current block height and wall-clock time, compute the next slot at which
// a task becomes ready, or 0 to signal removal.
package interval

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentsched/core/log"
	"github.com/agentsched/core/params"
)

var logger = log.NewModuleLogger(log.Interval)

// Kind is the task's declared cadence (§3 Task.interval).
type Kind int

const (
	Once Kind = iota
	Immediate
	Block
	Cron
)

// SlotKind distinguishes which slot index a next-occurrence belongs to.
type SlotKind int

const (
	BlockSlot SlotKind = iota
	TimeSlot
)

func (k SlotKind) String() string {
	if k == TimeSlot {
		return "time"
	}
	return "block"
}

// Schedule is a task's declared cadence: Kind plus the parameter each kind
// needs (n for Block(n), expr for Cron(expr); both ignored otherwise).
type Schedule struct {
	Kind Kind
	N    uint64 // Block(n)
	Expr string // Cron(expr), 6-field (seconds-resolution)
}

// Boundary restricts a task's natural clock to [Start, End], either as
// block heights (when paired with Once/Immediate/Block) or timestamps
// (when paired with Cron), per §3 "boundary must match the interval's
// natural clock".
type Boundary struct {
	Start *uint64
	End   *uint64
}

// Env is the block context next() computes against; it is the only source
// of "current time" a core operation may read (§4.4 Determinism).
type Env struct {
	Height    uint64
	Timestamp time.Time // must be the block's declared timestamp, not wall-clock
}

// parser accepts the 6-field (seconds-resolution) crontab grammar §4.1
// describes.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron parses expr and reports a non-nil error if it is malformed,
// per §4.2 "Cron expressions are validated at task creation".
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return params.Newf(params.InvalidInterval, "invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// Next computes the next slot id at which the task becomes ready, per
// §4.1. slotID == 0 signals "terminal — remove task".
func Next(env Env, sched Schedule, boundary Boundary, granularity time.Duration) (slotID uint64, kind SlotKind) {
	switch sched.Kind {
	case Once, Immediate:
		return nextHeightBased(env.Height, boundary)
	case Block:
		return nextBlock(env.Height, sched.N, boundary)
	case Cron:
		return nextCron(env.Timestamp, sched.Expr, boundary, granularity)
	default:
		return 0, BlockSlot
	}
}

func nextHeightBased(height uint64, b Boundary) (uint64, SlotKind) {
	start := uint64(0)
	if b.Start != nil && *b.Start > height {
		start = *b.Start
	}
	cur := height
	if start > cur {
		cur = start
	}
	next := cur + 1
	if b.End != nil {
		if *b.End < height {
			return 0, BlockSlot
		}
		if *b.End < next {
			return *b.End, BlockSlot
		}
	}
	return next, BlockSlot
}

func nextBlock(height, n uint64, b Boundary) (uint64, SlotKind) {
	if n == 0 {
		return 0, BlockSlot
	}
	next := height - (height % n) + n
	if b.Start != nil && *b.Start > height {
		start := *b.Start
		if start%n != 0 {
			next = start - (start % n) + n
		} else if start > next {
			next = start
		}
	}
	if b.End != nil {
		if *b.End < height {
			return 0, BlockSlot
		}
		if *b.End < next {
			return *b.End, BlockSlot
		}
	}
	return next, BlockSlot
}

func nextCron(ts time.Time, expr string, b Boundary, granularity time.Duration) (uint64, SlotKind) {
	sched, err := parser.Parse(expr)
	if err != nil {
		logger.Error("cron expression failed to parse at runtime", "expr", expr, "err", err)
		return 0, TimeSlot
	}
	cur := ts
	if b.Start != nil {
		startTs := time.Unix(0, int64(*b.Start))
		if startTs.After(cur) {
			cur = startTs
		}
	}
	cur = snapDown(cur, granularity)

	next := sched.Next(cur)
	if !next.After(cur) || snapDown(next, granularity).Equal(snapDown(cur, granularity)) {
		next = sched.Next(cur.Add(granularity))
	}
	next = snapDown(next, granularity)

	if b.End != nil {
		endNanos := uint64(next.UnixNano())
		if endNanos > *b.End {
			return 0, TimeSlot
		}
	}
	return uint64(next.UnixNano()), TimeSlot
}

func snapDown(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	n := t.UnixNano()
	g := int64(granularity)
	snapped := n - (n % g)
	return time.Unix(0, snapped)
}
