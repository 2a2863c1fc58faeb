// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNext_Block(t *testing.T) {
	env := Env{Height: 100}
	sched := Schedule{Kind: Block, N: 10}

	slot, kind := Next(env, sched, Boundary{}, 0)
	assert.Equal(t, BlockSlot, kind)
	assert.Equal(t, uint64(110), slot)
}

func TestNext_Block_RespectsStart(t *testing.T) {
	env := Env{Height: 5}
	sched := Schedule{Kind: Block, N: 10}
	start := uint64(50)

	slot, _ := Next(env, sched, Boundary{Start: &start}, 0)
	assert.Equal(t, uint64(50), slot)
}

func TestNext_Block_TerminalPastEnd(t *testing.T) {
	env := Env{Height: 100}
	sched := Schedule{Kind: Block, N: 10}
	end := uint64(95)

	slot, _ := Next(env, sched, Boundary{End: &end}, 0)
	assert.Equal(t, uint64(0), slot, "a boundary end below the current height must be terminal")
}

func TestNext_Once_RunsNextBlock(t *testing.T) {
	sched := Schedule{Kind: Once}
	slot, kind := Next(Env{Height: 10}, sched, Boundary{}, 0)
	assert.Equal(t, BlockSlot, kind)
	assert.Equal(t, uint64(11), slot)
}

func TestNext_Cron(t *testing.T) {
	err := ValidateCron("*/5 * * * * *")
	assert.NoError(t, err)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	slot, kind := Next(Env{Timestamp: ts}, Schedule{Kind: Cron, Expr: "*/5 * * * * *"}, Boundary{}, time.Second)
	assert.Equal(t, TimeSlot, kind)
	assert.True(t, slot > uint64(ts.UnixNano()))
}

func TestValidateCron_Rejects(t *testing.T) {
	err := ValidateCron("not a cron expression")
	assert.Error(t, err)
}

func TestSlotKind_String(t *testing.T) {
	assert.Equal(t, "block", BlockSlot.String())
	assert.Equal(t, "time", TimeSlot.String())
}
