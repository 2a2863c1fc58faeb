// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package distributor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsched/core/params"
)

func testCfg() *params.Config {
	cfg := params.Default("owner1")
	cfg.MinTasksPerAgent = 3
	cfg.NominationBlockDuration = 10
	return cfg
}

func TestRegisterAgent_RejectsDuplicate(t *testing.T) {
	r := New(0)
	_, err := r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)

	_, err = r.RegisterAgent("agent1", "payable2")
	require.Error(t, err)
	assert.Equal(t, params.AgentAlreadyRegistered, params.KindOf(err))
}

// TestRegisterAgent_AutoActivatesWhenNoActiveAgentsExist implements §4.3:
// the very first agent must not sit in Pending with nobody to promote it.
func TestRegisterAgent_AutoActivatesWhenNoActiveAgentsExist(t *testing.T) {
	r := New(0)
	a, err := r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)
	assert.Equal(t, Active, a.Status)

	// A second agent enters Pending normally now that an active agent exists.
	b, err := r.RegisterAgent("agent2", "payable2")
	require.NoError(t, err)
	assert.Equal(t, Pending, b.Status)
}

// TestNomination_OnlyEarliestPendingPositionPromotes implements scenario
// S5: two pending agents, three tasks created, min_tasks_per_agent=3 opens
// exactly one slot, so only the agent at pending position 0 may check in.
func TestNomination_OnlyEarliestPendingPositionPromotes(t *testing.T) {
	r := New(0)
	cfg := testCfg()

	_, err := r.RegisterAgent("seed", "seed-payable") // auto-activates, keeps the rest Pending
	require.NoError(t, err)
	_, err = r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)
	_, err = r.RegisterAgent("agent2", "payable2")
	require.NoError(t, err)

	r.NotifyTaskCreated(0)
	r.NotifyTaskCreated(0)
	r.NotifyTaskCreated(0)

	err = r.TryNominateAgent(cfg, "agent2", 10)
	require.Error(t, err, "agent2 is behind agent1 in pending order and no second slot opened")
	assert.Equal(t, params.TryLaterForNomination, params.KindOf(err))

	require.NoError(t, r.TryNominateAgent(cfg, "agent1", 10))
	agent1, _ := r.GetByAddress("agent1")
	assert.Equal(t, Active, agent1.Status)

	// The checkpoint reset after agent1's promotion; agent2 must wait for
	// a fresh window even though its pending index shifted to 0.
	err = r.TryNominateAgent(cfg, "agent2", 15)
	require.Error(t, err)
	assert.Equal(t, params.TryLaterForNomination, params.KindOf(err))
}

func TestNomination_RejectsBeforeWindowElapsed(t *testing.T) {
	r := New(0)
	cfg := testCfg()
	_, err := r.RegisterAgent("seed", "seed-payable") // auto-activates
	require.NoError(t, err)
	_, err = r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)

	r.NotifyTaskCreated(0)
	r.NotifyTaskCreated(0)
	r.NotifyTaskCreated(0)

	err = r.TryNominateAgent(cfg, "agent1", 5)
	require.Error(t, err)
	assert.Equal(t, params.TryLaterForNomination, params.KindOf(err))
}

// TestTryNominateAgent_TimeGateLimitsSlotsEvenWhenTaskCountAllowsMore pins
// down the concrete §4.3 example: 9 tasks created (agents_by_tasks=3) but
// only 12 blocks elapsed (agents_by_time=1) must still cap slots_opened at
// 1, the min of the two, not just agents_by_tasks.
func TestTryNominateAgent_TimeGateLimitsSlotsEvenWhenTaskCountAllowsMore(t *testing.T) {
	r := New(0)
	cfg := testCfg() // MinTasksPerAgent=3, NominationBlockDuration=10

	_, err := r.RegisterAgent("seed", "seed-payable") // auto-active, keeps the rest Pending
	require.NoError(t, err)
	for _, id := range []string{"p0", "p1", "p2"} {
		_, err := r.RegisterAgent(id, id)
		require.NoError(t, err)
	}

	for i := 0; i < 9; i++ {
		r.NotifyTaskCreated(0) // first arrival anchors start_block at height 0
	}

	// agents_by_tasks = 9/3 = 3, but agents_by_time = 12/10 = 1, so only
	// pending position 0 may check in.
	err = r.TryNominateAgent(cfg, "p1", 12)
	require.Error(t, err, "position 1 exceeds the time-gated slot count even though task count allows 3")
	assert.Equal(t, params.TryLaterForNomination, params.KindOf(err))

	require.NoError(t, r.TryNominateAgent(cfg, "p0", 12))
}

// TestNotifyTaskCreated_IdleTimeBeforeFirstTaskDoesNotCountTowardWindow
// implements §4.3: start_block stays unset (time contributes 0) until a
// task actually arrives after a checkpoint reset.
func TestNotifyTaskCreated_IdleTimeBeforeFirstTaskDoesNotCountTowardWindow(t *testing.T) {
	r := New(0)
	cfg := testCfg()

	_, err := r.RegisterAgent("seed", "seed-payable") // auto-activates
	require.NoError(t, err)
	_, err = r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)

	// The first task only arrives at height 100; idle time before that
	// must not count toward the nomination window.
	for i := 0; i < 3; i++ {
		r.NotifyTaskCreated(100)
	}

	err = r.TryNominateAgent(cfg, "agent1", 105)
	require.Error(t, err, "agents_by_time = (105-100)/10 = 0")
	assert.Equal(t, params.TryLaterForNomination, params.KindOf(err))

	require.NoError(t, r.TryNominateAgent(cfg, "agent1", 110))
}

// TestTryNominateAgent_PositionZeroBypassesGatesWhenNoActiveAgentsRemain
// implements §4.3's recovery path: if every active agent is gone, pending
// position 0 is promoted immediately regardless of the task-count or
// time-elapsed gates.
func TestTryNominateAgent_PositionZeroBypassesGatesWhenNoActiveAgentsRemain(t *testing.T) {
	r := New(0)
	cfg := testCfg()

	_, err := r.RegisterAgent("seed", "seed-payable") // auto-active
	require.NoError(t, err)
	_, err = r.RegisterAgent("successor", "successor-payable")
	require.NoError(t, err)

	require.NoError(t, r.Unregister("seed"))

	// No tasks created, no window elapsed, yet successor must be promoted
	// since no active agents remain.
	require.NoError(t, r.TryNominateAgent(cfg, "successor", 0))
	agent, _ := r.GetByAddress("successor")
	assert.Equal(t, Active, agent.Status)
}

// TestGetAvailableTasks_DistributesFairly implements scenario S4: 5 active
// agents, 7 ready block tasks, quotas (2,2,1,1,1) in fairness order.
func TestGetAvailableTasks_DistributesFairly(t *testing.T) {
	r := New(0)
	cfg := testCfg()
	ids := []string{"a1", "a2", "a3", "a4", "a5"}
	height := uint64(0)
	for i, id := range ids {
		_, err := r.RegisterAgent(id, id+"-payable")
		require.NoError(t, err)
		if i == 0 {
			continue // first agent auto-activates; no active agents existed yet
		}
		for k := 0; k < 3; k++ {
			r.NotifyTaskCreated(height)
		}
		height += cfg.NominationBlockDuration
		require.NoError(t, r.TryNominateAgent(cfg, id, height))
	}

	quotas := make(map[string]int)
	for _, id := range ids {
		blockQuota, _, err := r.GetAvailableTasks(id, 7, 0)
		require.NoError(t, err)
		quotas[id] = blockQuota
	}

	total := 0
	for _, q := range quotas {
		total += q
		assert.True(t, q == 1 || q == 2)
	}
	assert.Equal(t, 7, total)
}

func TestGetAvailableTasks_RejectsInactiveAgent(t *testing.T) {
	r := New(0)
	_, err := r.RegisterAgent("seed", "seed-payable") // auto-activates, occupies the active slot
	require.NoError(t, err)

	_, err = r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)

	_, _, err = r.GetAvailableTasks("agent1", 5, 0)
	require.Error(t, err)
	assert.Equal(t, params.AgentNotActive, params.KindOf(err))
}

func TestCleanup_NeverDropsBelowMinActiveReserve(t *testing.T) {
	r := New(0)
	cfg := testCfg()
	cfg.MinActiveReserve = 1
	cfg.AgentEvictionThreshold = 5

	height := uint64(0)
	ids := []string{"a1", "a2"}
	for i, id := range ids {
		_, err := r.RegisterAgent(id, id)
		require.NoError(t, err)
		if i == 0 {
			continue
		}
		for k := 0; k < 3; k++ {
			r.NotifyTaskCreated(height)
		}
		height += cfg.NominationBlockDuration
		require.NoError(t, r.TryNominateAgent(cfg, id, height))
	}
	// Neither agent ever executed anything: last_executed_slot stays 0.
	evicted, err := r.Cleanup(cfg, 100)
	require.NoError(t, err)
	assert.Len(t, evicted, 1, "must stop evicting once min_active_reserve is reached")
}

func TestUnregister_AggregatesHookErrors(t *testing.T) {
	r := New(0)
	_, err := r.RegisterAgent("agent1", "payable1")
	require.NoError(t, err)

	hookErr := params.New(params.NoRewardsForAgent, "pending rewards")
	err = r.Unregister("agent1", func(a *Agent) error { return hookErr })
	require.Error(t, err)

	_, ok := r.GetByAddress("agent1")
	assert.False(t, ok, "agent is removed regardless of hook failure")
}
