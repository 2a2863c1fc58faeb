// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsched/core/balance"
	"github.com/agentsched/core/distributor"
	"github.com/agentsched/core/event"
	"github.com/agentsched/core/interval"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/query"
	"github.com/agentsched/core/tasks"
)

// stubClient is an in-process predicate module stub for manager-level
// tests that never exercise the evented path in depth.
type stubClient struct {
	ready bool
	err   error
}

func (s stubClient) Evaluate(ctx context.Context, moduleAddress string, payload []byte, checkResult bool) (query.Result, error) {
	if s.err != nil {
		return query.Result{}, s.err
	}
	return query.Result{Ready: s.ready, Data: []byte(`{}`)}, nil
}

func newTestManager(t *testing.T, client query.Client) *Manager {
	cfg := params.Default("owner1")
	store := tasks.New("test-chain")
	ledger := balance.NewLedger()
	registry := distributor.New(0)
	dispatch, err := query.NewDispatcher(client, query.CacheOptions{})
	require.NoError(t, err)
	bus := event.New()

	m := New(cfg, store, ledger, registry, dispatch, nil, bus)
	m.executor = &SyncExecutor{Manager: m, Run: func(ctx context.Context, action tasks.Action) (bool, error) {
		return true, nil
	}}
	return m
}

func nativeTransferTask(hash, owner string, sched interval.Schedule, boundary interval.Boundary) *tasks.Task {
	return &tasks.Task{
		Hash:     hash,
		Owner:    owner,
		Schedule: sched,
		Boundary: boundary,
		Actions:  []tasks.Action{{Kind: tasks.ActionTransfer, To: "bob", Coins: []tasks.Coin{{Denom: "unative", Amount: 1000}}}},
	}
}

// TestProxyCall_NativeTransfer_S1 exercises scenario S1 (interval=Immediate,
// attach 600 000-equivalent native). §4.5 requires recurring schedules —
// Immediate included, per original_source's recurring() treating everything
// but Once as recurring — to attach funds for two invocations, so one
// proxy_call debits the first and leaves the task alive with exactly one
// invocation's cost remaining, the same boundary S2 exercises; full
// balance exhaustion (and removal) is covered by
// TestProxyCall_Immediate_ConsecutiveExecutionsUntilBalanceExhaustion below.
func TestProxyCall_NativeTransfer_S1(t *testing.T) {
	m := newTestManager(t, stubClient{ready: true})
	cfg := m.cfg
	cfg.MinTasksPerAgent = 1
	cfg.NominationBlockDuration = 0

	task := nativeTransferTask("hash1", "alice", interval.Schedule{Kind: interval.Immediate}, interval.Boundary{})
	amount, err := balance.AmountForOneTask(cfg, task.Actions, nil)
	require.NoError(t, err)

	env := interval.Env{Height: 1}
	require.NoError(t, m.CreateTask(task, amount.Native*2, 0, 0, "", "", env, time.Now()))

	_, err = m.RegisterAgent("agent1", "payable1")
	require.NoError(t, err) // the first agent registered auto-activates (§4.3)

	executed, err := m.ProxyCall(context.Background(), "agent1", nil, interval.Env{Height: 2})
	require.NoError(t, err)
	assert.True(t, executed)

	_, stillExists := m.store.Task("hash1")
	assert.True(t, stillExists, "an Immediate task is recurring and survives while balance remains")
	assert.True(t, m.AgentRewards("agent1") > 0)
	assert.True(t, m.TreasuryBalance() > 0)

	bal, ok := m.TaskBalance("hash1")
	require.True(t, ok)
	assert.Equal(t, amount.Native, bal.Native, "exactly one invocation's cost remains after the first run")
}

// TestProxyCall_Immediate_ConsecutiveExecutionsUntilBalanceExhaustion
// implements the §8 property: an Immediate recurring task keeps executing
// on consecutive blocks until its balance is exhausted, then is removed.
func TestProxyCall_Immediate_ConsecutiveExecutionsUntilBalanceExhaustion(t *testing.T) {
	m := newTestManager(t, stubClient{ready: true})
	cfg := m.cfg
	cfg.MinTasksPerAgent = 1
	cfg.NominationBlockDuration = 0

	task := nativeTransferTask("hash1", "alice", interval.Schedule{Kind: interval.Immediate}, interval.Boundary{})
	amount, err := balance.AmountForOneTask(cfg, task.Actions, nil)
	require.NoError(t, err)

	env := interval.Env{Height: 1}
	require.NoError(t, m.CreateTask(task, amount.Native*2, 0, 0, "", "", env, time.Now()))

	_, err = m.RegisterAgent("agent1", "payable1")
	require.NoError(t, err) // the first agent registered auto-activates (§4.3)

	// First execution at height 2: one invocation's cost remains.
	executed, err := m.ProxyCall(context.Background(), "agent1", nil, interval.Env{Height: 2})
	require.NoError(t, err)
	assert.True(t, executed)
	_, stillExists := m.store.Task("hash1")
	require.True(t, stillExists)

	// Second, consecutive-block execution exhausts the balance to zero;
	// the task is still indexed for one more slot (Reschedule doesn't
	// look ahead at the balance), but that next attempt finds nothing left
	// to fund and removes it.
	executed, err = m.ProxyCall(context.Background(), "agent1", nil, interval.Env{Height: 3})
	require.NoError(t, err)
	assert.True(t, executed)
	bal, ok := m.TaskBalance("hash1")
	require.True(t, ok)
	assert.Equal(t, uint64(0), bal.Native)

	executed, err = m.ProxyCall(context.Background(), "agent1", nil, interval.Env{Height: 4})
	require.NoError(t, err)
	assert.False(t, executed, "no balance left to fund this invocation")
	_, stillExists = m.store.Task("hash1")
	assert.False(t, stillExists, "the exhausted task is removed once an attempted invocation can't be afforded")
}

// TestProxyCall_RecurringBlockBounded_S2 exercises scenario S2: a
// Block(10)-scheduled task bounded to end at height 15 runs at slot 10
// and survives; its next occurrence (20) lies past the boundary, so
// Reschedule indexes it at the end height 15 instead.
func TestProxyCall_RecurringBlockBounded_S2(t *testing.T) {
	m := newTestManager(t, stubClient{ready: true})
	cfg := m.cfg
	cfg.MinTasksPerAgent = 1
	cfg.NominationBlockDuration = 0

	end := uint64(15)
	task := nativeTransferTask("hash1", "alice", interval.Schedule{Kind: interval.Block, N: 10}, interval.Boundary{End: &end})
	amount, err := balance.AmountForOneTask(cfg, task.Actions, nil)
	require.NoError(t, err)

	env := interval.Env{Height: 1}
	require.NoError(t, m.CreateTask(task, amount.Native*2, 0, 0, "", "", env, time.Now()))

	_, err = m.RegisterAgent("agent1", "payable1")
	require.NoError(t, err) // the first agent registered auto-activates (§4.3)

	// First run lands at slot 10, well within the boundary.
	executed, err := m.ProxyCall(context.Background(), "agent1", nil, interval.Env{Height: 10})
	require.NoError(t, err)
	assert.True(t, executed)

	_, stillExists := m.store.Task("hash1")
	assert.True(t, stillExists, "the task must survive its first run, rescheduled to the next block slot")

	bal, ok := m.TaskBalance("hash1")
	require.True(t, ok)
	assert.Equal(t, amount.Native, bal.Native, "exactly one invocation's cost should remain after the first run")
}

// TestProxyCall_Evented_S3 exercises scenario S3: an evented task becomes
// ready only once its predicate reports true.
func TestProxyCall_Evented_S3(t *testing.T) {
	m := newTestManager(t, stubClient{ready: false})
	cfg := m.cfg
	cfg.MinTasksPerAgent = 1
	cfg.NominationBlockDuration = 0

	task := nativeTransferTask("hash1", "alice", interval.Schedule{Kind: interval.Block, N: 10}, interval.Boundary{})
	task.Queries = []tasks.Query{{ModuleAddress: "predicate:balance", Payload: []byte(`{"account":"lucy"}`), CheckResult: true}}
	amount, err := balance.AmountForOneTask(cfg, task.Actions, task.Queries)
	require.NoError(t, err)

	env := interval.Env{Height: 1}
	require.NoError(t, m.CreateTask(task, amount.Native*2, 0, 0, "", "", env, time.Now()))

	_, err = m.RegisterAgent("agent1", "payable1")
	require.NoError(t, err) // the first agent registered auto-activates (§4.3)

	hash := "hash1"
	executed, err := m.ProxyCall(context.Background(), "agent1", &hash, interval.Env{Height: 2})
	require.NoError(t, err)
	assert.False(t, executed, "predicate reports false, so the call is a no-op")

	// Swap in a client that now reports the predicate as satisfied and
	// build a fresh dispatcher bound to it (the cache would otherwise
	// still hold the earlier false answer).
	dispatch, err := query.NewDispatcher(stubClient{ready: true}, query.CacheOptions{})
	require.NoError(t, err)
	m.dispatch = dispatch

	executed, err = m.ProxyCall(context.Background(), "agent1", &hash, interval.Env{Height: 2})
	require.NoError(t, err)
	assert.True(t, executed)
}

// TestRefillTaskCw20Balance_RejectsWrongDenom implements scenario S6: a
// refill using a denom that does not match the task's existing secondary
// balance shape must be rejected.
func TestRefillTaskCw20Balance_RejectsWrongDenom(t *testing.T) {
	m := newTestManager(t, stubClient{ready: true})
	cfg := m.cfg
	cfg.SecondaryTokenWhitelist = []string{"usecondary", "uother"}

	task := nativeTransferTask("hash1", "alice", interval.Schedule{Kind: interval.Once}, interval.Boundary{})
	task.Actions = append(task.Actions, tasks.Action{Kind: tasks.ActionTransfer, Coins: []tasks.Coin{{Denom: "usecondary", Amount: 5}}})
	amount, err := balance.AmountForOneTask(cfg, task.Actions, nil)
	require.NoError(t, err)

	env := interval.Env{Height: 1}
	require.NoError(t, m.CreateTask(task, amount.Native, amount.SecondaryAmount, 0, "usecondary", "", env, time.Now()))

	m.DepositUserSecondary("alice", "uother", 100)
	err = m.RefillTaskCw20Balance("hash1", "alice", "uother", 10)
	require.Error(t, err)
	assert.Equal(t, params.TooManyCoins, params.KindOf(err))
}

func TestSetPaused_RoleSplit(t *testing.T) {
	m := newTestManager(t, stubClient{ready: true})

	// pause_admin (defaults to owner here) may pause.
	require.NoError(t, m.SetPaused("owner1", true))
	assert.True(t, m.Paused())

	// A non-owner, non-pause_admin caller may do neither.
	err := m.SetPaused("mallory", true)
	require.Error(t, err)
	assert.Equal(t, params.Unauthorized, params.KindOf(err))

	// Only the owner may unpause.
	err = m.SetPaused("mallory", false)
	require.Error(t, err)
	assert.Equal(t, params.Unauthorized, params.KindOf(err))

	require.NoError(t, m.SetPaused("owner1", false))
	assert.False(t, m.Paused())
}
