// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsched/core/params"
	"github.com/agentsched/core/tasks"
)

func testConfig() *params.Config {
	cfg := params.Default("owner1")
	cfg.SecondaryTokenWhitelist = []string{"usecondary"}
	return cfg
}

func TestAmountForOneTask_Native(t *testing.T) {
	cfg := testConfig()
	actions := []tasks.Action{{Kind: tasks.ActionTransfer, To: "bob", Coins: []tasks.Coin{{Denom: cfg.NativeDenom, Amount: 1000}}}}

	amount, err := AmountForOneTask(cfg, actions, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.GasBase+cfg.GasAction, amount.GasUnits)
	assert.True(t, amount.Native > 1000, "native cost must include the attached transfer plus gas price and fees")
}

func TestAmountForOneTask_ExceedsGasLimit(t *testing.T) {
	cfg := testConfig()
	cfg.GasLimit = cfg.GasBase + cfg.GasAction // no room for one more action
	actions := []tasks.Action{
		{Kind: tasks.ActionTransfer},
		{Kind: tasks.ActionTransfer},
	}

	_, err := AmountForOneTask(cfg, actions, nil)
	require.Error(t, err)
	assert.Equal(t, params.InvalidGas, params.KindOf(err))
}

func TestAmountForOneTask_RejectsMultipleSecondaryDenoms(t *testing.T) {
	cfg := testConfig()
	cfg.SecondaryTokenWhitelist = []string{"usecondary", "uother"}
	actions := []tasks.Action{
		{Kind: tasks.ActionTransfer, Coins: []tasks.Coin{{Denom: "usecondary", Amount: 1}}},
		{Kind: tasks.ActionTransfer, Coins: []tasks.Coin{{Denom: "uother", Amount: 1}}},
	}

	_, err := AmountForOneTask(cfg, actions, nil)
	require.Error(t, err)
	assert.Equal(t, params.TooManyCoins, params.KindOf(err))
}

func TestLedger_CreateTaskBalance_RequiresDoubleForRecurring(t *testing.T) {
	l := NewLedger()
	amount := tasks.Amount{Native: 100}

	err := l.CreateTaskBalance("hash1", amount, true, 150, 0, 0, "", "")
	require.Error(t, err, "recurring task needs 2x the per-invocation amount attached")

	err = l.CreateTaskBalance("hash1", amount, true, 200, 0, 0, "", "")
	require.NoError(t, err)

	bal, ok := l.Balance("hash1")
	require.True(t, ok)
	assert.Equal(t, uint64(200), bal.Native)
}

func TestLedger_Debit_CreditsAgentAndTreasury(t *testing.T) {
	l := NewLedger()
	amount := tasks.Amount{Native: 1050} // 1000 gross + 5% total fee folded in
	require.NoError(t, l.CreateTaskBalance("hash1", amount, false, 1050, 0, 0, "", ""))

	err := l.Debit("hash1", "agent1", amount, 400, 100)
	require.NoError(t, err)

	bal, _ := l.Balance("hash1")
	assert.Equal(t, uint64(0), bal.Native)
	assert.True(t, l.AgentRewards("agent1") > 0)
	assert.True(t, l.TreasuryBalance() > 0)
}

func TestLedger_RefundToOwner_ClearsBalance(t *testing.T) {
	l := NewLedger()
	amount := tasks.Amount{Native: 500}
	require.NoError(t, l.CreateTaskBalance("hash1", amount, false, 500, 0, 0, "", ""))

	residual, err := l.RefundToOwner("hash1")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), residual.Native)

	_, ok := l.Balance("hash1")
	assert.False(t, ok)
}

func TestLedger_RefillSecondary_ChargesUserDeposit(t *testing.T) {
	l := NewLedger()
	amount := tasks.Amount{Native: 100, SecondaryDenom: "usecondary", SecondaryAmount: 10}
	require.NoError(t, l.CreateTaskBalance("hash1", amount, false, 100, 10, 0, "usecondary", ""))

	err := l.RefillSecondary("hash1", "alice", "usecondary", 5)
	require.Error(t, err, "alice has not deposited anything yet")

	l.DepositUserSecondary("alice", "usecondary", 5)
	err = l.RefillSecondary("hash1", "alice", "usecondary", 5)
	require.NoError(t, err)

	bal, _ := l.Balance("hash1")
	assert.Equal(t, uint64(15), bal.SecondaryAmount)
}

func TestLedger_WithdrawAgentRewards_ZeroesAfterWithdraw(t *testing.T) {
	l := NewLedger()
	amount := tasks.Amount{Native: 1050}
	require.NoError(t, l.CreateTaskBalance("hash1", amount, false, 1050, 0, 0, "", ""))
	require.NoError(t, l.Debit("hash1", "agent1", amount, 400, 100))

	got, err := l.WithdrawAgentRewards("agent1")
	require.NoError(t, err)
	assert.True(t, got > 0)

	_, err = l.WithdrawAgentRewards("agent1")
	assert.Error(t, err)
}
