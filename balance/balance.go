// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package balance implements §4.5's balance & fee accounting: the gas
// price model, amount_for_one_task, and the Ledger that holds every
// task's prepaid balance plus pending agent rewards and the treasury.
package balance

import (
	"github.com/agentsched/core/log"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/tasks"
)

var logger = log.NewModuleLogger(log.Balance)

// TaskBalance is 1:1 with a Task (§3).
type TaskBalance struct {
	Native uint64

	SecondaryDenom  string
	SecondaryAmount uint64

	ForeignDenom  string
	ForeignAmount uint64
}

// AmountForOneTask computes the per-invocation cost at task-creation time
// (§4.5), failing if gas exceeds the configured limit or if secondary/
// foreign transfers mix denominations.
func AmountForOneTask(cfg *params.Config, actions []tasks.Action, queries []tasks.Query) (tasks.Amount, error) {
	gasUnits := cfg.GasBase
	for _, a := range actions {
		if a.GasLimit != nil {
			gasUnits += *a.GasLimit
		} else {
			gasUnits += cfg.GasAction
		}
	}
	gasUnits += uint64(len(queries)) * (cfg.GasQuery + cfg.GasContractQuery)

	if gasUnits > cfg.GasLimit {
		return tasks.Amount{}, params.Newf(params.InvalidGas, "gas_units %d exceeds gas_limit %d", gasUnits, cfg.GasLimit)
	}

	price := cfg.Price(gasUnits)
	totalFeeBps := cfg.AgentFeeBps + cfg.TreasuryFeeBps
	native := price + (price*totalFeeBps)/10_000

	var secondaryDenom string
	var secondaryAmount uint64
	var foreignDenom string
	var foreignAmount uint64

	for _, a := range actions {
		for _, c := range a.Coins {
			switch {
			case c.Denom == cfg.NativeDenom:
				native += c.Amount
			case isWhitelisted(cfg, c.Denom):
				if secondaryDenom == "" {
					secondaryDenom = c.Denom
				} else if secondaryDenom != c.Denom {
					return tasks.Amount{}, params.New(params.TooManyCoins, "at most one secondary-token denom per task")
				}
				secondaryAmount += c.Amount
			default:
				if foreignDenom == "" {
					foreignDenom = c.Denom
				} else if foreignDenom != c.Denom {
					return tasks.Amount{}, params.New(params.TooManyCoins, "at most one foreign denom per task")
				}
				foreignAmount += c.Amount
			}
		}
	}

	return tasks.Amount{
		GasUnits:        gasUnits,
		Native:          native,
		SecondaryDenom:  secondaryDenom,
		SecondaryAmount: secondaryAmount,
		ForeignDenom:    foreignDenom,
		ForeignAmount:   foreignAmount,
	}, nil
}

func isWhitelisted(cfg *params.Config, denom string) bool {
	for _, d := range cfg.SecondaryTokenWhitelist {
		if d == denom {
			return true
		}
	}
	return false
}

// Ledger holds every mutable balance in the system: per-task balances,
// pending agent rewards, the treasury, and per-user secondary-token temp
// balances (the user_withdraw target).
type Ledger struct {
	taskBalances  map[string]*TaskBalance
	agentRewards  map[string]uint64
	treasury      uint64
	userSecondary map[string]map[string]uint64 // address -> denom -> amount
}

// NewLedger builds an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		taskBalances:  make(map[string]*TaskBalance),
		agentRewards:  make(map[string]uint64),
		userSecondary: make(map[string]map[string]uint64),
	}
}

// CreateTaskBalance implements §4.5 create_task_balance: attached funds
// must meet amount*k, k=2 for a recurring interval else 1; the excess is
// kept for future invocations.
func (l *Ledger) CreateTaskBalance(hash string, amount tasks.Amount, recurring bool, attachedNative, attachedSecondary, attachedForeign uint64, attachedSecondaryDenom, attachedForeignDenom string) error {
	if amount.SecondaryDenom != "" && attachedSecondaryDenom != "" && amount.SecondaryDenom != attachedSecondaryDenom {
		return params.New(params.TooManyCoins, "secondary denom mismatch")
	}
	if amount.ForeignDenom != "" && attachedForeignDenom != "" && amount.ForeignDenom != attachedForeignDenom {
		return params.New(params.TooManyCoins, "foreign denom mismatch")
	}

	k := uint64(1)
	if recurring {
		k = 2
	}
	if attachedNative < amount.Native*k {
		return params.Newf(params.NotEnoughNative, "need at least %d, attached %d", amount.Native*k, attachedNative)
	}
	if attachedSecondary < amount.SecondaryAmount*k {
		return params.New(params.NotEnoughSecondary, "insufficient secondary-token attachment")
	}

	l.taskBalances[hash] = &TaskBalance{
		Native:          attachedNative,
		SecondaryDenom:  firstNonEmpty(amount.SecondaryDenom, attachedSecondaryDenom),
		SecondaryAmount: attachedSecondary,
		ForeignDenom:    firstNonEmpty(amount.ForeignDenom, attachedForeignDenom),
		ForeignAmount:   attachedForeign,
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Balance returns a copy of the task's current balance.
func (l *Ledger) Balance(hash string) (TaskBalance, bool) {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return TaskBalance{}, false
	}
	return *tb, true
}

// Refill implements §4.5 refill_task_balance for native funds; may be
// called by anyone. Rejects on denom mismatch with the existing balance
// shape — native refills never mismatch since there is only one native
// denom, but the check exists for the secondary/foreign variants.
func (l *Ledger) Refill(hash string, amount uint64) error {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return params.New(params.TaskNotFound, "no such task balance")
	}
	tb.Native += amount
	return nil
}

// RefillSecondary implements §4.5 refill_task_cw20_balance.
func (l *Ledger) RefillSecondary(hash, caller, denom string, amount uint64) error {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return params.New(params.TaskNotFound, "no such task balance")
	}
	if tb.SecondaryDenom != "" && tb.SecondaryDenom != denom {
		return params.New(params.TooManyCoins, "refill denom does not match task's existing balance shape")
	}
	userBal := l.userSecondary[caller]
	if userBal == nil || userBal[denom] < amount {
		return params.New(params.NotEnoughSecondary, "caller has insufficient pre-deposited balance")
	}
	userBal[denom] -= amount
	tb.SecondaryDenom = denom
	tb.SecondaryAmount += amount
	return nil
}

// DepositUserSecondary credits a caller's pre-deposited secondary-token
// balance on the manager, the source RefillSecondary charges against.
func (l *Ledger) DepositUserSecondary(caller, denom string, amount uint64) {
	if l.userSecondary[caller] == nil {
		l.userSecondary[caller] = make(map[string]uint64)
	}
	l.userSecondary[caller][denom] += amount
}

// CanAffordOneMore reports whether the task balance covers one more
// execution of amount plus the agent+treasury fees already folded into
// amount.Native (§4.4 step 5).
func (l *Ledger) CanAffordOneMore(hash string, amount tasks.Amount) bool {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return false
	}
	if tb.Native < amount.Native {
		return false
	}
	if amount.SecondaryAmount > 0 && tb.SecondaryAmount < amount.SecondaryAmount {
		return false
	}
	if amount.ForeignAmount > 0 && tb.ForeignAmount < amount.ForeignAmount {
		return false
	}
	return true
}

// Debit implements the §4.4 step-8 success path: debit the task balance by
// amount, credit the agent's pending reward and the treasury.
func (l *Ledger) Debit(hash, agentID string, amount tasks.Amount, agentFeeBps, treasuryFeeBps uint64) error {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return params.New(params.TaskNotFound, "no such task balance")
	}
	if tb.Native < amount.Native {
		return params.New(params.NotEnoughNative, "task balance cannot cover one more execution")
	}
	totalFeeBps := agentFeeBps + treasuryFeeBps
	var gross uint64
	if totalFeeBps > 0 {
		gross = amount.Native * 10_000 / (10_000 + totalFeeBps)
	} else {
		gross = amount.Native
	}
	agentReward := gross * agentFeeBps / 10_000
	treasuryReward := gross * treasuryFeeBps / 10_000

	tb.Native -= amount.Native
	tb.SecondaryAmount -= minU64(tb.SecondaryAmount, amount.SecondaryAmount)
	tb.ForeignAmount -= minU64(tb.ForeignAmount, amount.ForeignAmount)

	l.agentRewards[agentID] += agentReward
	l.treasury += treasuryReward
	logger.Debug("debited task balance", "hash", hash, "agent", agentID, "native", amount.Native, "agent_reward", agentReward, "treasury_reward", treasuryReward)
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// RefundToOwner implements the removal-time refund (§4.2, §4.5): the
// residual balance is split proportionally across native/secondary/
// foreign and returned in full to the owner, then the ledger entry is
// dropped.
func (l *Ledger) RefundToOwner(hash string) (TaskBalance, error) {
	tb, ok := l.taskBalances[hash]
	if !ok {
		return TaskBalance{}, params.New(params.TaskNotFound, "no such task balance")
	}
	residual := *tb
	delete(l.taskBalances, hash)
	return residual, nil
}

// AgentRewards returns an agent's current pending reward balance.
func (l *Ledger) AgentRewards(agentID string) uint64 { return l.agentRewards[agentID] }

// WithdrawAgentRewards implements §6 withdraw_agent_rewards / §4.4's
// credit-then-withdraw split: zeroes and returns the agent's pending
// reward.
func (l *Ledger) WithdrawAgentRewards(agentID string) (uint64, error) {
	amt := l.agentRewards[agentID]
	if amt == 0 {
		return 0, params.New(params.NoRewardsForAgent, "agent has no pending rewards")
	}
	l.agentRewards[agentID] = 0
	return amt, nil
}

// TreasuryBalance is §6 treasury_balance.
func (l *Ledger) TreasuryBalance() uint64 { return l.treasury }

// OwnerWithdraw implements §4.5 owner_withdraw: the entire native treasury
// balance moves to the treasury address.
func (l *Ledger) OwnerWithdraw() uint64 {
	amt := l.treasury
	l.treasury = 0
	return amt
}

// UserWithdraw implements §6 user_withdraw{limit?}: returns (and clears,
// up to limit) the caller's deposited secondary-token balances not bound
// to any task.
func (l *Ledger) UserWithdraw(caller string, limit int) (map[string]uint64, error) {
	bal := l.userSecondary[caller]
	if len(bal) == 0 {
		return nil, params.New(params.NoWithdrawAvailable, "no user balance to withdraw")
	}
	out := make(map[string]uint64)
	n := 0
	for denom, amt := range bal {
		if limit > 0 && n >= limit {
			break
		}
		if amt == 0 {
			continue
		}
		out[denom] = amt
		delete(bal, denom)
		n++
	}
	return out, nil
}

// UsersBalances implements §6 users_balances{address, from, limit} for a
// single address (pagination is over denoms).
func (l *Ledger) UsersBalances(address string, from, limit int) map[string]uint64 {
	bal := l.userSecondary[address]
	if limit <= 0 {
		limit = 100
	}
	denoms := make([]string, 0, len(bal))
	for d := range bal {
		denoms = append(denoms, d)
	}
	out := make(map[string]uint64)
	for i, d := range denoms {
		if i < from {
			continue
		}
		if len(out) >= limit {
			break
		}
		out[d] = bal[d]
	}
	return out
}
