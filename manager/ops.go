// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package manager

import (
	"context"
	"time"

	"github.com/agentsched/core/balance"
	"github.com/agentsched/core/distributor"
	"github.com/agentsched/core/event"
	"github.com/agentsched/core/interval"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/tasks"
)

// CreateTask implements §4.2 create_task: compute the per-invocation cost,
// require the attached funds cover it (k=2 for recurring schedules), index
// the task, and notify the distributor so nomination checkpoints advance.
func (m *Manager) CreateTask(task *tasks.Task, attachedNative, attachedSecondary, attachedForeign uint64, attachedSecondaryDenom, attachedForeignDenom string, env interval.Env, now time.Time) error {
	if err := m.guardPaused(); err != nil {
		return err
	}

	amount, err := balance.AmountForOneTask(m.cfg, task.Actions, task.Queries)
	if err != nil {
		return err
	}
	task.AmountForOneTask = amount
	task.Version = m.cfg.Version()
	task.Evented = len(task.Queries) > 0

	// Every schedule kind but Once attaches funds for two invocations (§4.5);
	// Immediate is recurring (runs every block until balance exhaustion), not
	// one-shot — see original_source/packages/croncat-sdk-tasks/src/types.rs
	// recurring() = !matches!(interval, Once).
	recurring := task.Schedule.Kind != interval.Once
	if err := m.ledger.CreateTaskBalance(task.Hash, amount, recurring, attachedNative, attachedSecondary, attachedForeign, attachedSecondaryDenom, attachedForeignDenom); err != nil {
		return err
	}

	if err := m.store.CreateTask(task, env, m.cfg.SlotGranularityDuration(), now); err != nil {
		if _, refundErr := m.ledger.RefundToOwner(task.Hash); refundErr != nil {
			logger.Warn("refund after failed create_task failed", "hash", task.Hash, "err", refundErr)
		}
		return err
	}

	m.registry.NotifyTaskCreated(env.Height)
	m.publish(event.Transition{Action: "create_task", TaskHash: task.Hash, TaskStatus: "continue"})
	return nil
}

// RemoveTask implements §4.2 remove_task: only the task's owner may remove
// it; the residual balance refunds in full.
func (m *Manager) RemoveTask(hash, caller string) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	task, err := m.store.RemoveTask(hash, caller)
	if err != nil {
		return err
	}
	if _, err := m.ledger.RefundToOwner(task.Hash); err != nil {
		return err
	}
	m.publish(event.Transition{Action: "remove_task", TaskHash: hash, TaskStatus: "remove"})
	return nil
}

// RefillTaskBalance implements §4.5 refill_task_balance for native funds.
func (m *Manager) RefillTaskBalance(hash string, amount uint64) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	return m.ledger.Refill(hash, amount)
}

// DepositUserSecondary credits caller's pre-deposited secondary-token
// balance ahead of a RefillTaskCw20Balance call.
func (m *Manager) DepositUserSecondary(caller, denom string, amount uint64) {
	m.ledger.DepositUserSecondary(caller, denom, amount)
}

// RefillTaskCw20Balance implements §4.5 refill_task_cw20_balance.
func (m *Manager) RefillTaskCw20Balance(hash, caller, denom string, amount uint64) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	return m.ledger.RefillSecondary(hash, caller, denom, amount)
}

// RegisterAgent implements §6 register_agent.
func (m *Manager) RegisterAgent(id, payableAccount string) (*distributor.Agent, error) {
	if err := m.guardPaused(); err != nil {
		return nil, err
	}
	agent, err := m.registry.RegisterAgent(id, payableAccount)
	if err != nil {
		return nil, err
	}
	m.publish(event.Transition{Action: "register_agent", AgentID: id})
	return agent, nil
}

// UpdateAgent implements §6 update_agent (payable_account rotation only).
func (m *Manager) UpdateAgent(id, payableAccount string) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	return m.registry.UpdatePayableAccount(id, payableAccount)
}

// CheckInAgent implements §6 check_in_agent: attempts nomination from
// pending to active at the caller's registered position.
func (m *Manager) CheckInAgent(id string, currentHeight uint64) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	if err := m.registry.TryNominateAgent(m.cfg, id, currentHeight); err != nil {
		return err
	}
	m.publish(event.Transition{Action: "check_in_agent", AgentID: id})
	return nil
}

// UnregisterAgent implements §6 unregister_agent. The hook reports a
// NoRewardsForAgent error when the agent still has pending rewards; the
// registry drops the agent regardless of that error, which is returned to
// the caller, and no unregister_agent transition is published in that case.
// The pending rewards stay in the ledger under the agent's id.
func (m *Manager) UnregisterAgent(id string) error {
	if err := m.guardPaused(); err != nil {
		return err
	}
	err := m.registry.Unregister(id, func(a *distributor.Agent) error {
		if rewards := m.ledger.AgentRewards(a.ID); rewards > 0 {
			return params.New(params.NoRewardsForAgent, "withdraw pending rewards before unregistering")
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(event.Transition{Action: "unregister_agent", AgentID: id})
	return nil
}

// WithdrawAgentRewards implements §6 withdraw_agent_rewards.
func (m *Manager) WithdrawAgentRewards(agentID string) (uint64, error) {
	if err := m.guardPaused(); err != nil {
		return 0, err
	}
	amt, err := m.ledger.WithdrawAgentRewards(agentID)
	if err != nil {
		return 0, err
	}
	m.publish(event.Transition{Action: "withdraw_agent_rewards", AgentID: agentID, Rewards: amt})
	return amt, nil
}

// OwnerWithdraw implements §4.5 owner_withdraw: owner-only.
func (m *Manager) OwnerWithdraw(caller string) (uint64, error) {
	if caller != m.cfg.Owner {
		return 0, params.New(params.Unauthorized, "only owner may withdraw the treasury")
	}
	return m.ledger.OwnerWithdraw(), nil
}

// UserWithdraw implements §6 user_withdraw{limit?}.
func (m *Manager) UserWithdraw(caller string, limit int) (map[string]uint64, error) {
	return m.ledger.UserWithdraw(caller, limit)
}

// TaskBalance is §6's task_balance query.
func (m *Manager) TaskBalance(hash string) (balance.TaskBalance, bool) {
	return m.ledger.Balance(hash)
}

// TreasuryBalance is §6's treasury_balance query.
func (m *Manager) TreasuryBalance() uint64 { return m.ledger.TreasuryBalance() }

// AgentRewards is §6's agent_rewards query.
func (m *Manager) AgentRewards(agentID string) uint64 { return m.ledger.AgentRewards(agentID) }

// UsersBalances is §6's users_balances{address, from, limit} query.
func (m *Manager) UsersBalances(address string, from, limit int) map[string]uint64 {
	return m.ledger.UsersBalances(address, from, limit)
}

// UpdateConfig implements §6 update_config(patch): owner-only.
func (m *Manager) UpdateConfig(caller string, patch params.Patch) error {
	if caller != m.cfg.Owner {
		return params.New(params.Unauthorized, "only owner may update config")
	}
	merged, err := m.cfg.Apply(patch)
	if err != nil {
		return err
	}
	*m.cfg = *merged
	return nil
}

// SyncExecutor adapts a synchronous action function into an ActionExecutor
// by invoking ProxyCallback inline, for embedders and tests that have no
// need for a genuinely async dispatch path.
type SyncExecutor struct {
	Manager *Manager
	Run     func(ctx context.Context, action tasks.Action) (bool, error)
}

// Submit runs Run synchronously and immediately feeds the outcome back
// through ProxyCallback.
func (s *SyncExecutor) Submit(ctx context.Context, replyID string, action tasks.Action) error {
	success, runErr := s.Run(ctx, action)
	if runErr != nil {
		logger.Warn("sync executor action failed", "err", runErr)
	}
	return s.Manager.ProxyCallback(ctx, replyID, success)
}
