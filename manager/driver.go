// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package manager

import (
	"context"

	"github.com/agentsched/core/event"
	"github.com/agentsched/core/interval"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/query"
	"github.com/agentsched/core/tasks"
)

// ProxyCall implements §4.4's synchronous protocol. When taskHash is nil
// it pulls whatever current_task offers under the caller's quota;
// otherwise it evaluates the named evented task's predicates directly.
// executed reports whether an action was actually submitted this call —
// false with a nil error covers every legitimate no-op (§4.4: no ready
// task, predicate false, exhausted quota).
func (m *Manager) ProxyCall(ctx context.Context, agentID string, taskHash *string, env interval.Env) (executed bool, err error) {
	if err := m.guardPaused(); err != nil {
		return false, err
	}
	proxyCallCounter.Inc(1)

	if taskHash != nil {
		return m.proxyCallEvented(ctx, agentID, *taskHash, env)
	}
	return m.proxyCallScheduled(ctx, agentID, env)
}

func (m *Manager) proxyCallEvented(ctx context.Context, agentID, hash string, env interval.Env) (bool, error) {
	task, ok := m.store.Task(hash)
	if !ok {
		return false, params.New(params.TaskNotFound, "no such task")
	}
	if !task.Evented {
		return false, params.New(params.TaskNotReady, "task is not evented; call without a task_hash")
	}

	ready, responses, evalErr := m.dispatch.Evaluate(ctx, task)
	if evalErr != nil {
		m.invalidateTask(task, agentID)
		return false, nil
	}
	if !ready {
		return false, nil
	}

	actions, err := query.ApplyTransforms(task.Actions, task.Transforms, responses)
	if err != nil {
		m.invalidateTask(task, agentID)
		return false, nil
	}

	return m.dispatchTask(ctx, task, actions, agentID, interval.BlockSlot, env.Height, env)
}

func (m *Manager) proxyCallScheduled(ctx context.Context, agentID string, env interval.Env) (bool, error) {
	task, kind, ok := m.store.CurrentTask(env)
	if !ok {
		return false, nil
	}

	blockReady, cronReady := m.store.CurrentBucketCounts(env)
	blockQuota, cronQuota, err := m.registry.GetAvailableTasks(agentID, blockReady, cronReady)
	if err != nil {
		return false, err
	}
	quota := blockQuota
	if kind == interval.TimeSlot {
		quota = cronQuota
	}
	if quota <= 0 {
		return false, nil
	}

	return m.dispatchTask(ctx, task, task.Actions, agentID, kind, env.Height, env)
}

// dispatchTask implements §4.4 steps 5-7 once a ready task has been
// selected: balance check, submit the first action via a pending-reply
// record, publish the transition.
func (m *Manager) dispatchTask(ctx context.Context, task *tasks.Task, actions []tasks.Action, agentID string, kind interval.SlotKind, slotID uint64, env interval.Env) (bool, error) {
	if !m.ledger.CanAffordOneMore(task.Hash, task.AmountForOneTask) {
		m.removeAndRefund(task, "remove")
		return false, nil
	}
	if len(actions) == 0 {
		return false, nil
	}

	replyID, err := newReplyID()
	if err != nil {
		return false, err
	}
	m.replies[replyID] = &pendingExecution{
		TaskHash:    task.Hash,
		AgentID:     agentID,
		ActionIndex: 0,
		Actions:     actions,
		Amount:      task.AmountForOneTask,
		Env:         env,
		BlockKind:   kind == interval.BlockSlot,
		SlotID:      slotID,
	}

	if err := m.executor.Submit(ctx, replyID, actions[0]); err != nil {
		delete(m.replies, replyID)
		return false, err
	}

	m.publish(event.Transition{
		Action:     "proxy_call",
		TaskHash:   task.Hash,
		AgentID:    agentID,
		SlotID:     slotID,
		SlotKind:   kind.String(),
		TaskStatus: "continue",
	})
	return true, nil
}

// ProxyCallback implements §4.4 step 8: on success, advance to the next
// action or, once all are done, debit and reschedule; on failure, honor
// stop_on_fail.
func (m *Manager) ProxyCallback(ctx context.Context, replyID string, success bool) error {
	pending, ok := m.replies[replyID]
	if !ok {
		return params.New(params.UnknownReplyID, "no pending execution for this reply id")
	}
	delete(m.replies, replyID)

	task, ok := m.store.Task(pending.TaskHash)
	if !ok {
		return params.New(params.TaskNotFound, "task vanished while awaiting callback")
	}

	if success {
		return m.onActionSuccess(ctx, task, pending)
	}
	return m.onActionFailure(task, pending)
}

func (m *Manager) onActionSuccess(ctx context.Context, task *tasks.Task, pending *pendingExecution) error {
	next := pending.ActionIndex + 1
	if next < len(pending.Actions) {
		replyID, err := newReplyID()
		if err != nil {
			return err
		}
		m.replies[replyID] = &pendingExecution{
			TaskHash:    pending.TaskHash,
			AgentID:     pending.AgentID,
			ActionIndex: next,
			Actions:     pending.Actions,
			Amount:      pending.Amount,
			Env:         pending.Env,
			BlockKind:   pending.BlockKind,
			SlotID:      pending.SlotID,
		}
		return m.executor.Submit(ctx, replyID, pending.Actions[next])
	}

	// All actions completed: debit, credit, notify, reschedule.
	if err := m.ledger.Debit(task.Hash, pending.AgentID, pending.Amount, m.cfg.AgentFeeBps, m.cfg.TreasuryFeeBps); err != nil {
		return err
	}
	if err := m.registry.NotifyTaskCompleted(pending.AgentID, pending.BlockKind, pending.SlotID); err != nil {
		logger.Warn("notify_task_completed failed", "agent", pending.AgentID, "err", err)
	}
	executionsCounter.Inc(1)

	removed, _, err := m.store.Reschedule(task.Hash, pending.Env, m.cfg.SlotGranularityDuration())
	if err != nil {
		return err
	}
	status := "continue"
	if removed {
		status = "remove"
	}
	m.publish(event.Transition{
		Action:          "proxy_callback",
		TaskHash:        task.Hash,
		AgentID:         pending.AgentID,
		SlotID:          pending.SlotID,
		SlotKind:        pending.BlockKindString(),
		TaskStatus:      status,
		Rewards:         m.ledger.AgentRewards(pending.AgentID),
		TaskCw20Balance: pending.Amount.SecondaryAmount,
	})
	return nil
}

func (m *Manager) onActionFailure(task *tasks.Task, pending *pendingExecution) error {
	if task.StopOnFail {
		m.removeAndRefund(task, "invalid")
		return nil
	}

	// Debit gas only for the actions that ran, pro-rated.
	ran := pending.ActionIndex + 1
	partial := pending.Amount
	if len(pending.Actions) > 0 {
		partial.Native = pending.Amount.Native * uint64(ran) / uint64(len(pending.Actions))
	}
	if err := m.ledger.Debit(task.Hash, pending.AgentID, partial, m.cfg.AgentFeeBps, m.cfg.TreasuryFeeBps); err != nil {
		logger.Warn("partial debit on action failure failed", "hash", task.Hash, "err", err)
	}
	if err := m.registry.NotifyTaskCompleted(pending.AgentID, pending.BlockKind, pending.SlotID); err != nil {
		logger.Warn("notify_task_completed failed", "agent", pending.AgentID, "err", err)
	}

	removed, _, err := m.store.Reschedule(task.Hash, pending.Env, m.cfg.SlotGranularityDuration())
	if err != nil {
		return err
	}
	status := "continue"
	if removed {
		status = "remove"
	}
	m.publish(event.Transition{
		Action:     "proxy_callback",
		TaskHash:   task.Hash,
		AgentID:    pending.AgentID,
		SlotID:     pending.SlotID,
		SlotKind:   pending.BlockKindString(),
		TaskStatus: status,
	})
	return nil
}

func (p *pendingExecution) BlockKindString() string {
	if p.BlockKind {
		return "block"
	}
	return "time"
}

func (m *Manager) invalidateTask(task *tasks.Task, agentID string) {
	m.removeAndRefund(task, "invalid")
	logger.Warn("predicate evaluation failed, task invalidated", "hash", task.Hash, "agent", agentID)
}

func (m *Manager) removeAndRefund(task *tasks.Task, status string) {
	if _, err := m.store.RemoveTask(task.Hash, task.Owner); err != nil {
		logger.Warn("remove_task during invalidation failed", "hash", task.Hash, "err", err)
	}
	if _, err := m.ledger.RefundToOwner(task.Hash); err != nil {
		logger.Warn("refund during invalidation failed", "hash", task.Hash, "err", err)
	}
	invalidatedCounter.Inc(1)
	m.publish(event.Transition{Action: "invalidate", TaskHash: task.Hash, TaskStatus: status})
}
