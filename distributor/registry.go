// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package distributor

import (
	"sort"

	set "gopkg.in/fatih/set.v0"
	"go.uber.org/multierr"

	"github.com/agentsched/core/log"
	"github.com/agentsched/core/metrics"
	"github.com/agentsched/core/params"
)

var logger = log.NewModuleLogger(log.Distributor)

var (
	registeredCounter  = metrics.NewRegisteredCounter("distributor/registered")
	unregisteredCounter = metrics.NewRegisteredCounter("distributor/unregistered")
	nominatedCounter   = metrics.NewRegisteredCounter("distributor/nominated")
	evictedCounter     = metrics.NewRegisteredCounter("distributor/evicted")
)

// Registry holds every registered agent, generalizing
// consensus/istanbul/validator.go's ValidatorSet (GetByAddress/List/
// AddValidator/RemoveValidator) from validators to agents, and
// work/worker.go's `agents map[Agent]struct{}` membership bookkeeping.
type Registry struct {
	agents map[string]*Agent

	active  *set.Set // IDs with Status == Active
	pending *set.Set // IDs with Status == Pending

	pendingOrder []string // registration order, index == Agent.PendingIndex

	checkpointBlock      uint64
	startBlock           *uint64 // nil until a task arrives after a checkpoint reset; time contributes 0 until then
	tasksSinceCheckpoint uint64
}

// New builds an empty Registry. checkpointBlock is stored as the initial
// checkpoint height and overwritten on every promotion; the nomination
// time gate does not read it, since it is anchored by start_block, which
// the first NotifyTaskCreated after a reset sets (§4.3).
func New(checkpointBlock uint64) *Registry {
	return &Registry{
		agents:          make(map[string]*Agent),
		active:          set.New(),
		pending:         set.New(),
		pendingOrder:    nil,
		checkpointBlock: checkpointBlock,
	}
}

// GetByAddress mirrors ValidatorSet.GetByAddress.
func (r *Registry) GetByAddress(id string) (*Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// List mirrors ValidatorSet.List, returning every registered agent.
func (r *Registry) List() []*Agent {
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterAgent implements §6 register_agent: a new agent enters Pending,
// queued behind every agent already waiting — unless no active agents
// exist yet, in which case §4.3 requires it become Active immediately so
// the system is never left with tasks but no one to run them.
func (r *Registry) RegisterAgent(id, payableAccount string) (*Agent, error) {
	if _, exists := r.agents[id]; exists {
		return nil, params.New(params.AgentAlreadyRegistered, "agent already registered")
	}
	a := &Agent{
		ID:             id,
		PayableAccount: payableAccount,
		Status:         Pending,
		PendingIndex:   len(r.pendingOrder),
	}
	r.agents[id] = a
	if r.active.Size() == 0 {
		a.Status = Active
		a.PendingIndex = 0
		r.active.Add(id)
		nominatedCounter.Inc(1)
	} else {
		r.pending.Add(id)
		r.pendingOrder = append(r.pendingOrder, id)
	}
	registeredCounter.Inc(1)
	logger.Info("agent registered", "id", id, "status", a.Status, "pending_index", a.PendingIndex)
	return a, nil
}

// UpdatePayableAccount implements §6 update_agent.
func (r *Registry) UpdatePayableAccount(id, payableAccount string) error {
	a, ok := r.agents[id]
	if !ok {
		return params.New(params.AgentNotRegistered, "no such agent")
	}
	a.PayableAccount = payableAccount
	return nil
}

// Unregister implements §6 unregister_agent, running every hook (e.g. the
// balance ledger's reward trade-back) before dropping the agent from both
// indices regardless of hook outcome — a failed payout must not leave a
// zombie registration. Hook errors are aggregated, never silently dropped.
func (r *Registry) Unregister(id string, hooks ...func(*Agent) error) error {
	a, ok := r.agents[id]
	if !ok {
		return params.New(params.AgentNotRegistered, "no such agent")
	}

	var err error
	for _, hook := range hooks {
		if hookErr := hook(a); hookErr != nil {
			err = multierr.Append(err, hookErr)
		}
	}

	delete(r.agents, id)
	r.active.Remove(id)
	r.pending.Remove(id)
	r.removeFromPendingOrder(id)
	unregisteredCounter.Inc(1)
	logger.Info("agent unregistered", "id", id, "hook_errors", err)
	return err
}

func (r *Registry) removeFromPendingOrder(id string) {
	for i, pid := range r.pendingOrder {
		if pid == id {
			r.pendingOrder = append(r.pendingOrder[:i], r.pendingOrder[i+1:]...)
			break
		}
	}
	for i, pid := range r.pendingOrder {
		r.agents[pid].PendingIndex = i
	}
}

// NotifyTaskCreated implements the §4.3 nomination checkpoint's
// task-arrival counter; called once per create_task. The first task to
// arrive after a checkpoint reset anchors start_block to currentHeight —
// idle time before any task arrives never counts toward the nomination
// window.
func (r *Registry) NotifyTaskCreated(currentHeight uint64) {
	if r.startBlock == nil {
		r.startBlock = &currentHeight
	}
	r.tasksSinceCheckpoint++
}

// TryNominateAgent implements §4.3's check_in_agent. The number of pending
// slots opened this checkpoint is
// min(agents_by_tasks, agents_by_time), where
//
//	agents_by_tasks = floor(tasks_since_checkpoint / min_tasks_per_agent)
//	agents_by_time  = floor((current_height - start_block) / nomination_block_duration)
//
// start_block is nil (agents_by_time contributes 0) until a task actually
// arrives after a checkpoint reset (NotifyTaskCreated). An agent at
// pending position p may be promoted only once p < slots_opened.
// Promotion resets the checkpoint for every other pending agent (§9,
// scenario S5). If no active agents remain, the agent at pending
// position 0 is promoted immediately, bypassing both gates, so the
// system always has a path back from zero active agents.
func (r *Registry) TryNominateAgent(cfg *params.Config, id string, currentHeight uint64) error {
	a, ok := r.agents[id]
	if !ok {
		return params.New(params.AgentNotRegistered, "no such agent")
	}
	if a.Status != Pending {
		return params.New(params.AgentNotInPending, "agent is not pending")
	}

	if r.active.Size() == 0 && a.PendingIndex == 0 {
		r.promote(id, currentHeight)
		return nil
	}

	if cfg.MinTasksPerAgent == 0 {
		return params.New(params.TryLaterForNomination, "no nomination slots configured")
	}
	agentsByTasks := r.tasksSinceCheckpoint / cfg.MinTasksPerAgent

	var agentsByTime uint64
	if r.startBlock != nil && cfg.NominationBlockDuration > 0 && currentHeight > *r.startBlock {
		agentsByTime = (currentHeight - *r.startBlock) / cfg.NominationBlockDuration
	}

	slotsOpened := agentsByTasks
	if agentsByTime < slotsOpened {
		slotsOpened = agentsByTime
	}
	if slotsOpened == 0 || uint64(a.PendingIndex) >= slotsOpened {
		return params.New(params.TryLaterForNomination, "no nomination slot available for this position")
	}

	r.promote(id, currentHeight)
	return nil
}

// promote activates the agent and resets the nomination checkpoint.
func (r *Registry) promote(id string, currentHeight uint64) {
	a := r.agents[id]
	a.Status = Active
	r.pending.Remove(id)
	r.active.Add(id)
	r.removeFromPendingOrder(id)

	r.checkpointBlock = currentHeight
	r.startBlock = nil
	r.tasksSinceCheckpoint = 0

	nominatedCounter.Inc(1)
	logger.Info("agent nominated", "id", id, "height", currentHeight)
}

// NotifyTaskCompleted implements the §4.3 fairness bookkeeping update
// after a successful proxy_call execution.
func (r *Registry) NotifyTaskCompleted(id string, blockKind bool, slotID uint64) error {
	a, ok := r.agents[id]
	if !ok {
		return params.New(params.AgentNotRegistered, "no such agent")
	}
	a.LastExecutedSlot = slotID
	if blockKind {
		a.CompletedBlockTasks++
	} else {
		a.CompletedCronTasks++
	}
	return nil
}

// GetAvailableTasks implements §4.3 get_available_tasks: active agents are
// sorted ascending by the composite fairness key (last_executed_slot,
// completed_kind_tasks) — a lexicographic tuple ordering, never the
// source's lossy decimal string-concatenation (§9 resolved open
// question), with ties broken by agent id — and ready slots are handed out
// starting from the front of that order, one extra to each of the first
// `ready % n` agents.
func (r *Registry) GetAvailableTasks(id string, blockReady, cronReady int) (blockQuota, cronQuota int, err error) {
	a, ok := r.agents[id]
	if !ok {
		return 0, 0, params.New(params.AgentNotRegistered, "no such agent")
	}
	if a.Status != Active {
		return 0, 0, params.New(params.AgentNotActive, "agent is not active")
	}

	blockQuota = r.quotaFor(id, true, blockReady)
	cronQuota = r.quotaFor(id, false, cronReady)
	return blockQuota, cronQuota, nil
}

func (r *Registry) quotaFor(id string, blockKind bool, ready int) int {
	if ready <= 0 {
		return 0
	}
	actives := r.activeAgents()
	if len(actives) == 0 {
		return 0
	}
	sort.Slice(actives, func(i, j int) bool {
		ki, kj := actives[i].fairnessKey(blockKind), actives[j].fairnessKey(blockKind)
		if ki != kj {
			return ki.less(kj)
		}
		return actives[i].ID < actives[j].ID
	})

	n := len(actives)
	base := ready / n
	remainder := ready % n
	for i, a := range actives {
		if a.ID != id {
			continue
		}
		quota := base
		if i < remainder {
			quota++
		}
		return quota
	}
	return 0
}

func (r *Registry) activeAgents() []*Agent {
	out := make([]*Agent, 0, r.active.Size())
	r.active.Each(func(item interface{}) bool {
		id := item.(string)
		if a, ok := r.agents[id]; ok {
			out = append(out, a)
		}
		return true
	})
	return out
}

// Cleanup implements the eviction sweep: any active agent whose
// last_executed_slot trails currentSlot by more than
// agent_eviction_threshold is unregistered, running hooks the same way
// Unregister does, but never evicting below min_active_reserve remaining
// active agents.
func (r *Registry) Cleanup(cfg *params.Config, currentSlot uint64, hooks ...func(*Agent) error) ([]string, error) {
	actives := r.activeAgents()
	sort.Slice(actives, func(i, j int) bool { return actives[i].LastExecutedSlot < actives[j].LastExecutedSlot })

	var evicted []string
	var aggErr error
	for _, a := range actives {
		if len(actives)-len(evicted) <= cfg.MinActiveReserve {
			break
		}
		if currentSlot < a.LastExecutedSlot {
			continue
		}
		if currentSlot-a.LastExecutedSlot <= cfg.AgentEvictionThreshold {
			continue
		}
		if err := r.Unregister(a.ID, hooks...); err != nil {
			aggErr = multierr.Append(aggErr, err)
		}
		evicted = append(evicted, a.ID)
		evictedCounter.Inc(1)
	}
	return evicted, aggErr
}
