// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package manager implements §4.4's execution driver: proxy_call /
// proxy_callback, the pending-reply continuation, the pause gate, and the
// wiring between tasks, balance, distributor and query.
package manager

import (
	"github.com/agentsched/core/balance"
	"github.com/agentsched/core/distributor"
	"github.com/agentsched/core/event"
	"github.com/agentsched/core/log"
	"github.com/agentsched/core/metrics"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/query"
	"github.com/agentsched/core/tasks"
)

var logger = log.NewModuleLogger(log.Manager)

var (
	proxyCallCounter   = metrics.NewRegisteredCounter("manager/proxy_call")
	executionsCounter  = metrics.NewRegisteredCounter("manager/executions")
	invalidatedCounter = metrics.NewRegisteredCounter("manager/invalidated")
)

// Manager ties the tasks store, balance ledger, agent registry and
// predicate dispatcher together behind the single synchronous entry
// points §6 describes.
type Manager struct {
	cfg    *params.Config
	paused bool

	store    *tasks.Store
	ledger   *balance.Ledger
	registry *distributor.Registry
	dispatch *query.Dispatcher
	executor ActionExecutor
	bus      *event.Bus

	replies map[string]*pendingExecution
}

// New wires every component. cfg is held by reference so UpdateConfig
// callers (outside this package) can swap it between operations.
func New(cfg *params.Config, store *tasks.Store, ledger *balance.Ledger, registry *distributor.Registry, dispatch *query.Dispatcher, executor ActionExecutor, bus *event.Bus) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		registry: registry,
		dispatch: dispatch,
		executor: executor,
		bus:      bus,
		replies:  make(map[string]*pendingExecution),
	}
}

// Paused reports the current pause state (§6 "paused" query).
func (m *Manager) Paused() bool { return m.paused }

// SetPaused implements the §6 "Pause control" two-role split: pause_admin
// may only pause; only owner may unpause.
func (m *Manager) SetPaused(caller string, pause bool) error {
	if pause {
		if caller != m.cfg.Owner && caller != m.cfg.PauseAdmin {
			return params.New(params.Unauthorized, "only owner or pause_admin may pause")
		}
	} else if caller != m.cfg.Owner {
		return params.New(params.Unauthorized, "only owner may unpause")
	}
	m.paused = pause
	logger.Info("pause flag updated", "caller", caller, "paused", pause)
	return nil
}

func (m *Manager) guardPaused() error {
	if m.paused {
		return params.New(params.Paused, "manager is paused")
	}
	return nil
}

func (m *Manager) publish(t event.Transition) {
	if m.bus != nil {
		m.bus.Post(t)
	}
}
