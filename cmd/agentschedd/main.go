// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Command agentschedd wires the scheduler core's components together. It
// carries no RPC or CLI surface of its own (out of scope); it exists so the
// packages under this module link into a single runnable binary.
package main

import (
	"context"
	"flag"
	"io/ioutil"
	"os"
	"time"

	"github.com/agentsched/core/balance"
	"github.com/agentsched/core/distributor"
	"github.com/agentsched/core/event"
	"github.com/agentsched/core/log"
	"github.com/agentsched/core/manager"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/query"
	"github.com/agentsched/core/tasks"
)

var logger = log.NewModuleLogger(log.Manager)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults built in when empty)")
	chainID := flag.String("chain-id", "agentsched-local", "chain id tag for the task store")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Crit("failed to load config", "err", err)
		os.Exit(1)
	}

	store := tasks.New(*chainID)
	ledger := balance.NewLedger()
	registry := distributor.New(0)
	bus := event.New()
	dispatch, err := query.NewDispatcher(query.NewGRPCClient(5*time.Second), query.CacheOptions{Size: 1024})
	if err != nil {
		logger.Crit("failed to build predicate dispatcher", "err", err)
		os.Exit(1)
	}

	mgr := manager.New(cfg, store, ledger, registry, dispatch, noopExecutor{}, bus)

	logger.Info("agentschedd wired up", "owner", cfg.Owner, "native_denom", cfg.NativeDenom)
	_ = mgr
}

func loadConfig(path string) (*params.Config, error) {
	if path == "" {
		return params.Default("owner-unset"), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := params.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// noopExecutor satisfies manager.ActionExecutor for wiring purposes only;
// a real deployment supplies one bound to its own transfer/call bus.
type noopExecutor struct{}

func (noopExecutor) Submit(ctx context.Context, replyID string, action tasks.Action) error {
	return nil
}
