// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package query implements §4.6's predicate dispatch and transform
// substitution: a uniform interface to out-of-scope predicate modules, a
// result cache (in-process entries have no expiry and leave only by LRU
// eviction; a TTL applies only to the optional Redis mirror), and the
// generic JSON-path walker transforms
// use to copy a query response value into a downstream action.
package query

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/agentsched/core/log"
	"github.com/agentsched/core/query/predicatepb"
)

var logger = log.NewModuleLogger(log.Query)

// Result is one module's answer, detached from the wire type so callers
// never import predicatepb directly.
type Result struct {
	Ready bool
	Data  []byte
}

// Client is the uniform interface Dispatcher drives; GRPCClient is the
// production implementation, dialing each module_address lazily.
type Client interface {
	Evaluate(ctx context.Context, moduleAddress string, payload []byte, checkResult bool) (Result, error)
}

// GRPCClient dials predicate modules over gRPC (§4.6 "invokes each module
// in order"), caching one connection per module address for the life of
// the process.
type GRPCClient struct {
	dialOpts []grpc.DialOption
	timeout  time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCClient builds a client dialing with opts (e.g. grpc.WithInsecure()
// for modules on a private mesh) and a per-call timeout.
func NewGRPCClient(timeout time.Duration, opts ...grpc.DialOption) *GRPCClient {
	return &GRPCClient{
		dialOpts: opts,
		timeout:  timeout,
		conns:    make(map[string]*grpc.ClientConn),
	}
}

func (c *GRPCClient) connFor(moduleAddress string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[moduleAddress]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(moduleAddress, c.dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conns[moduleAddress] = conn
	return conn, nil
}

// Evaluate implements Client.
func (c *GRPCClient) Evaluate(ctx context.Context, moduleAddress string, payload []byte, checkResult bool) (Result, error) {
	conn, err := c.connFor(moduleAddress)
	if err != nil {
		return Result{}, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	client := predicatepb.NewPredicateClient(conn)
	resp, err := client.Evaluate(ctx, &predicatepb.QueryRequest{
		ModuleAddress: moduleAddress,
		Payload:       payload,
		CheckResult:   checkResult,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Ready: resp.Result, Data: resp.Data}, nil
}

// Close tears down every cached connection.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, addr)
	}
	return firstErr
}
