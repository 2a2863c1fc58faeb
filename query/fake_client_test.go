// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package query

import (
	"context"
	"encoding/json"
)

// fakeClient is an in-process stand-in for an out-of-scope predicate
// module: Evaluate decodes payload as {"account": name}, looks that
// account's balance up in balances and compares it against a fixed
// threshold the way scenario S3's `balance(lucy, denom) == 100` predicate
// would, using Compare for exact integer semantics. The response data is
// {"balance": N}.
type fakeClient struct {
	balances map[string]int64
	ordering Ordering
	rhs      int64
	callErr  error
	calls    int
}

type balanceQuery struct {
	Account string `json:"account"`
}

func (f *fakeClient) Evaluate(ctx context.Context, moduleAddress string, payload []byte, checkResult bool) (Result, error) {
	f.calls++
	if f.callErr != nil {
		return Result{}, f.callErr
	}
	var q balanceQuery
	if err := json.Unmarshal(payload, &q); err != nil {
		return Result{}, err
	}
	bal := f.balances[q.Account]
	ready, err := Compare(f.ordering, bal, f.rhs)
	if err != nil {
		return Result{}, err
	}
	data, _ := json.Marshal(map[string]int64{"balance": bal})
	return Result{Ready: ready || !checkResult, Data: data}, nil
}
