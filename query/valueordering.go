// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package query

import (
	"fmt"
	"math/big"
)

// Ordering is a comparison operator over two JSON-decoded values, used by
// the in-process predicate stub (see fake_client_test.go) to evaluate a
// balance-style predicate the way an out-of-scope predicate module would.
// Numbers may arrive as json.Number-compatible float64 or as decimal
// strings (arbitrary precision, since on-chain amounts can exceed a
// float64's exact integer range).
type Ordering int

const (
	OrderingAbove Ordering = iota
	OrderingAboveEqual
	OrderingBelow
	OrderingBelowEqual
	OrderingEqual
	OrderingNotEqual
)

// Compare implements val_cmp: numeric orderings require both operands to
// parse as big integers; Equal/NotEqual fall back to a plain interface
// comparison so non-numeric values (strings, bools) are still usable.
func Compare(ord Ordering, lhs, rhs interface{}) (bool, error) {
	switch ord {
	case OrderingEqual:
		return equalValue(lhs, rhs), nil
	case OrderingNotEqual:
		return !equalValue(lhs, rhs), nil
	}

	l, ok := toBigInt(lhs)
	if !ok {
		return false, fmt.Errorf("value %v is not a number", lhs)
	}
	r, ok := toBigInt(rhs)
	if !ok {
		return false, fmt.Errorf("value %v is not a number", rhs)
	}
	cmp := l.Cmp(r)
	switch ord {
	case OrderingAbove:
		return cmp > 0, nil
	case OrderingAboveEqual:
		return cmp >= 0, nil
	case OrderingBelow:
		return cmp < 0, nil
	case OrderingBelowEqual:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown ordering %d", ord)
	}
}

func toBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case string:
		i, ok := new(big.Int).SetString(n, 10)
		return i, ok
	case float64:
		return big.NewInt(int64(n)), true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	default:
		return nil, false
	}
}

func equalValue(a, b interface{}) bool {
	if na, ok := toBigInt(a); ok {
		if nb, ok := toBigInt(b); ok {
			return na.Cmp(nb) == 0
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
