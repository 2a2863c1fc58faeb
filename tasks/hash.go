// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package tasks

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/agentsched/core/interval"
)

// hashTruncateLen keeps the externally observable task hash a stable
// length regardless of chain id length (§6 "Task hash").
const hashTruncateLen = 40

// Hash computes the deterministic, chain-scoped task identifier (§4.2,
// §6): SHA-256 of (owner, interval, boundary, actions, queries,
// transforms), hex-encoded, prefixed "<chain_id>:", truncated to a stable
// length. A hash collision on create is treated by the store as a fatal
// rejection (§4.2).
func Hash(chainID, owner string, sched interval.Schedule, boundary interval.Boundary, actions []Action, queries []Query, transforms []Transform) string {
	h := sha256.New()
	fmt.Fprintf(h, "owner:%s|sched:%d:%d:%s|", owner, sched.Kind, sched.N, sched.Expr)
	writeOptUint(h, boundary.Start)
	writeOptUint(h, boundary.End)
	for _, a := range actions {
		writeAction(h, a)
	}
	for _, q := range queries {
		fmt.Fprintf(h, "q:%s:%t:", q.ModuleAddress, q.CheckResult)
		h.Write(q.Payload)
	}
	for _, t := range transforms {
		fmt.Fprintf(h, "t:%d:%d:", t.ActionIdx, t.QueryIdx)
		for _, seg := range t.ActionPath {
			fmt.Fprintf(h, "a:%q:%d:%t;", seg.Field, seg.Index, seg.IsIdx)
		}
		for _, seg := range t.QueryResponsePath {
			fmt.Fprintf(h, "r:%q:%d:%t;", seg.Field, seg.Index, seg.IsIdx)
		}
	}

	sum := hex.EncodeToString(h.Sum(nil))
	id := chainID + ":" + sum
	if len(id) > hashTruncateLen {
		id = id[:hashTruncateLen]
	}
	return id
}

func writeOptUint(h hash.Hash, v *uint64) {
	if v == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], *v)
	h.Write(buf[:])
}

func writeAction(h hash.Hash, a Action) {
	var buf [9]byte
	buf[0] = byte(a.Kind)
	binary.BigEndian.PutUint64(buf[1:], a.GasLimitOrZero())
	h.Write(buf[:])
	h.Write([]byte(a.To))
	h.Write([]byte(a.Target))
	h.Write(a.Payload)
	for _, c := range a.Coins {
		fmt.Fprintf(h, "%s:%d;", c.Denom, c.Amount)
	}
}

// GasLimitOrZero returns the declared per-action gas limit, or 0 if unset.
func (a Action) GasLimitOrZero() uint64 {
	if a.GasLimit == nil {
		return 0
	}
	return *a.GasLimit
}
