// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package manager

import (
	"context"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/agentsched/core/interval"
	"github.com/agentsched/core/params"
	"github.com/agentsched/core/tasks"
)

// ActionExecutor dispatches one action of a task (§9 Design Notes: a sum
// type of Transfer/Call, fully opaque beyond that). Submit must not block
// on the eventual outcome — the result arrives later via
// Manager.ProxyCallback keyed by replyID, matching §4.4 step 7's "each
// action is dispatched via a pending-reply record".
type ActionExecutor interface {
	Submit(ctx context.Context, replyID string, action tasks.Action) error
}

// pendingExecution is the §3 "ReplyQueue entry": enough task context for
// ProxyCallback to resume without re-deriving it.
type pendingExecution struct {
	TaskHash    string
	AgentID     string
	ActionIndex int
	Actions     []tasks.Action // post-transform actions for this run
	Amount      tasks.Amount
	Env         interval.Env
	BlockKind   bool
	SlotID      uint64
}

// newReplyID mints a correlation id via hashicorp/go-uuid, matching the
// teacher's own use of the library for broker client ids.
func newReplyID() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", params.Newf(params.UnknownReplyID, "failed to mint reply id: %v", err)
	}
	return id, nil
}
