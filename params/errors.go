// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package params

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a closed set of semantic error kinds (§7); callers recover it
// from a wrapped error via errors.Cause and a type switch on *SchedError.
type Kind string

const (
	Unauthorized               Kind = "Unauthorized"
	Paused                     Kind = "Paused"
	InvalidInterval            Kind = "InvalidInterval"
	InvalidBoundary            Kind = "InvalidBoundary"
	InvalidGas                 Kind = "InvalidGas"
	InvalidQueries             Kind = "InvalidQueries"
	InvalidTransform           Kind = "InvalidTransform"
	TaskExists                 Kind = "TaskExists"
	TaskNotFound               Kind = "TaskNotFound"
	TaskEnded                  Kind = "TaskEnded"
	TaskNotReady               Kind = "TaskNotReady"
	NoTaskForAgent             Kind = "NoTaskForAgent"
	AgentNotRegistered         Kind = "AgentNotRegistered"
	AgentAlreadyRegistered     Kind = "AgentAlreadyRegistered"
	AgentNotActive             Kind = "AgentNotActive"
	AgentNotInPending          Kind = "AgentNotInPending"
	TryLaterForNomination      Kind = "TryLaterForNomination"
	NoRewardsForAgent          Kind = "NoRewardsForAgent"
	NoWithdrawAvailable        Kind = "NoWithdrawAvailable"
	EmptyBalance               Kind = "EmptyBalance"
	TooManyCoins               Kind = "TooManyCoins"
	NotEnoughNative            Kind = "NotEnoughNative"
	NotEnoughSecondary         Kind = "NotEnoughSecondary"
	RedundantFunds             Kind = "RedundantFunds"
	InvalidGasPrice            Kind = "InvalidGasPrice"
	NotSupportedSecondaryToken Kind = "NotSupportedSecondaryToken"
	UnknownReplyID             Kind = "UnknownReplyId"
)

// SchedError is the error value every entry point returns on a rejected
// operation; it aborts the entire transaction (§7 propagation policy).
type SchedError struct {
	kind Kind
	msg  string
}

func (e *SchedError) Error() string { return string(e.kind) + ": " + e.msg }

// Kind returns the semantic error kind.
func (e *SchedError) Kind() Kind { return e.kind }

// New constructs a SchedError, matching the teacher's errors.New idiom but
// carrying a Kind for programmatic dispatch.
func New(kind Kind, msg string) error {
	return errors.WithStack(&SchedError{kind: kind, msg: msg})
}

// Newf is New with fmt-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&SchedError{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// KindOf unwraps err down to its SchedError, if any, returning "" otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	se, ok := errors.Cause(err).(*SchedError)
	if !ok {
		return ""
	}
	return se.kind
}
