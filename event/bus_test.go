// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_DeliversToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(4)
	defer sub.Unsubscribe()

	b.Post(Transition{Action: "create_task", TaskHash: "hash1"})

	select {
	case got := <-sub.Chan():
		assert.Equal(t, "create_task", got.Action)
		assert.Equal(t, "hash1", got.TaskHash)
	default:
		t.Fatal("expected a buffered transition")
	}
}

func TestPost_NeverBlocksOnAFullSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	defer sub.Unsubscribe()

	b.Post(Transition{Action: "a"})
	b.Post(Transition{Action: "b"}) // buffer is full; must be dropped, not block

	got := <-sub.Chan()
	assert.Equal(t, "a", got.Action)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	sub.Unsubscribe()

	b.Post(Transition{Action: "a"})

	_, ok := <-sub.Chan()
	require.False(t, ok, "channel must be closed after unsubscribe")
}
