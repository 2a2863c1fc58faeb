// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestLRUConfig_RejectsNonPositiveSize(t *testing.T) {
	_, err := New(LRUConfig{Size: 0})
	assert.Error(t, err)
}

func TestLRUCache_AddGetRemove(t *testing.T) {
	c, err := New(LRUConfig{Size: 2})
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, c.Contains("b"))
	assert.Equal(t, 2, c.Len())

	c.Remove("a")
	assert.False(t, c.Contains("a"))
}

func TestLRUCache_EvictsOldestOnOverflow(t *testing.T) {
	c, err := New(LRUConfig{Size: 1})
	require.NoError(t, err)

	c.Add("a", 1)
	evicted := c.Add("b", 2)

	assert.True(t, evicted)
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

func TestARCCache_AddGetPurge(t *testing.T) {
	c, err := New(ARCConfig{Size: 4})
	require.NoError(t, err)

	c.Add("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
