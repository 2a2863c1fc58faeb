// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_Equal_UsesExactIntegerSemantics(t *testing.T) {
	// A value beyond float64's exact integer range must still compare
	// correctly when expressed as a decimal string.
	ok, err := Compare(OrderingEqual, "9007199254740993", "9007199254740993")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompare_Above(t *testing.T) {
	ok, err := Compare(OrderingAbove, 150, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Compare(OrderingAbove, 50, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompare_NotEqual_NonNumericFallsBackToStringCompare(t *testing.T) {
	ok, err := Compare(OrderingNotEqual, "pending", "active")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompare_RejectsNonNumericForOrdering(t *testing.T) {
	_, err := Compare(OrderingBelow, "not-a-number", 5)
	assert.Error(t, err)
}
