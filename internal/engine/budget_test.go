package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetEnforcer_UnderLimit(t *testing.T) {
	b := NewBudgetEnforcer(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Check(int64(i)))
	}
	assert.Equal(t, 3, b.Current())
}

func TestBudgetEnforcer_Exceeded(t *testing.T) {
	b := NewBudgetEnforcer(2)
	require.NoError(t, b.Check(1))
	require.NoError(t, b.Check(2))

	err := b.Check(9)
	require.Error(t, err)
	assert.True(t, IsBudgetExceededError(err))

	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Events)
	assert.Equal(t, 2, be.Limit)
	assert.Equal(t, int64(9), be.Tick)
	assert.Contains(t, err.Error(), "event budget exceeded at tick 9")
}

func TestBudgetEnforcer_ZeroIsUnlimited(t *testing.T) {
	b := NewBudgetEnforcer(0)
	for i := 0; i < 10_000; i++ {
		require.NoError(t, b.Check(int64(i)))
	}
}

func TestBudgetEnforcer_Reset(t *testing.T) {
	b := NewBudgetEnforcer(1)
	require.NoError(t, b.Check(0))
	require.Error(t, b.Check(0))

	b.Reset()
	assert.Equal(t, 0, b.Current())
	assert.NoError(t, b.Check(0))
}

func TestIsBudgetExceededError_Wrapped(t *testing.T) {
	err := fmt.Errorf("run: %w", &BudgetExceededError{Events: 5, Limit: 4})
	assert.True(t, IsBudgetExceededError(err))
	assert.False(t, IsBudgetExceededError(fmt.Errorf("other")))
}
