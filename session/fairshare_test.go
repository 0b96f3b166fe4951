package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateResourcesEvenSplitWhenUnweighted(t *testing.T) {
	consumers := []*shareConsumer{
		{Priority: 1, Want: 100},
		{Priority: 1, Want: 100},
	}
	allocateResources(consumers, 100)
	require.Equal(t, 50, consumers[0].Satisfied)
	require.Equal(t, 50, consumers[1].Satisfied)
}

func TestAllocateResourcesRedistributesSaturatedLeftover(t *testing.T) {
	consumers := []*shareConsumer{
		{Priority: 1, Want: 10},  // saturates quickly, leaves leftover
		{Priority: 1, Want: 200},
	}
	allocateResources(consumers, 100)
	require.Equal(t, 10, consumers[0].Satisfied)
	require.Equal(t, 90, consumers[1].Satisfied)
}

func TestAllocateResourcesNeverExceedsWant(t *testing.T) {
	consumers := []*shareConsumer{
		{Priority: 5, Want: 3},
		{Priority: 1, Want: 3},
	}
	allocateResources(consumers, 1000)
	require.LessOrEqual(t, consumers[0].Satisfied, consumers[0].Want)
	require.LessOrEqual(t, consumers[1].Satisfied, consumers[1].Want)
	require.Equal(t, 3, consumers[0].Satisfied)
	require.Equal(t, 3, consumers[1].Satisfied)
}

func TestAllocateResourcesZeroTotalClearsSatisfied(t *testing.T) {
	consumers := []*shareConsumer{{Priority: 1, Want: 10, Satisfied: 5}}
	allocateResources(consumers, 0)
	require.Equal(t, 0, consumers[0].Satisfied)
}

func TestAllocateResourcesSkipsZeroWantConsumers(t *testing.T) {
	consumers := []*shareConsumer{
		{Priority: 1, Want: 0},
		{Priority: 1, Want: 50},
	}
	allocateResources(consumers, 100)
	require.Equal(t, 0, consumers[0].Satisfied)
	require.Equal(t, 50, consumers[1].Satisfied)
}
