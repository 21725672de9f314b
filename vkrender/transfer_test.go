package vkrender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTransferPool builds a pool with stubbed fence operations, recording
// which slots were waited on.
func testTransferPool(waits *[]int) *TransferPool {
	t := &TransferPool{
		slots: make([]transferSlot, transferPoolSize),
	}
	t.wait = func(slot int) error {
		*waits = append(*waits, slot)
		return nil
	}
	t.reset = func(slot int) error { return nil }
	return t
}

func TestAcquireHandsOutAllSlots(t *testing.T) {
	var waits []int
	p := testTransferPool(&waits)

	seen := map[int]bool{}
	for i := 0; i < transferPoolSize; i++ {
		slot, _, err := p.Acquire()
		require.NoError(t, err)
		assert.False(t, seen[slot], "slot %d handed out twice", slot)
		seen[slot] = true
	}
	assert.Len(t, seen, transferPoolSize)
}

func TestAcquireExhaustedReclaimsRoundRobin(t *testing.T) {
	var waits []int
	p := testTransferPool(&waits)

	for i := 0; i < transferPoolSize; i++ {
		_, _, err := p.Acquire()
		require.NoError(t, err)
	}
	waits = waits[:0]

	// Pool exhausted: the next acquire must wait on slot 0, the one after
	// on slot 1.
	slot, _, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, []int{0}, waits)

	slot, _, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
	assert.Equal(t, []int{0, 1}, waits)
}

func TestReleaseMakesSlotReusable(t *testing.T) {
	var waits []int
	p := testTransferPool(&waits)

	gens := make([]uint64, transferPoolSize)
	for i := 0; i < transferPoolSize; i++ {
		slot, gen, err := p.Acquire()
		require.NoError(t, err)
		gens[slot] = gen
	}

	p.Release(2, gens[2])

	slot, _, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, slot, "released slot should be preferred over reclaiming")
}

func TestReleaseWithStaleGenerationIgnored(t *testing.T) {
	var waits []int
	p := testTransferPool(&waits)

	gens := make([]uint64, transferPoolSize)
	for i := 0; i < transferPoolSize; i++ {
		slot, gen, err := p.Acquire()
		require.NoError(t, err)
		gens[slot] = gen
	}

	// Exhausted pool: slot 0 is reclaimed from its previous holder.
	slot, newGen, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	// The previous holder's release arrives late; it must not free the
	// slot out from under the new owner.
	p.Release(0, gens[0])
	assert.True(t, p.slots[0].inUse)

	p.Release(0, newGen)
	assert.False(t, p.slots[0].inUse)
}

func TestAcquireWaitsBeforeHandingOut(t *testing.T) {
	var waits []int
	p := testTransferPool(&waits)

	slot, _, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, []int{slot}, waits, "a slot's fence must be waited before reuse")
}
