package vkrender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type destroyedRecord struct {
	kind   resourceKind
	handle interface{}
}

func collectDestroyed(dst *[]destroyedRecord) func(resourceKind, interface{}) {
	return func(k resourceKind, h interface{}) {
		*dst = append(*dst, destroyedRecord{kind: k, handle: h})
	}
}

func TestDeletionQueueHoldsForDepthFrames(t *testing.T) {
	var destroyed []destroyedRecord
	q := newDeletionQueue(2, collectDestroyed(&destroyed))

	q.enqueue(kindSampler, "sampler-a", 10)

	q.collect(10)
	assert.Empty(t, destroyed, "destroyed in the enqueue frame")
	q.collect(11)
	assert.Empty(t, destroyed, "destroyed one frame early")

	q.collect(12)
	require.Len(t, destroyed, 1)
	assert.Equal(t, "sampler-a", destroyed[0].handle)
	assert.Equal(t, kindSampler, destroyed[0].kind)
	assert.Equal(t, 0, q.len())
}

func TestDeletionQueueDestroysByTwiceDepth(t *testing.T) {
	var destroyed []destroyedRecord
	q := newDeletionQueue(2, collectDestroyed(&destroyed))

	q.enqueue(kindBuffer, "buf", 5)
	for frame := uint64(6); frame <= 9; frame++ {
		q.collect(frame)
	}
	require.Len(t, destroyed, 1, "record survived past tag+2*depth")
}

func TestDeletionQueueKeepsYoungerRecords(t *testing.T) {
	var destroyed []destroyedRecord
	q := newDeletionQueue(2, collectDestroyed(&destroyed))

	q.enqueue(kindImage, "old", 1)
	q.enqueue(kindImage, "new", 3)

	q.collect(3)
	require.Len(t, destroyed, 1)
	assert.Equal(t, "old", destroyed[0].handle)
	assert.Equal(t, 1, q.len())

	q.collect(5)
	require.Len(t, destroyed, 2)
	assert.Equal(t, "new", destroyed[1].handle)
}

func TestDeletionQueueSamplerReplacedTwiceSameFrame(t *testing.T) {
	var destroyed []destroyedRecord
	q := newDeletionQueue(2, collectDestroyed(&destroyed))

	// Two filter changes before any draw retire two intermediate samplers
	// in the same frame.
	q.enqueue(kindSampler, "first", 7)
	q.enqueue(kindSampler, "second", 7)

	q.collect(8)
	assert.Empty(t, destroyed)

	q.collect(9)
	require.Len(t, destroyed, 2)
	assert.Equal(t, "first", destroyed[0].handle)
	assert.Equal(t, "second", destroyed[1].handle)

	q.collect(10)
	assert.Len(t, destroyed, 2, "a record was destroyed twice")
}

func TestDeletionQueueFlush(t *testing.T) {
	var destroyed []destroyedRecord
	q := newDeletionQueue(2, collectDestroyed(&destroyed))

	q.enqueue(kindMemory, "m1", 100)
	q.enqueue(kindImageView, "v1", 100)

	q.flush()
	assert.Len(t, destroyed, 2)
	assert.Equal(t, 0, q.len())
}
