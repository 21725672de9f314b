package vkrender

// resourceKind identifies the native type behind a deferred deletion record.
type resourceKind int

const (
	kindSampler resourceKind = iota
	kindImageView
	kindImage
	kindBuffer
	kindMemory
	kindAllocation
	kindDescriptorSet
)

func (k resourceKind) String() string {
	switch k {
	case kindSampler:
		return "sampler"
	case kindImageView:
		return "image-view"
	case kindImage:
		return "image"
	case kindBuffer:
		return "buffer"
	case kindMemory:
		return "memory"
	case kindAllocation:
		return "allocation"
	case kindDescriptorSet:
		return "descriptor-set"
	}
	return "unknown"
}

type deferredDeletion struct {
	kind   resourceKind
	handle interface{}
	frame  uint64
}

// deletionQueue delays destruction of GPU handles that may still be
// referenced by in-flight command buffers. A handle enqueued at frame T is
// destroyed on the first sweep at or after frame T+depth; by then every
// frame slot that could have recorded the handle has had its fence waited.
type deletionQueue struct {
	depth   uint64
	destroy func(kind resourceKind, handle interface{})
	pending []deferredDeletion
}

func newDeletionQueue(depth int, destroy func(resourceKind, interface{})) *deletionQueue {
	return &deletionQueue{
		depth:   uint64(depth),
		destroy: destroy,
	}
}

func (q *deletionQueue) enqueue(kind resourceKind, handle interface{}, frame uint64) {
	q.pending = append(q.pending, deferredDeletion{kind: kind, handle: handle, frame: frame})
}

// collect destroys every record at least depth frames old. The frame counter
// is monotonic, so age is a plain subtraction.
func (q *deletionQueue) collect(frame uint64) {
	kept := q.pending[:0]
	for _, rec := range q.pending {
		if frame-rec.frame >= q.depth {
			q.destroy(rec.kind, rec.handle)
		} else {
			kept = append(kept, rec)
		}
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = deferredDeletion{}
	}
	q.pending = kept
}

// flush destroys everything regardless of age. Only valid once the device
// is idle, during shutdown or swapchain teardown.
func (q *deletionQueue) flush() {
	for _, rec := range q.pending {
		q.destroy(rec.kind, rec.handle)
	}
	q.pending = q.pending[:0]
}

func (q *deletionQueue) len() int {
	return len(q.pending)
}
