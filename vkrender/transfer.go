package vkrender

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

const transferPoolSize = 4

type transferSlot struct {
	cmd   *CommandBuffer
	fence vk.Fence
	inUse bool

	// gen increments on every acquire, so a Release from a holder whose
	// slot was reclaimed out from under it cannot free the new owner's slot.
	gen uint64
}

// TransferPool is a fixed ring of one-shot command buffers for blocking
// uploads. Every slot keeps a fence that is signaled whenever the slot is at
// rest; acquiring a slot waits on that fence, so exhaustion blocks instead of
// failing. Fence waits and resets are function fields so the ring's
// bookkeeping runs without a device in tests.
type TransferPool struct {
	device *Device
	queue  *Queue
	pool   *CommandPool
	log    *log.Logger

	slots []transferSlot
	next  int

	wait  func(slot int) error
	reset func(slot int) error
}

func newTransferPool(device *Device, pool *CommandPool, queue *Queue, logger *log.Logger) (*TransferPool, error) {
	cmds, err := pool.AllocateBuffers(transferPoolSize)
	if err != nil {
		return nil, fmt.Errorf("allocate transfer command buffers: %w", err)
	}

	t := &TransferPool{
		device: device,
		queue:  queue,
		pool:   pool,
		log:    logger,
		slots:  make([]transferSlot, transferPoolSize),
	}
	for i := range t.slots {
		fence, err := device.VKCreateFence(true)
		if err != nil {
			return nil, fmt.Errorf("create transfer fence %d: %w", i, err)
		}
		t.slots[i] = transferSlot{cmd: cmds[i], fence: fence}
	}

	t.wait = func(slot int) error {
		return device.VKWaitForFence(t.slots[slot].fence)
	}
	t.reset = func(slot int) error {
		return device.VKResetFence(t.slots[slot].fence)
	}

	return t, nil
}

// Acquire returns the index of a slot safe to record into, plus the
// generation token Release must present. A free slot's fence is already
// signaled, so the wait is immediate; when every slot is in use the next
// slot in round-robin order is waited on and reclaimed.
func (t *TransferPool) Acquire() (slot int, gen uint64, err error) {
	for i := range t.slots {
		if !t.slots[i].inUse {
			if err := t.wait(i); err != nil {
				return 0, 0, err
			}
			t.slots[i].inUse = true
			t.slots[i].gen++
			return i, t.slots[i].gen, nil
		}
	}

	i := t.next
	t.next = (t.next + 1) % len(t.slots)
	if t.log != nil {
		t.log.Printf("transfer pool exhausted, waiting on slot %d", i)
	}
	if err := t.wait(i); err != nil {
		return 0, 0, err
	}
	t.slots[i].inUse = true
	t.slots[i].gen++
	return i, t.slots[i].gen, nil
}

// Release marks a slot reusable. The slot's fence must be signaled, which
// Run guarantees by waiting before it releases. A stale generation token
// means the slot was reclaimed from the caller and now belongs to someone
// else, so the release is ignored.
func (t *TransferPool) Release(slot int, gen uint64) {
	if t.slots[slot].gen != gen {
		return
	}
	t.slots[slot].inUse = false
}

// Run records a one-shot command buffer through record, submits it, and
// blocks until the GPU has finished. Uploads in this backend are
// intentionally synchronous.
func (t *TransferPool) Run(record func(cb *CommandBuffer)) error {
	slot, gen, err := t.Acquire()
	if err != nil {
		return err
	}
	defer t.Release(slot, gen)

	cb := t.slots[slot].cmd
	if err := cb.BeginOneTime(); err != nil {
		return fmt.Errorf("begin transfer commands: %w", err)
	}
	record(cb)
	if err := cb.End(); err != nil {
		return fmt.Errorf("end transfer commands: %w", err)
	}

	if err := t.reset(slot); err != nil {
		return err
	}
	if err := t.queue.SubmitWithFence(t.slots[slot].fence, cb); err != nil {
		return fmt.Errorf("submit transfer commands: %w", err)
	}
	return t.wait(slot)
}

func (t *TransferPool) Destroy() {
	cmds := make([]*CommandBuffer, 0, len(t.slots))
	for i := range t.slots {
		t.device.VKDestroyFence(t.slots[i].fence)
		cmds = append(cmds, t.slots[i].cmd)
	}
	t.pool.FreeBuffers(cmds)
	t.slots = nil
}
