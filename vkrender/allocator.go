package vkrender

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

const (
	// Requests at or above this size bypass the pools and get their own
	// dedicated vk.DeviceMemory.
	dedicatedAllocationThreshold = 16 * 1024 * 1024

	defaultBlockSize = 256 * 1024 * 1024
)

// memoryBlock is one large device allocation that small requests bump-allocate
// from. live counts outstanding sub-allocations; when it drops to zero the
// bump offset rewinds and the block is reused from the start.
type memoryBlock struct {
	memory    vk.DeviceMemory
	typeIndex uint32
	size      uint64
	offset    uint64
	live      int
}

// Allocation is a span of device memory handed out by the Allocator. block is
// nil for dedicated allocations, which own their memory outright.
type Allocation struct {
	Memory vk.DeviceMemory
	Offset uint64
	Size   uint64
	block  *memoryBlock
}

// Dedicated reports whether this allocation owns its memory rather than
// sharing a pool block.
func (a *Allocation) Dedicated() bool {
	return a.block == nil
}

// Allocator pools small GPU allocations per memory type. The raw allocate and
// free operations are function fields so the pooling policy is exercisable
// without a device.
type Allocator struct {
	log     *log.Logger
	blocks  []*memoryBlock
	allocFn func(size uint64, typeIndex uint32) (vk.DeviceMemory, error)
	freeFn  func(memory vk.DeviceMemory)
}

func newAllocator(device *Device, logger *log.Logger) *Allocator {
	return &Allocator{
		log: logger,
		allocFn: func(size uint64, typeIndex uint32) (vk.DeviceMemory, error) {
			allocateInfo := vk.MemoryAllocateInfo{
				SType:           vk.StructureTypeMemoryAllocateInfo,
				AllocationSize:  vk.DeviceSize(size),
				MemoryTypeIndex: typeIndex,
			}
			var memory vk.DeviceMemory
			err := vk.Error(vk.AllocateMemory(device.VKDevice, &allocateInfo, nil, &memory))
			if err != nil {
				return memory, fmt.Errorf("allocate %d bytes of memory type %d: %w", size, typeIndex, err)
			}
			return memory, nil
		},
		freeFn: func(memory vk.DeviceMemory) {
			vk.FreeMemory(device.VKDevice, memory, nil)
		},
	}
}

// Alloc returns a span of at least size bytes aligned to alignment from the
// given memory type. Small requests share pool blocks; large requests, and
// small requests whose pool block cannot be created, get dedicated memory.
func (a *Allocator) Alloc(size, alignment uint64, typeIndex uint32) (*Allocation, error) {
	if size >= dedicatedAllocationThreshold {
		return a.allocDedicated(size, typeIndex)
	}

	for _, block := range a.blocks {
		if block.typeIndex != typeIndex {
			continue
		}
		offset := alignUp(block.offset, alignment)
		if offset+size <= block.size {
			block.offset = offset + size
			block.live++
			return &Allocation{Memory: block.memory, Offset: offset, Size: size, block: block}, nil
		}
	}

	blockSize := uint64(defaultBlockSize)
	if 2*size > blockSize {
		blockSize = 2 * size
	}

	memory, err := a.allocFn(blockSize, typeIndex)
	if err != nil {
		// Pool growth failed; one last try sized exactly to the request.
		return a.allocDedicated(size, typeIndex)
	}

	if a.log != nil {
		a.log.Printf("allocator: new %d MiB block for memory type %d", blockSize>>20, typeIndex)
	}

	block := &memoryBlock{memory: memory, typeIndex: typeIndex, size: blockSize}
	a.blocks = append(a.blocks, block)

	block.offset = size
	block.live = 1
	return &Allocation{Memory: block.memory, Offset: 0, Size: size, block: block}, nil
}

func (a *Allocator) allocDedicated(size uint64, typeIndex uint32) (*Allocation, error) {
	memory, err := a.allocFn(size, typeIndex)
	if err != nil {
		return nil, err
	}
	return &Allocation{Memory: memory, Offset: 0, Size: size}, nil
}

// Free releases an allocation. Dedicated memory is returned to the device
// immediately. Pooled spans only decrement their block's live count; the
// block rewinds once every span in it has been freed.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil {
		return
	}
	if alloc.block == nil {
		a.freeFn(alloc.Memory)
		return
	}
	alloc.block.live--
	if alloc.block.live <= 0 {
		alloc.block.live = 0
		alloc.block.offset = 0
	}
}

// Destroy frees every pool block. Outstanding allocations must already be
// retired; callers wait for device idle first.
func (a *Allocator) Destroy() {
	for _, block := range a.blocks {
		a.freeFn(block.memory)
	}
	a.blocks = nil
}
