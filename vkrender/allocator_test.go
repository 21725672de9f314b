package vkrender

import (
	"errors"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

// testAllocator returns an Allocator whose device calls are stubbed out,
// recording the size of every raw allocation it performs.
func testAllocator(rawSizes *[]uint64, frees *int) *Allocator {
	return &Allocator{
		allocFn: func(size uint64, typeIndex uint32) (vk.DeviceMemory, error) {
			*rawSizes = append(*rawSizes, size)
			var m vk.DeviceMemory
			return m, nil
		},
		freeFn: func(memory vk.DeviceMemory) {
			*frees++
		},
	}
}

func TestAllocSmallSharesBlock(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	first, err := a.Alloc(1024, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Alloc(1024, 256, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(rawSizes) != 1 {
		t.Fatalf("expected one raw allocation, got %d", len(rawSizes))
	}
	if rawSizes[0] != defaultBlockSize {
		t.Errorf("block size = %d, want %d", rawSizes[0], defaultBlockSize)
	}
	if first.Dedicated() || second.Dedicated() {
		t.Error("small allocations should be pooled")
	}
	if first.Offset != 0 {
		t.Errorf("first offset = %d, want 0", first.Offset)
	}
	if second.Offset != 1024 {
		t.Errorf("second offset = %d, want 1024", second.Offset)
	}
}

func TestAllocRespectsAlignment(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	if _, err := a.Alloc(10, 1, 0); err != nil {
		t.Fatal(err)
	}
	aligned, err := a.Alloc(64, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	if aligned.Offset%256 != 0 {
		t.Errorf("offset %d not aligned to 256", aligned.Offset)
	}
}

func TestAllocLargeIsDedicated(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	alloc, err := a.Alloc(dedicatedAllocationThreshold, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !alloc.Dedicated() {
		t.Fatal("threshold-sized allocation should be dedicated")
	}
	if rawSizes[0] != dedicatedAllocationThreshold {
		t.Errorf("dedicated size = %d, want exact request", rawSizes[0])
	}

	a.Free(alloc)
	if frees != 1 {
		t.Errorf("dedicated free count = %d, want 1", frees)
	}
}

func TestAllocGrowsNewBlockWhenFull(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	big := uint64(dedicatedAllocationThreshold - 1)

	// Fill one default block so the next request cannot fit.
	for i := 0; i < 16; i++ {
		if _, err := a.Alloc(big, 256, 0); err != nil {
			t.Fatal(err)
		}
	}
	before := len(rawSizes)
	if _, err := a.Alloc(big, 256, 0); err != nil {
		t.Fatal(err)
	}
	if len(rawSizes) != before+1 {
		t.Fatalf("expected a new block allocation")
	}
	want := uint64(defaultBlockSize)
	if 2*big > want {
		want = 2 * big
	}
	if rawSizes[len(rawSizes)-1] != want {
		t.Errorf("new block size = %d, want %d", rawSizes[len(rawSizes)-1], want)
	}
}

func TestAllocSeparatesMemoryTypes(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	if _, err := a.Alloc(1024, 256, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(1024, 256, 3); err != nil {
		t.Fatal(err)
	}
	if len(rawSizes) != 2 {
		t.Fatalf("memory types must not share blocks, raw allocations = %d", len(rawSizes))
	}
}

func TestFreePooledRewindsWhenDrained(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	first, _ := a.Alloc(4096, 256, 0)
	second, _ := a.Alloc(4096, 256, 0)

	a.Free(first)
	if frees != 0 {
		t.Fatal("pooled free must not release device memory")
	}

	a.Free(second)

	// Block fully drained: the next allocation starts over at offset 0
	// without growing a new block.
	again, err := a.Alloc(4096, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again.Offset != 0 {
		t.Errorf("offset after rewind = %d, want 0", again.Offset)
	}
	if len(rawSizes) != 1 {
		t.Errorf("rewound block was not reused, raw allocations = %d", len(rawSizes))
	}
}

func TestAllocPoolFailureFallsBackToDedicated(t *testing.T) {
	var calls int
	a := &Allocator{
		allocFn: func(size uint64, typeIndex uint32) (vk.DeviceMemory, error) {
			calls++
			var m vk.DeviceMemory
			if size > dedicatedAllocationThreshold {
				return m, errors.New("out of device memory")
			}
			return m, nil
		},
		freeFn: func(memory vk.DeviceMemory) {},
	}

	alloc, err := a.Alloc(4096, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !alloc.Dedicated() {
		t.Error("fallback allocation should be dedicated")
	}
	if calls != 2 {
		t.Errorf("raw allocation attempts = %d, want block try then dedicated", calls)
	}
}

func TestDestroyFreesBlocks(t *testing.T) {
	var rawSizes []uint64
	var frees int
	a := testAllocator(&rawSizes, &frees)

	a.Alloc(1024, 256, 0)
	a.Alloc(1024, 256, 1)

	a.Destroy()
	if frees != 2 {
		t.Errorf("freed %d blocks, want 2", frees)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, align, want uint64 }{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{100, 0, 100},
		{5, 1, 5},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.align); got != c.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.v, c.align, got, c.want)
		}
	}
}
