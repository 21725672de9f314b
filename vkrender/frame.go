package vkrender

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// maxFramesInFlight bounds how many frames the CPU may record ahead of the
// GPU. The deferred deletion queue's hold depth matches it.
const maxFramesInFlight = 2

// framePacer owns the frame-slot and swapchain-image bookkeeping of the
// per-frame protocol: which slot is current, which slot last claimed each
// image, and the monotonic frame counter that deferred deletions are tagged
// with. The actual fence operations are injected so the pacing rules are
// testable on their own.
type framePacer struct {
	slots      int
	current    int
	count      uint64
	imageOwner []int

	// submitted marks slots whose fence has a submission pending against it.
	// A reset fence with no submission would be waited on forever, so waits
	// are skipped for unsubmitted slots.
	submitted []bool

	waitSlot  func(slot int) error
	resetSlot func(slot int) error
}

func newFramePacer(slots, images int, wait, reset func(int) error) *framePacer {
	p := &framePacer{
		slots:     slots,
		submitted: make([]bool, slots),
		waitSlot:  wait,
		resetSlot: reset,
	}
	// Slot fences are created signaled, so the first wait per slot is safe.
	for i := range p.submitted {
		p.submitted[i] = true
	}
	p.resetImages(images)
	return p
}

// waitCurrent blocks until the current frame slot's previous submission has
// retired. Called before acquiring a swapchain image, which is what bounds
// the number of frames in flight.
func (p *framePacer) waitCurrent() error {
	if !p.submitted[p.current] {
		return nil
	}
	return p.waitSlot(p.current)
}

// claimImage marks the acquired image as owned by the current frame slot.
// If another slot's submission still targets the image, that slot's fence is
// waited first so two frames never write the same image concurrently. The
// current slot's fence is reset here, immediately before reuse, never
// speculatively; until markSubmitted the slot counts as unsubmitted.
func (p *framePacer) claimImage(image int) error {
	if owner := p.imageOwner[image]; owner >= 0 && p.submitted[owner] {
		if err := p.waitSlot(owner); err != nil {
			return err
		}
	}
	p.imageOwner[image] = p.current
	if err := p.resetSlot(p.current); err != nil {
		return err
	}
	p.submitted[p.current] = false
	return nil
}

// markSubmitted records that the current slot's fence has work pending and
// must be waited before the slot is reused. Called after a successful queue
// submission; a failed submission leaves the slot unsubmitted so its reset
// fence is never deadlocked on.
func (p *framePacer) markSubmitted() {
	p.submitted[p.current] = true
}

// advance rotates to the next frame slot and ticks the monotonic counter.
func (p *framePacer) advance() {
	p.current = (p.current + 1) % p.slots
	p.count++
}

// resetImages clears per-image ownership, for swapchain recreation where the
// image count may change.
func (p *framePacer) resetImages(images int) {
	p.imageOwner = make([]int, images)
	for i := range p.imageOwner {
		p.imageOwner[i] = -1
	}
}

func (p *framePacer) index() int {
	return p.current
}

func (p *framePacer) frame() uint64 {
	return p.count
}

// frameSync bundles the native synchronization objects the pacer drives:
// one fence, acquire semaphore and command buffer per frame slot, and one
// render-finished semaphore per swapchain image. Acquire semaphores are
// frame-indexed because at acquire time the image index is not yet known;
// render-finished semaphores are image-indexed so presentation never waits
// on a semaphore another frame might re-signal.
type frameSync struct {
	device *Device
	pool   *CommandPool

	inFlightFences []vk.Fence
	imageAvailable []vk.Semaphore
	renderFinished []vk.Semaphore
	commandBuffers []*CommandBuffer

	pacer *framePacer
}

func newFrameSync(device *Device, pool *CommandPool, imageCount int) (*frameSync, error) {
	f := &frameSync{
		device: device,
		pool:   pool,
	}

	cmds, err := pool.AllocateBuffers(maxFramesInFlight)
	if err != nil {
		return nil, fmt.Errorf("allocate frame command buffers: %w", err)
	}
	f.commandBuffers = cmds

	for i := 0; i < maxFramesInFlight; i++ {
		fence, err := device.VKCreateFence(true)
		if err != nil {
			return nil, fmt.Errorf("create frame fence %d: %w", i, err)
		}
		f.inFlightFences = append(f.inFlightFences, fence)

		sem, err := device.VKCreateSemaphore()
		if err != nil {
			return nil, fmt.Errorf("create acquire semaphore %d: %w", i, err)
		}
		f.imageAvailable = append(f.imageAvailable, sem)
	}

	if err := f.createImageSemaphores(imageCount); err != nil {
		return nil, err
	}

	f.pacer = newFramePacer(maxFramesInFlight, imageCount,
		func(slot int) error { return device.VKWaitForFence(f.inFlightFences[slot]) },
		func(slot int) error { return device.VKResetFence(f.inFlightFences[slot]) },
	)
	return f, nil
}

func (f *frameSync) createImageSemaphores(imageCount int) error {
	f.renderFinished = make([]vk.Semaphore, 0, imageCount)
	for i := 0; i < imageCount; i++ {
		sem, err := f.device.VKCreateSemaphore()
		if err != nil {
			return fmt.Errorf("create render-finished semaphore %d: %w", i, err)
		}
		f.renderFinished = append(f.renderFinished, sem)
	}
	return nil
}

// adoptImageCount replaces the image-indexed semaphores after a swapchain
// recreation. The device must be idle.
func (f *frameSync) adoptImageCount(imageCount int) error {
	for _, sem := range f.renderFinished {
		f.device.VKDestroySemaphore(sem)
	}
	if err := f.createImageSemaphores(imageCount); err != nil {
		return err
	}
	f.pacer.resetImages(imageCount)
	return nil
}

func (f *frameSync) currentCommandBuffer() *CommandBuffer {
	return f.commandBuffers[f.pacer.index()]
}

func (f *frameSync) currentFence() vk.Fence {
	return f.inFlightFences[f.pacer.index()]
}

func (f *frameSync) acquireSemaphore() vk.Semaphore {
	return f.imageAvailable[f.pacer.index()]
}

func (f *frameSync) renderSemaphore(image int) vk.Semaphore {
	return f.renderFinished[image]
}

func (f *frameSync) Destroy() {
	for _, fence := range f.inFlightFences {
		f.device.VKDestroyFence(fence)
	}
	for _, sem := range f.imageAvailable {
		f.device.VKDestroySemaphore(sem)
	}
	for _, sem := range f.renderFinished {
		f.device.VKDestroySemaphore(sem)
	}
	f.pool.FreeBuffers(f.commandBuffers)
}
