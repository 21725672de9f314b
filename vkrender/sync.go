package vkrender

import (
	"math"

	vk "github.com/vulkan-go/vulkan"
)

func (d *Device) VKCreateFence(signaled bool) (vk.Fence, error) {
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	err := vk.Error(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return vk.Fence(vk.NullHandle), err
	}
	return fence, nil
}

func (d *Device) VKDestroyFence(f vk.Fence) {
	vk.DestroyFence(d.VKDevice, f, nil)
}

// VKWaitForFence blocks until the fence signals. All waits in this backend
// are unbounded; a wait that never returns means the GPU has hung.
func (d *Device) VKWaitForFence(f vk.Fence) error {
	return vk.Error(vk.WaitForFences(d.VKDevice, 1, []vk.Fence{f}, vk.True, math.MaxUint64))
}

func (d *Device) VKResetFence(f vk.Fence) error {
	return vk.Error(vk.ResetFences(d.VKDevice, 1, []vk.Fence{f}))
}

func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var sema vk.Semaphore
	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &semaphoreCreateInfo, nil, &sema))
	return sema, err
}

func (d *Device) VKDestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}
