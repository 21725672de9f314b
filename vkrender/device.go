package vkrender

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Instance is the connection to the Vulkan loader.
type Instance struct {
	VKInstance vk.Instance
}

func createInstance(appName string, extensions []string) (*Instance, error) {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("framework-multi-api"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	instance := &Instance{}
	err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance.VKInstance))
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	vk.InitInstance(instance.VKInstance)

	return instance, nil
}

func (i *Instance) Destroy() {
	vk.DestroyInstance(i.VKInstance, nil)
}

// PhysicalDevices returns every GPU known to the instance.
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &deviceCount, nil))
	if err != nil {
		return nil, err
	}
	if deviceCount == 0 {
		return nil, nil
	}

	devices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &deviceCount, devices))
	if err != nil {
		return nil, err
	}

	ret := make([]*PhysicalDevice, deviceCount)
	for j, device := range devices {
		ret[j] = &PhysicalDevice{}
		ret[j].VKPhysicalDevice = device
		vk.GetPhysicalDeviceProperties(device, &ret[j].VKPhysicalDeviceProperties)
		ret[j].VKPhysicalDeviceProperties.Deref()
		ret[j].DeviceName = vk.ToString(ret[j].VKPhysicalDeviceProperties.DeviceName[:])
	}
	return ret, nil
}

type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return nil
	}

	queues := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, queues)

	ret := make(QueueFamilySlice, queueFamilyCount)
	for i, queue := range queues {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: queue}
		ret[i].VKQueueFamilyProperties.Deref()
	}
	return ret
}

func (p *PhysicalDevice) SupportedExtensions() ([]string, error) {
	var count uint32
	err := vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, nil))
	if err != nil {
		return nil, err
	}

	ext := make([]vk.ExtensionProperties, count)
	err = vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, ext))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, count)
	for _, e := range ext {
		e.Deref()
		names = append(names, vk.ToString(e.ExtensionName[:]))
	}
	return names, nil
}

func (p *PhysicalDevice) SupportsExtension(name string) bool {
	exts, err := p.SupportedExtensions()
	if err != nil {
		return false
	}
	for _, e := range exts {
		if e == name {
			return true
		}
	}
	return false
}

func (p *PhysicalDevice) GetSurfaceCapabilities(surface vk.Surface) (*vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps))
	if err != nil {
		return nil, err
	}
	return &caps, nil
}

// GetSurfaceFormats returns the surface formats with their fields already
// dereferenced, so callers can read Format and ColorSpace directly.
func (p *PhysicalDevice) GetSurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil))
	if err != nil {
		return nil, err
	}

	f := make([]vk.SurfaceFormat, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, f))
	if err != nil {
		return nil, err
	}

	for i := range f {
		f[i].Deref()
	}
	return f, nil
}

func (p *PhysicalDevice) GetSurfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil))
	if err != nil {
		return nil, err
	}

	m := make([]vk.PresentMode, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, m))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(p.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	var i uint32
	for i = 0; i < memoryProperties.MemoryTypeCount; i++ {
		mt := memoryProperties.MemoryTypes[i]
		mt.Deref()
		if memoryTypeBits&(1<<i) != 0 &&
			mt.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches bits 0x%x with properties 0x%x", memoryTypeBits, properties)
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool { return q.IsGraphics() })
}

func (ql QueueFamilySlice) FilterPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool { return q.SupportsPresent(surface) })
}

func (ql QueueFamilySlice) FilterGraphicsAndPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics() && q.SupportsPresent(surface)
	})
}

type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

func (q *QueueFamily) IsGraphics() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supportsPresent vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supportsPresent)
	return supportsPresent == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Graphics: %v }", q.Index, q.IsGraphics())
}

// Device is an open logical device plus the physical device it came from.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
}

// pickPhysicalDevice chooses the first GPU offering the swapchain extension
// and a queue family that can both draw and present to the surface.
func pickPhysicalDevice(instance *Instance, surface vk.Surface) (*PhysicalDevice, *QueueFamily, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate physical devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil, fmt.Errorf("no Vulkan-capable GPU found")
	}

	for _, pd := range devices {
		if !pd.SupportsExtension(vk.KhrSwapchainExtensionName) {
			continue
		}
		families := pd.QueueFamilies().FilterGraphicsAndPresent(surface)
		if len(families) == 0 {
			continue
		}
		return pd, families[0], nil
	}
	return nil, nil, fmt.Errorf("no GPU supports both graphics and presentation")
}

func (p *PhysicalDevice) CreateLogicalDevice(qf *QueueFamily, extensions []string) (*Device, error) {
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(qf.Index),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	var deviceFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(p.VKPhysicalDevice, &deviceFeatures)

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var ldevice vk.Device
	err := vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice))
	if err != nil {
		return nil, fmt.Errorf("create logical device: %w", err)
	}

	var device Device
	device.PhysicalDevice = p
	device.VKDevice = ldevice

	return &device, nil
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.VKDevice)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)

	var queue Queue
	queue.QueueFamily = qf
	queue.Device = d
	queue.VKQueue = vkq

	return &queue
}

// DestroyHandle dispatches to the native destroy call for a raw handle. The
// deferred deletion queue uses it once a handle's retire frame is reached.
func (d *Device) DestroyHandle(i interface{}) {
	switch t := i.(type) {
	case vk.Sampler:
		vk.DestroySampler(d.VKDevice, t, nil)
	case vk.ImageView:
		vk.DestroyImageView(d.VKDevice, t, nil)
	case vk.Image:
		vk.DestroyImage(d.VKDevice, t, nil)
	case vk.Buffer:
		vk.DestroyBuffer(d.VKDevice, t, nil)
	case vk.DeviceMemory:
		vk.FreeMemory(d.VKDevice, t, nil)
	case vk.Pipeline:
		vk.DestroyPipeline(d.VKDevice, t, nil)
	case vk.Fence:
		vk.DestroyFence(d.VKDevice, t, nil)
	case vk.Semaphore:
		vk.DestroySemaphore(d.VKDevice, t, nil)
	case vk.Framebuffer:
		vk.DestroyFramebuffer(d.VKDevice, t, nil)
	case vk.RenderPass:
		vk.DestroyRenderPass(d.VKDevice, t, nil)
	}
}

type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue
}

func (q *Queue) WaitIdle() error {
	return vk.Error(vk.QueueWaitIdle(q.VKQueue))
}

func (q *Queue) SubmitWithFence(fence vk.Fence, buffers ...*CommandBuffer) error {
	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    b,
	}

	return vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
}
