package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// shutdown waits at most this long for in flight work.
const shutdownTimeoutNs = 5_000_000_000

type Config struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and routes its
	// messages to the engine log.
	Validation         bool
	DescriptorSets     uint32
	DescriptorsPerKind uint32
}

// handleTable maps engine handles to backend objects.
type handleTable[H ~uint64, T any] struct {
	mu    sync.RWMutex
	items map[H]T
}

func (t *handleTable[H, T]) put(h H, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		t.items = make(map[H]T)
	}
	t.items[h] = v
}

func (t *handleTable[H, T]) get(h H) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *handleTable[H, T]) take(h H) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

func (t *handleTable[H, T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.items))
	for _, v := range t.items {
		out = append(out, v)
	}
	t.items = nil
	return out
}

type pendingCommandBuffer struct {
	marker renderer.Marker
	buffer *VulkanCommandBuffer
}

// Device is the Vulkan RenderDevice. It needs no window: render passes
// draw into attachments the device allocates itself.
type Device struct {
	context        *VulkanContext
	tracker        *FenceTracker
	limits         metadata.DeviceLimits
	descriptorPool *VulkanDescriptorPool
	next           atomic.Uint64
	lists          atomic.Uint64

	setLayouts      handleTable[metadata.DescriptorSetLayoutHandle, *VulkanDescriptorSetLayout]
	sets            handleTable[metadata.DescriptorSetHandle, *VulkanDescriptorSet]
	pipelineLayouts handleTable[metadata.PipelineLayoutHandle, vk.PipelineLayout]
	pipelines       handleTable[metadata.PipelineHandle, *VulkanPipeline]
	shaderModules   handleTable[metadata.ShaderModuleHandle, *VulkanShaderModule]
	renderPasses    handleTable[metadata.RenderPassHandle, *VulkanRenderpass]
	buffers         handleTable[metadata.BufferHandle, *VulkanBuffer]
	images          handleTable[metadata.ImageViewHandle, *VulkanImage]
	samplers        handleTable[metadata.SamplerHandle, vk.Sampler]

	pendingMu sync.Mutex
	pending   []pendingCommandBuffer
}

var _ renderer.RenderDevice = (*Device)(nil)

func NewDevice(cfg Config) (*Device, error) {
	d := &Device{
		context: &VulkanContext{Locks: NewVulkanLockPool()},
	}
	if err := InstanceCreate(d.context, cfg.ApplicationName, cfg.Validation); err != nil {
		return nil, err
	}
	if err := DeviceCreate(d.context); err != nil {
		d.destroy()
		return nil, err
	}
	pool, err := DescriptorPoolCreate(d.context, cfg.DescriptorSets, cfg.DescriptorsPerKind)
	if err != nil {
		d.destroy()
		return nil, err
	}
	d.descriptorPool = pool
	d.tracker = NewFenceTracker(d.context)
	d.limits = deviceLimits(d.context.Device)
	core.LogInfo("Vulkan device ready.")
	return d, nil
}

func (d *Device) handle() uint64 {
	return d.next.Add(1)
}

func (d *Device) Limits() metadata.DeviceLimits { return d.limits }

func (d *Device) Tracker() renderer.GPUTracker { return d.tracker }

func (d *Device) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error) {
	var rp *VulkanRenderpass
	err := d.context.Locks.SafeCall(RenderpassManagement, func() error {
		var err error
		rp, err = RenderpassCreate(d.context, desc)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.RenderPassHandle(d.handle())
	d.renderPasses.put(h, rp)
	return h, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	var buffer *VulkanBuffer
	err := d.context.Locks.SafeCall(ResourceManagement, func() error {
		var err error
		buffer, err = NewVulkanBuffer(d.context, desc)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.BufferHandle(d.handle())
	d.buffers.put(h, buffer)
	return h, nil
}

func (d *Device) WriteBuffer(buffer metadata.BufferHandle, offset uint64, data []byte) error {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return fmt.Errorf("unknown buffer %d", buffer)
	}
	return b.Write(offset, data)
}

func (d *Device) DestroyBuffer(buffer metadata.BufferHandle) {
	b, ok := d.buffers.take(buffer)
	if !ok {
		return
	}
	_ = d.context.Locks.SafeCall(ResourceManagement, func() error {
		b.Destroy(d.context)
		return nil
	})
}

func (d *Device) CreateImageView(desc metadata.ImageViewDesc) (metadata.ImageViewHandle, error) {
	image, err := newResourceImage(d.context, desc)
	if err != nil {
		return 0, err
	}
	h := metadata.ImageViewHandle(d.handle())
	d.images.put(h, image)
	return h, nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.SamplerHandle, error) {
	sampler, err := SamplerCreate(d.context, desc)
	if err != nil {
		return 0, err
	}
	h := metadata.SamplerHandle(d.handle())
	d.samplers.put(h, sampler)
	return h, nil
}

// reclaim frees command buffers whose submissions have completed.
func (d *Device) reclaim() {
	consumer := d.tracker.ConsumerMarker()
	d.pendingMu.Lock()
	n := 0
	for n < len(d.pending) && d.pending[n].marker <= consumer {
		n++
	}
	done := d.pending[:n]
	d.pending = d.pending[n:]
	d.pendingMu.Unlock()

	if len(done) == 0 {
		return
	}
	_ = d.context.Locks.SafeCall(CommandBufferManagement, func() error {
		for _, p := range done {
			p.buffer.Free(d.context, d.context.Device.CommandPool)
		}
		return nil
	})
}

func (d *Device) BeginCommandList() (renderer.CommandList, error) {
	d.reclaim()
	var cb *VulkanCommandBuffer
	err := d.context.Locks.SafeCall(CommandBufferManagement, func() error {
		var err error
		cb, err = NewVulkanCommandBuffer(d.context, d.context.Device.CommandPool, true)
		if err != nil {
			return err
		}
		if err := cb.Begin(true, false, false); err != nil {
			cb.Free(d.context, d.context.Device.CommandPool)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CommandList{device: d, buffer: cb, id: d.lists.Add(1)}, nil
}

func (d *Device) Submit(cmd renderer.CommandList) error {
	cl, ok := cmd.(*CommandList)
	if !ok || cl.device != d {
		return fmt.Errorf("%w: command list was not recorded by this device", core.ErrInvalidEncoderState)
	}
	if cl.buffer.State == COMMAND_BUFFER_STATE_RECORDING || cl.buffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		if err := cl.End(); err != nil {
			return err
		}
	}
	if cl.buffer.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return fmt.Errorf("%w: command list %d cannot be submitted twice", core.ErrInvalidEncoderState, cl.id)
	}

	var marker renderer.Marker
	err := d.context.Locks.SafeQueueCall(uint32(d.context.Device.QueueIndex), func() error {
		var err error
		marker, err = d.tracker.submit(func(fence vk.Fence) error {
			submitInfo := vk.SubmitInfo{
				SType:              vk.StructureTypeSubmitInfo,
				CommandBufferCount: 1,
				PCommandBuffers:    []vk.CommandBuffer{cl.buffer.Handle},
			}
			return check(vk.QueueSubmit(d.context.Device.Queue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
		})
		return err
	})
	if err != nil {
		return err
	}
	cl.buffer.UpdateSubmitted()

	d.pendingMu.Lock()
	d.pending = append(d.pending, pendingCommandBuffer{marker: marker, buffer: cl.buffer})
	d.pendingMu.Unlock()
	return nil
}

// Shutdown waits for the queue to drain and destroys every object the
// device still owns.
func (d *Device) Shutdown() error {
	if d.context.Device == nil || d.context.Device.LogicalDevice == nil {
		return nil
	}
	core.LogInfo("Shutting down Vulkan device...")
	d.tracker.WaitIdle(shutdownTimeoutNs)
	if err := check(vk.DeviceWaitIdle(d.context.Device.LogicalDevice), "vkDeviceWaitIdle"); err != nil {
		core.LogWarn("destroying objects anyway")
	}
	d.reclaim()
	d.destroy()
	return nil
}

func (d *Device) destroy() {
	ctx := d.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		for _, p := range d.pending {
			p.buffer.Free(ctx, ctx.Device.CommandPool)
		}
		d.pending = nil
		for _, p := range d.pipelines.drain() {
			p.Destroy(ctx)
		}
		for _, l := range d.pipelineLayouts.drain() {
			vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, l, ctx.Allocator)
		}
		for _, m := range d.shaderModules.drain() {
			m.Destroy(ctx)
		}
		for _, rp := range d.renderPasses.drain() {
			rp.RenderpassDestroy(ctx)
		}
		// sets go with the pool
		d.sets.drain()
		if d.descriptorPool != nil {
			d.descriptorPool.Destroy(ctx)
		}
		for _, l := range d.setLayouts.drain() {
			l.Destroy(ctx)
		}
		for _, b := range d.buffers.drain() {
			b.Destroy(ctx)
		}
		for _, i := range d.images.drain() {
			i.Destroy(ctx)
		}
		for _, s := range d.samplers.drain() {
			vk.DestroySampler(ctx.Device.LogicalDevice, s, ctx.Allocator)
		}
		if d.tracker != nil {
			d.tracker.Destroy()
		}
	}
	DeviceDestroy(ctx)
	InstanceDestroy(ctx)
}
