package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := check(vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence), "vkCreateFence"); err != nil {
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) bool {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return true
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return true
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result, true))
	}
	return false
}

// FencePoll checks the fence without blocking.
func (vf *VulkanFence) FencePoll(context *VulkanContext) bool {
	if !vf.IsSignaled && vk.GetFenceStatus(context.Device.LogicalDevice, vf.Handle) == vk.Success {
		vf.IsSignaled = true
	}
	return vf.IsSignaled
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if err := check(vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}

type inFlightFence struct {
	marker renderer.Marker
	fence  *VulkanFence
}

// FenceTracker is the GPU tracker of the Vulkan device. Every submission gets
// a fence; the consumer marker advances as those fences signal, in order.
type FenceTracker struct {
	context *VulkanContext

	mu       sync.Mutex
	producer renderer.Marker
	consumer renderer.Marker
	inFlight []inFlightFence
	free     []*VulkanFence
}

func NewFenceTracker(context *VulkanContext) *FenceTracker {
	return &FenceTracker{context: context, producer: 1}
}

func (ft *FenceTracker) ProducerMarker() renderer.Marker {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.producer
}

func (ft *FenceTracker) ConsumerMarker() renderer.Marker {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.poll()
	return ft.consumer
}

func (ft *FenceTracker) poll() {
	for len(ft.inFlight) > 0 {
		head := ft.inFlight[0]
		if !head.fence.FencePoll(ft.context) {
			return
		}
		ft.consumer = head.marker
		if err := head.fence.FenceReset(ft.context); err != nil {
			head.fence.FenceDestroy(ft.context)
		} else {
			ft.free = append(ft.free, head.fence)
		}
		ft.inFlight = ft.inFlight[1:]
	}
}

// submit closes the producer marker and hands the fence to signal for it to
// fn, which performs the queue submission.
func (ft *FenceTracker) submit(fn func(fence vk.Fence) error) (renderer.Marker, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var fence *VulkanFence
	if n := len(ft.free); n > 0 {
		fence = ft.free[n-1]
		ft.free = ft.free[:n-1]
	} else {
		f, err := NewFence(ft.context, false)
		if err != nil {
			return 0, err
		}
		fence = f
	}

	if err := fn(fence.Handle); err != nil {
		ft.free = append(ft.free, fence)
		return 0, err
	}
	marker := ft.producer
	ft.producer++
	ft.inFlight = append(ft.inFlight, inFlightFence{marker: marker, fence: fence})
	return marker, nil
}

// WaitIdle blocks until every submission has completed.
func (ft *FenceTracker) WaitIdle(timeoutNs uint64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, f := range ft.inFlight {
		f.fence.FenceWait(ft.context, timeoutNs)
	}
	ft.poll()
}

func (ft *FenceTracker) Destroy() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, f := range ft.inFlight {
		f.fence.FenceDestroy(ft.context)
	}
	for _, f := range ft.free {
		f.FenceDestroy(ft.context)
	}
	ft.inFlight = nil
	ft.free = nil
}
