package descriptor

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type pendingRelease struct {
	set    metadata.DescriptorSetHandle
	marker renderer.Marker
}

// DescriptorPool hands out descriptor sets and takes them back once the GPU
// work that referenced them has retired. Safe for concurrent use.
type DescriptorPool struct {
	mu        sync.Mutex
	device    renderer.RenderDevice
	tracker   renderer.GPUTracker
	releases  *containers.RingQueue[pendingRelease]
	allocated int
}

func NewDescriptorPool(device renderer.RenderDevice) *DescriptorPool {
	releases := containers.NewRingQueue[pendingRelease](256)
	releases.Grow = true
	return &DescriptorPool{
		device:   device,
		tracker:  device.Tracker(),
		releases: releases,
	}
}

func (p *DescriptorPool) Allocate(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	set, err := p.device.AllocateDescriptorSet(layout)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to allocate descriptor set: %v", core.ErrDeviceFailure, err)
	}
	p.mu.Lock()
	p.allocated++
	p.mu.Unlock()
	return set, nil
}

// Release returns set to the pool after the current producer marker retires.
func (p *DescriptorPool) Release(set metadata.DescriptorSetHandle) {
	if set == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// grows instead of failing
	_ = p.releases.Enqueue(pendingRelease{set: set, marker: p.tracker.ProducerMarker()})
}

// FlushDestroys frees every released set whose marker the GPU has passed.
func (p *DescriptorPool) FlushDestroys() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	consumer := p.tracker.ConsumerMarker()
	freed := 0
	for !p.releases.IsEmpty() {
		front, _ := p.releases.Peek()
		if front.marker > consumer {
			break
		}
		_, _ = p.releases.Dequeue()
		p.device.FreeDescriptorSet(front.set)
		p.allocated--
		freed++
	}
	return freed
}

// Allocated counts sets handed out and not yet freed.
func (p *DescriptorPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

func (p *DescriptorPool) PendingReleases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases.Len()
}

// GlobalPools are the device-wide objects shared by every recording context.
type GlobalPools struct {
	Device         renderer.RenderDevice
	DescriptorPool *DescriptorPool
	Dummies        *renderer.DummyResources
	Layouts        *LayoutCache
	// PendingWrites is the builder capacity for adaptive descriptor sets.
	PendingWrites int
}

func NewGlobalPools(device renderer.RenderDevice, pendingWrites int) (*GlobalPools, error) {
	dummies, err := renderer.NewDummyResources(device)
	if err != nil {
		return nil, err
	}
	if pendingWrites <= 0 {
		pendingWrites = DefaultPendingWrites
	}
	gp := &GlobalPools{
		Device:         device,
		DescriptorPool: NewDescriptorPool(device),
		Dummies:        dummies,
		PendingWrites:  pendingWrites,
	}
	gp.Layouts = NewLayoutCache(device, gp.DescriptorPool, dummies)
	return gp, nil
}

func (gp *GlobalPools) FlushDestroys() {
	gp.DescriptorPool.FlushDestroys()
}
