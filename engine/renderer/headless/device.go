package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

var ErrInjectedFailure = errors.New("injected device failure")

// Stats counts device calls.
type Stats struct {
	DescriptorSetLayouts int
	DescriptorSetsLive   int
	DescriptorSetsFreed  int
	UpdateCalls          int
	Writes               int
	Copies               int
	PipelineLayouts      int
	GraphicsPipelines    int
	ComputePipelines     int
	Buffers              int
	Submissions          int
}

type descriptorSet struct {
	layout   metadata.DescriptorSetLayoutHandle
	contents []metadata.DescriptorInfo
}

type buffer struct {
	desc metadata.BufferDesc
	data []byte
}

// Device is an in-memory RenderDevice. It validates descriptor writes the way
// a validation layer would, and keeps every object readable for inspection.
type Device struct {
	mu      sync.Mutex
	limits  metadata.DeviceLimits
	tracker *Tracker
	next    uint64
	stats   Stats

	setLayouts      map[metadata.DescriptorSetLayoutHandle]metadata.DescriptorSetLayoutDesc
	sets            map[metadata.DescriptorSetHandle]*descriptorSet
	pipelineLayouts map[metadata.PipelineLayoutHandle]metadata.PipelineLayoutDesc
	graphics        map[metadata.PipelineHandle]metadata.GraphicsPipelineDesc
	compute         map[metadata.PipelineHandle]metadata.ComputePipelineDesc
	shaderModules   map[metadata.ShaderModuleHandle]metadata.ShaderStage
	renderPasses    map[metadata.RenderPassHandle]metadata.RenderPassDesc
	buffers         map[metadata.BufferHandle]*buffer
	images          map[metadata.ImageViewHandle]metadata.ImageViewDesc
	samplers        map[metadata.SamplerHandle]metadata.SamplerDesc
	submitted       []*CommandList

	// FailPipelines makes pipeline and pipeline layout creation fail.
	FailPipelines bool
	// FailBuffers makes buffer creation fail.
	FailBuffers bool
}

func NewDevice(limits metadata.DeviceLimits) *Device {
	return &Device{
		limits:          limits,
		tracker:         NewTracker(),
		setLayouts:      make(map[metadata.DescriptorSetLayoutHandle]metadata.DescriptorSetLayoutDesc),
		sets:            make(map[metadata.DescriptorSetHandle]*descriptorSet),
		pipelineLayouts: make(map[metadata.PipelineLayoutHandle]metadata.PipelineLayoutDesc),
		graphics:        make(map[metadata.PipelineHandle]metadata.GraphicsPipelineDesc),
		compute:         make(map[metadata.PipelineHandle]metadata.ComputePipelineDesc),
		shaderModules:   make(map[metadata.ShaderModuleHandle]metadata.ShaderStage),
		renderPasses:    make(map[metadata.RenderPassHandle]metadata.RenderPassDesc),
		buffers:         make(map[metadata.BufferHandle]*buffer),
		images:          make(map[metadata.ImageViewHandle]metadata.ImageViewDesc),
		samplers:        make(map[metadata.SamplerHandle]metadata.SamplerDesc),
	}
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) Limits() metadata.DeviceLimits { return d.limits }

func (d *Device) Tracker() renderer.GPUTracker { return d.tracker }

// ManualTracker exposes the tracker so callers can retire work.
func (d *Device) ManualTracker() *Tracker { return d.tracker }

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) CreateDescriptorSetLayout(desc metadata.DescriptorSetLayoutDesc) (metadata.DescriptorSetLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.DescriptorSetLayoutHandle(d.handle())
	desc.Slots = append([]metadata.DescriptorSlot(nil), desc.Slots...)
	d.setLayouts[h] = desc
	d.stats.DescriptorSetLayouts++
	return h, nil
}

func (d *Device) AllocateDescriptorSet(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.setLayouts[layout]
	if !ok {
		return 0, fmt.Errorf("unknown descriptor set layout %d", layout)
	}
	h := metadata.DescriptorSetHandle(d.handle())
	d.sets[h] = &descriptorSet{layout: layout, contents: make([]metadata.DescriptorInfo, len(l.Slots))}
	d.stats.DescriptorSetsLive++
	return h, nil
}

func (d *Device) FreeDescriptorSet(set metadata.DescriptorSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sets[set]; !ok {
		panic(fmt.Sprintf("free of unknown descriptor set %d", set))
	}
	delete(d.sets, set)
	d.stats.DescriptorSetsLive--
	d.stats.DescriptorSetsFreed++
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite, copies []metadata.DescriptorCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.UpdateCalls++
	for _, w := range writes {
		set := d.mustSet(w.Set)
		slots := d.setLayouts[set.layout].Slots
		if int(w.Binding) >= len(slots) {
			panic(fmt.Sprintf("descriptor write to binding %d of a %d slot set", w.Binding, len(slots)))
		}
		if slots[w.Binding].Type != w.Type || !w.Info.Compatible(w.Type) {
			panic(fmt.Sprintf("descriptor write of %T as %s into %s binding %d", w.Info, w.Type, slots[w.Binding].Type, w.Binding))
		}
		set.contents[w.Binding] = w.Info
		d.stats.Writes++
	}
	for _, c := range copies {
		src, dst := d.mustSet(c.Src), d.mustSet(c.Dst)
		for i := uint32(0); i < c.Count; i++ {
			if src.contents[c.SrcBinding+i] == nil {
				panic(fmt.Sprintf("descriptor copy from unwritten binding %d of set %d", c.SrcBinding+i, c.Src))
			}
			dst.contents[c.DstBinding+i] = src.contents[c.SrcBinding+i]
		}
		d.stats.Copies++
	}
}

func (d *Device) mustSet(h metadata.DescriptorSetHandle) *descriptorSet {
	s, ok := d.sets[h]
	if !ok {
		panic(fmt.Sprintf("unknown descriptor set %d", h))
	}
	return s
}

// DescriptorSetContents returns the current payload of every binding of set;
// unwritten bindings are nil.
func (d *Device) DescriptorSetContents(set metadata.DescriptorSetHandle) []metadata.DescriptorInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		return nil
	}
	return append([]metadata.DescriptorInfo(nil), s.contents...)
}

func (d *Device) IsDescriptorSetLive(set metadata.DescriptorSetHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sets[set]
	return ok
}

func (d *Device) CreatePipelineLayout(desc metadata.PipelineLayoutDesc) (metadata.PipelineLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailPipelines {
		return 0, ErrInjectedFailure
	}
	for _, l := range desc.SetLayouts {
		if _, ok := d.setLayouts[l]; !ok {
			return 0, fmt.Errorf("unknown descriptor set layout %d", l)
		}
	}
	h := metadata.PipelineLayoutHandle(d.handle())
	d.pipelineLayouts[h] = desc
	d.stats.PipelineLayouts++
	return h, nil
}

func (d *Device) PipelineLayout(h metadata.PipelineLayoutHandle) (metadata.PipelineLayoutDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.pipelineLayouts[h]
	return l, ok
}

func (d *Device) CreateGraphicsPipeline(desc *metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailPipelines {
		return 0, ErrInjectedFailure
	}
	if _, ok := d.pipelineLayouts[desc.Layout]; !ok {
		return 0, fmt.Errorf("unknown pipeline layout %d", desc.Layout)
	}
	for _, s := range desc.Stages {
		if _, ok := d.shaderModules[s.Module]; !ok {
			return 0, fmt.Errorf("unknown shader module %d", s.Module)
		}
	}
	h := metadata.PipelineHandle(d.handle())
	d.graphics[h] = *desc
	d.stats.GraphicsPipelines++
	return h, nil
}

func (d *Device) GraphicsPipeline(h metadata.PipelineHandle) (metadata.GraphicsPipelineDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.graphics[h]
	return p, ok
}

func (d *Device) CreateComputePipeline(desc *metadata.ComputePipelineDesc) (metadata.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailPipelines {
		return 0, ErrInjectedFailure
	}
	if _, ok := d.pipelineLayouts[desc.Layout]; !ok {
		return 0, fmt.Errorf("unknown pipeline layout %d", desc.Layout)
	}
	h := metadata.PipelineHandle(d.handle())
	d.compute[h] = *desc
	d.stats.ComputePipelines++
	return h, nil
}

func (d *Device) DestroyPipeline(pipeline metadata.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.graphics, pipeline)
	delete(d.compute, pipeline)
}

func (d *Device) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.ShaderModuleHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.ShaderModuleHandle(d.handle())
	d.shaderModules[h] = stage
	return h, nil
}

func (d *Device) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.RenderPassHandle(d.handle())
	d.renderPasses[h] = desc
	return h, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailBuffers {
		return 0, ErrInjectedFailure
	}
	h := metadata.BufferHandle(d.handle())
	d.buffers[h] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	d.stats.Buffers++
	return h, nil
}

func (d *Device) WriteBuffer(h metadata.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("unknown buffer %d", h)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %s of %d bytes", len(data), offset, b.desc.Name, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// BufferData returns a copy of the contents of a buffer.
func (d *Device) BufferData(h metadata.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		return append([]byte(nil), b.data...)
	}
	return nil
}

// BufferDesc returns the description a buffer was created with.
func (d *Device) BufferDesc(h metadata.BufferHandle) (metadata.BufferDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		return b.desc, true
	}
	return metadata.BufferDesc{}, false
}

func (d *Device) DestroyBuffer(h metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, h)
}

func (d *Device) IsBufferLive(h metadata.BufferHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[h]
	return ok
}

func (d *Device) CreateImageView(desc metadata.ImageViewDesc) (metadata.ImageViewHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.ImageViewHandle(d.handle())
	d.images[h] = desc
	return h, nil
}

func (d *Device) CreateSampler(desc metadata.SamplerDesc) (metadata.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.SamplerHandle(d.handle())
	d.samplers[h] = desc
	return h, nil
}

func (d *Device) BeginCommandList() (renderer.CommandList, error) {
	return newCommandList(), nil
}

func (d *Device) Submit(cmd renderer.CommandList) error {
	cl, ok := cmd.(*CommandList)
	if !ok {
		return fmt.Errorf("command list %T was not created by the headless device", cmd)
	}
	if !cl.ended {
		if err := cl.End(); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.submitted = append(d.submitted, cl)
	d.stats.Submissions++
	d.mu.Unlock()
	d.tracker.Submit()
	return nil
}

func (d *Device) Submitted() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandList(nil), d.submitted...)
}

func (d *Device) Shutdown() error {
	return nil
}
