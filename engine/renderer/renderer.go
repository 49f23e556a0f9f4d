package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// DummyResources are the blank objects written into every descriptor slot
// the application leaves unbound.
type DummyResources struct {
	Buffer        metadata.BufferHandle
	StorageBuffer metadata.BufferHandle
	Image         metadata.ImageViewHandle
	StorageImage  metadata.ImageViewHandle
	Sampler       metadata.SamplerHandle
}

const dummyBufferSize = 256

func NewDummyResources(device RenderDevice) (*DummyResources, error) {
	d := &DummyResources{}
	var err error
	if d.Buffer, err = device.CreateBuffer(metadata.BufferDesc{
		Name:        "blank-uniform-buffer",
		Size:        dummyBufferSize,
		Usage:       metadata.BufferUsageUniform,
		HostVisible: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to create blank uniform buffer: %w", err)
	}
	if err := device.WriteBuffer(d.Buffer, 0, make([]byte, dummyBufferSize)); err != nil {
		return nil, err
	}
	if d.StorageBuffer, err = device.CreateBuffer(metadata.BufferDesc{
		Name:  "blank-storage-buffer",
		Size:  dummyBufferSize,
		Usage: metadata.BufferUsageStorage,
	}); err != nil {
		return nil, fmt.Errorf("failed to create blank storage buffer: %w", err)
	}
	if d.Image, err = device.CreateImageView(metadata.ImageViewDesc{Name: "blank-image", Width: 1, Height: 1}); err != nil {
		return nil, fmt.Errorf("failed to create blank image: %w", err)
	}
	if d.StorageImage, err = device.CreateImageView(metadata.ImageViewDesc{Name: "blank-storage-image", Width: 1, Height: 1, Storage: true}); err != nil {
		return nil, fmt.Errorf("failed to create blank storage image: %w", err)
	}
	if d.Sampler, err = device.CreateSampler(metadata.SamplerDesc{Name: "blank-sampler", ClampToEdge: true}); err != nil {
		return nil, fmt.Errorf("failed to create blank sampler: %w", err)
	}
	core.LogDebug("blank descriptor resources created")
	return d, nil
}

// InfoFor returns the blank payload for a slot of type t.
func (d *DummyResources) InfoFor(t metadata.DescriptorType) metadata.DescriptorInfo {
	switch t {
	case metadata.DescriptorTypeSampler:
		return metadata.SamplerInfo{Sampler: d.Sampler}
	case metadata.DescriptorTypeTexture:
		return metadata.ImageInfo{View: d.Image}
	case metadata.DescriptorTypeUnorderedAccessTexture:
		return metadata.ImageInfo{View: d.StorageImage}
	case metadata.DescriptorTypeConstantBuffer:
		return metadata.BufferInfo{Buffer: d.Buffer, Range: dummyBufferSize}
	case metadata.DescriptorTypeUnorderedAccessBuffer:
		return metadata.BufferInfo{Buffer: d.StorageBuffer, Range: dummyBufferSize}
	}
	panic(fmt.Sprintf("no blank resource for descriptor type %s", t))
}
