package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// BoundSignatureFile is a signature file whose descriptor sets have been
// compiled against a device.
type BoundSignatureFile struct {
	ID     core.Identifier
	File   *SignatureFile
	Stages metadata.ShaderStage

	layouts map[uint64]*CompiledDescriptorSetLayout
}

func NewBoundSignatureFile(pools *GlobalPools, file *SignatureFile, stages metadata.ShaderStage) (*BoundSignatureFile, error) {
	return bindSignatureFile(pools, core.NewIdentifier(), file, stages)
}

// Rebind binds a new revision of the same signature file under the owner id
// of bf, so descriptor sets whose contents did not change keep their
// compiled layouts. bf stays valid.
func (bf *BoundSignatureFile) Rebind(pools *GlobalPools, file *SignatureFile) (*BoundSignatureFile, error) {
	return bindSignatureFile(pools, bf.ID, file, bf.Stages)
}

func bindSignatureFile(pools *GlobalPools, id core.Identifier, file *SignatureFile, stages metadata.ShaderStage) (*BoundSignatureFile, error) {
	if err := ValidateRootSignature(pools.Device.Limits(), file); err != nil {
		return nil, err
	}

	bf := &BoundSignatureFile{
		ID:      id,
		File:    file,
		Stages:  stages,
		layouts: make(map[uint64]*CompiledDescriptorSetLayout, len(file.DescriptorSets)),
	}
	for _, s := range file.DescriptorSets {
		l, err := pools.Layouts.Compile(bf.ID.Hash, s, stages)
		if err != nil {
			return nil, err
		}
		bf.layouts[s.HashName] = l
	}
	core.LogInfo("signature file %s bound: %d descriptor sets, %d root signatures", file.Path, len(file.DescriptorSets), len(file.RootSignatures))
	return bf, nil
}

func (bf *BoundSignatureFile) DescriptorSetLayout(hashName uint64) *CompiledDescriptorSetLayout {
	return bf.layouts[hashName]
}

// ValidateRootSignature checks every root signature of file against the
// device limits.
func ValidateRootSignature(limits metadata.DeviceLimits, file *SignatureFile) error {
	for _, s := range file.DescriptorSets {
		if err := ValidateDescriptorSetLimits(limits, s); err != nil {
			return err
		}
	}

	for _, root := range file.RootSignatures {
		if uint32(len(root.DescriptorSets)) > limits.MaxBoundDescriptorSets {
			return fmt.Errorf("%w: root signature (%s) uses %d descriptor sets, the device supports %d",
				core.ErrDeviceLimits, root.Name, len(root.DescriptorSets), limits.MaxBoundDescriptorSets)
		}

		var total DescriptorCounts
		for _, ref := range root.DescriptorSets {
			if s := file.DescriptorSet(ref.HashName); s != nil {
				total.Add(s.Counts())
			}
		}
		if total.SampledImages > limits.MaxDescriptorSetSampledImages ||
			total.Samplers > limits.MaxDescriptorSetSamplers ||
			total.UniformBuffers > limits.MaxDescriptorSetUniformBuffers ||
			total.StorageBuffers > limits.MaxDescriptorSetStorageBuffers ||
			total.StorageImages > limits.MaxDescriptorSetStorageImages {
			return fmt.Errorf("%w: root signature (%s) exceeds the maximum number of bound resources supported by the device", core.ErrDeviceLimits, root.Name)
		}

		var pushSize uint32
		for _, name := range root.PushConstants {
			if pc := file.PushConstantsRange(core.HashName(name)); pc != nil && pc.RangeStart+pc.RangeSize > pushSize {
				pushSize = pc.RangeStart + pc.RangeSize
			}
		}
		if pushSize > limits.MaxPushConstantsSize {
			return fmt.Errorf("%w: root signature (%s) needs %d bytes of push constants, the device supports %d", core.ErrDeviceLimits, root.Name, pushSize, limits.MaxPushConstantsSize)
		}
	}
	return nil
}
