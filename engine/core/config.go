package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the engine configuration, loaded from a TOML file.
type Config struct {
	LogLevel string `toml:"log_level"`

	Device    DeviceConfig    `toml:"device"`
	Signature SignatureConfig `toml:"signature"`
	Pools     PoolConfig      `toml:"pools"`
	Temporary TemporaryConfig `toml:"temporary"`
	// Limits override the headless device limits. Zero fields keep the defaults.
	Limits LimitsConfig `toml:"limits"`
}

const (
	BackendHeadless = "headless"
	BackendVulkan   = "vulkan"
)

type DeviceConfig struct {
	// Backend is "headless" or "vulkan".
	Backend         string `toml:"backend"`
	ApplicationName string `toml:"application_name"`
	Validation      bool   `toml:"validation"`
}

type SignatureConfig struct {
	Path string `toml:"path"`
	// Root overrides the MainRootSignature of the file.
	Root string `toml:"root"`
	// Stages used when compiling the descriptor set layouts of the file, as
	// stage letters (v, f, g, c, d, h).
	Stages string `toml:"stages"`
	Watch  bool   `toml:"watch"`
}

type PoolConfig struct {
	DescriptorSets     uint32 `toml:"descriptor_sets"`
	DescriptorsPerKind uint32 `toml:"descriptors_per_kind"`
	PendingWrites      int    `toml:"pending_writes"`
}

type TemporaryConfig struct {
	Size      uint64 `toml:"size"`
	Alignment uint64 `toml:"alignment"`
}

type LimitsConfig struct {
	MaxBoundDescriptorSets         uint32 `toml:"max_bound_descriptor_sets"`
	MaxPerStageSamplers            uint32 `toml:"max_per_stage_samplers"`
	MaxPerStageUniformBuffers      uint32 `toml:"max_per_stage_uniform_buffers"`
	MaxPerStageStorageBuffers      uint32 `toml:"max_per_stage_storage_buffers"`
	MaxPerStageSampledImages       uint32 `toml:"max_per_stage_sampled_images"`
	MaxPerStageStorageImages       uint32 `toml:"max_per_stage_storage_images"`
	MaxDescriptorSetSamplers       uint32 `toml:"max_descriptor_set_samplers"`
	MaxDescriptorSetUniformBuffers uint32 `toml:"max_descriptor_set_uniform_buffers"`
	MaxDescriptorSetStorageBuffers uint32 `toml:"max_descriptor_set_storage_buffers"`
	MaxDescriptorSetSampledImages  uint32 `toml:"max_descriptor_set_sampled_images"`
	MaxDescriptorSetStorageImages  uint32 `toml:"max_descriptor_set_storage_images"`
	MaxPushConstantsSize           uint32 `toml:"max_push_constants_size"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Device: DeviceConfig{
			Backend:         BackendHeadless,
			ApplicationName: "vkbind",
		},
		Signature: SignatureConfig{
			Stages: "vfgc",
		},
		Pools: PoolConfig{
			DescriptorSets:     1024,
			DescriptorsPerKind: 4096,
			PendingWrites:      32,
		},
		Temporary: TemporaryConfig{
			Size:      1024 * 1024,
			Alignment: 256,
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendHeadless, BackendVulkan:
	default:
		return fmt.Errorf("device.backend must be %q or %q, got %q", BackendHeadless, BackendVulkan, c.Device.Backend)
	}
	if c.Pools.PendingWrites <= 0 {
		return fmt.Errorf("pools.pending_writes must be positive, got %d", c.Pools.PendingWrites)
	}
	if c.Pools.DescriptorSets == 0 {
		return fmt.Errorf("pools.descriptor_sets must be positive")
	}
	if c.Temporary.Alignment == 0 || c.Temporary.Alignment&(c.Temporary.Alignment-1) != 0 {
		return fmt.Errorf("temporary.alignment must be a power of two, got %d", c.Temporary.Alignment)
	}
	if c.Temporary.Size == 0 {
		return fmt.Errorf("temporary.size must be positive")
	}
	return nil
}
