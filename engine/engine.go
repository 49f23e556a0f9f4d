package engine

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vkbind/engine/assets"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/buffers"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/encoder"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
	"github.com/spaghettifunk/vkbind/engine/renderer/vulkan"
	"golang.org/x/exp/slices"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Device and pools exist, no signature file is bound yet
	EngineStageBootComplete
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine owns the device-wide binding state: the device, descriptor pools,
// layout caches, the upload ring and the bound signature file. Recording
// contexts are created from it and share all of it.
type Engine struct {
	Config          *core.Config
	Device          renderer.RenderDevice
	Pools           *descriptor.GlobalPools
	PipelineLayouts *pipeline.PipelineLayoutCache
	Temporary       *buffers.TemporaryBufferSpace

	stages       metadata.ShaderStage
	assetManager *assets.AssetManager

	mu           sync.RWMutex
	currentStage Stage
	signature    *descriptor.BoundSignatureFile
	rootLayout   *pipeline.CompiledPipelineLayout
	reloads      []func(*descriptor.BoundSignatureFile)
}

// New creates the device the configuration names and everything that hangs
// off it.
func New(cfg *core.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var device renderer.RenderDevice
	switch cfg.Device.Backend {
	case core.BackendVulkan:
		d, err := vulkan.NewDevice(vulkan.Config{
			ApplicationName:    cfg.Device.ApplicationName,
			Validation:         cfg.Device.Validation,
			DescriptorSets:     cfg.Pools.DescriptorSets,
			DescriptorsPerKind: cfg.Pools.DescriptorsPerKind,
		})
		if err != nil {
			return nil, err
		}
		device = d
	default:
		device = headless.NewDevice(DeviceLimits(cfg.Limits))
	}
	e, err := NewWithDevice(cfg, device)
	if err != nil {
		_ = device.Shutdown()
		return nil, err
	}
	return e, nil
}

// NewWithDevice builds the engine on an existing device.
func NewWithDevice(cfg *core.Config, device renderer.RenderDevice) (*Engine, error) {
	if cfg.LogLevel != "" {
		if err := core.SetLogLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	stages, err := metadata.ParseShaderStages(cfg.Signature.Stages)
	if err != nil {
		return nil, fmt.Errorf("signature.stages: %w", err)
	}

	pools, err := descriptor.NewGlobalPools(device, cfg.Pools.PendingWrites)
	if err != nil {
		return nil, err
	}
	temporary, err := buffers.NewTemporaryBufferSpace(device, cfg.Temporary.Size, cfg.Temporary.Alignment)
	if err != nil {
		return nil, err
	}
	am, err := assets.NewAssetManager()
	if err != nil {
		temporary.Destroy()
		return nil, err
	}

	e := &Engine{
		Config:          cfg,
		Device:          device,
		Pools:           pools,
		PipelineLayouts: pipeline.NewPipelineLayoutCache(device),
		Temporary:       temporary,
		stages:          stages,
		assetManager:    am,
		currentStage:    EngineStageBootComplete,
	}
	am.OnChange(e.onAssetChanged)
	return e, nil
}

// DeviceLimits applies the configured overrides to the conformance minimums.
func DeviceLimits(cfg core.LimitsConfig) metadata.DeviceLimits {
	l := metadata.DefaultDeviceLimits()
	override := func(dst *uint32, v uint32) {
		if v != 0 {
			*dst = v
		}
	}
	override(&l.MaxBoundDescriptorSets, cfg.MaxBoundDescriptorSets)
	override(&l.MaxPerStageDescriptorSamplers, cfg.MaxPerStageSamplers)
	override(&l.MaxPerStageDescriptorUniformBuffers, cfg.MaxPerStageUniformBuffers)
	override(&l.MaxPerStageDescriptorStorageBuffers, cfg.MaxPerStageStorageBuffers)
	override(&l.MaxPerStageDescriptorSampledImages, cfg.MaxPerStageSampledImages)
	override(&l.MaxPerStageDescriptorStorageImages, cfg.MaxPerStageStorageImages)
	override(&l.MaxDescriptorSetSamplers, cfg.MaxDescriptorSetSamplers)
	override(&l.MaxDescriptorSetUniformBuffers, cfg.MaxDescriptorSetUniformBuffers)
	override(&l.MaxDescriptorSetStorageBuffers, cfg.MaxDescriptorSetStorageBuffers)
	override(&l.MaxDescriptorSetSampledImages, cfg.MaxDescriptorSetSampledImages)
	override(&l.MaxDescriptorSetStorageImages, cfg.MaxDescriptorSetStorageImages)
	override(&l.MaxPushConstantsSize, cfg.MaxPushConstantsSize)
	return l
}

// Initialize binds the configured signature file and, if asked to, starts
// watching it.
func (e *Engine) Initialize() error {
	path := e.Config.Signature.Path
	if path == "" {
		e.setStage(EngineStageInitialized)
		return nil
	}
	if err := e.LoadSignatureFile(path); err != nil {
		return err
	}
	if e.Config.Signature.Watch {
		if err := e.assetManager.Watch(path); err != nil {
			return err
		}
		core.LogInfo("watching %s for changes", path)
	}
	e.setStage(EngineStageInitialized)
	return nil
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.mu.Unlock()
}

func (e *Engine) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentStage
}

func (e *Engine) LoadSignatureFile(path string) error {
	asset, err := e.assetManager.Load(path)
	if err != nil {
		return err
	}
	if asset.Type != assets.AssetTypeSignature {
		return fmt.Errorf("%w: %s is a %s, not a signature file", core.ErrSignatureFile, path, asset.Type)
	}
	return e.BindSignatureFile(asset.Signature)
}

// BindSignatureFile validates file against the device, compiles its sets and
// builds the main root signature layout. On error the previous binding stays.
func (e *Engine) BindSignatureFile(file *descriptor.SignatureFile) error {
	e.mu.RLock()
	current := e.signature
	e.mu.RUnlock()

	var bound *descriptor.BoundSignatureFile
	var err error
	if current != nil && current.File.Path == file.Path {
		bound, err = current.Rebind(e.Pools, file)
	} else {
		bound, err = descriptor.NewBoundSignatureFile(e.Pools, file, e.stages)
	}
	if err != nil {
		return err
	}
	var root *pipeline.CompiledPipelineLayout
	if name := e.RootSignatureName(file); name != "" {
		root, err = e.PipelineLayouts.BuildRootSignatureLayout(bound, core.HashName(name))
		if err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.signature = bound
	e.rootLayout = root
	listeners := slices.Clone(e.reloads)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(bound)
	}
	return nil
}

// RootSignatureName is the root signature the engine builds for file.
func (e *Engine) RootSignatureName(file *descriptor.SignatureFile) string {
	if e.Config.Signature.Root != "" {
		return e.Config.Signature.Root
	}
	return file.MainRootSignature
}

// OnSignatureBound registers fn for every signature file bound after this call.
func (e *Engine) OnSignatureBound(fn func(*descriptor.BoundSignatureFile)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloads = append(e.reloads, fn)
}

func (e *Engine) onAssetChanged(asset *assets.Asset, err error) {
	if err != nil || asset.Type != assets.AssetTypeSignature {
		return
	}
	e.mu.RLock()
	current := e.signature
	e.mu.RUnlock()
	if current == nil || current.File.Path != asset.Path {
		return
	}
	if err := e.BindSignatureFile(asset.Signature); err != nil {
		core.LogError("signature file %s was not rebound: %s", asset.Path, err)
	}
}

// Signature is the bound signature file, nil until one is loaded.
func (e *Engine) Signature() *descriptor.BoundSignatureFile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.signature
}

// RootLayout is the pipeline layout of the selected root signature.
func (e *Engine) RootLayout() *pipeline.CompiledPipelineLayout {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rootLayout
}

// NewDeviceContext creates a recording context. Contexts are not safe for
// concurrent use; create one per recording goroutine.
func (e *Engine) NewDeviceContext() *encoder.DeviceContext {
	return encoder.NewDeviceContext(e.Pools, e.Temporary)
}

// NewPipelineLayoutBuilder creates a builder for the configured stages.
func (e *Engine) NewPipelineLayoutBuilder() *pipeline.PipelineLayoutBuilder {
	return pipeline.NewPipelineLayoutBuilder(e.PipelineLayouts, e.Pools.Layouts, e.stages)
}

// LoadShaderModule reads a SPIR-V file and creates its device module. The
// stage comes from the file name.
func (e *Engine) LoadShaderModule(path string, reflection metadata.ShaderReflection) (pipeline.ShaderModule, error) {
	asset, err := e.assetManager.Load(path)
	if err != nil {
		return pipeline.ShaderModule{}, err
	}
	if asset.Type != assets.AssetTypeShader {
		return pipeline.ShaderModule{}, fmt.Errorf("%s is not a shader binary", path)
	}
	return pipeline.LoadShaderModule(e.Device, asset.Stage, asset.Code, reflection)
}

// FlushDestroys releases descriptor sets and fallback buffers the GPU is done with.
func (e *Engine) FlushDestroys() {
	e.Pools.FlushDestroys()
	e.Temporary.FlushDestroys()
}

func (e *Engine) Shutdown() error {
	e.setStage(EngineStageShuttingDown)
	if err := e.assetManager.Close(); err != nil {
		core.LogWarn("failed to stop the asset watcher: %s", err)
	}
	e.FlushDestroys()
	e.Temporary.Destroy()
	if err := e.Device.Shutdown(); err != nil {
		return err
	}
	e.setStage(EngineStageUninitialized)
	return nil
}
