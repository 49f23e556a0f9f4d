package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// A single family handles graphics, compute and transfer.
	QueueIndex int32
	Queue      vk.Queue

	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics          bool
	Compute           bool
	SamplerAnisotropy bool
	DiscreteGPU       bool
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// InstanceCreate loads the Vulkan loader and creates an instance without any
// surface extensions.
func InstanceCreate(context *VulkanContext, applicationName string, validation bool) error {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("%w: vulkan loader not found: %v", core.ErrDeviceFailure, err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("%w: vulkan init: %v", core.ErrDeviceFailure, err)
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   VulkanSafeString(applicationName),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PEngineName:        VulkanSafeString("vkbind"),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
	}

	extensions := []string{}
	layers := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration")
	}
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, validationLayer)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}
	if runtime.GOOS == "darwin" {
		createInfo.Flags = vk.InstanceCreateFlags(0x00000001) // ENUMERATE_PORTABILITY
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&createInfo, context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("%w: vulkan instance init: %v", core.ErrDeviceFailure, err)
	}
	context.Instance = instance
	core.LogInfo("Vulkan instance created.")

	if validation {
		dbgCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check(vk.CreateDebugReportCallback(instance, &dbgCreateInfo, context.Allocator, &dbg), "vkCreateDebugReportCallback"); err != nil {
			return err
		}
		context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func InstanceDestroy(context *VulkanContext) {
	if context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}
	if context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// DeviceCreate selects a physical device and creates the logical device, its
// queue and command pool.
func DeviceCreate(context *VulkanContext) error {
	context.Device = &VulkanDevice{QueueIndex: -1}
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.QueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if context.Device.Features.SamplerAnisotropy == vk.True {
		deviceFeatures.SamplerAnisotropy = vk.True
	}

	extensionNames := []string{}
	if hasDeviceExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if err := check(vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical), "vkCreateDevice"); err != nil {
		return err
	}
	context.Device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(logical, uint32(context.Device.QueueIndex), 0, &queue)
	context.Device.Queue = queue
	context.Locks.SetQueueFamily(uint32(context.Device.QueueIndex))

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.QueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(logical, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return err
	}
	context.Device.CommandPool = pool
	core.LogInfo("Command pool created.")

	if !DeviceDetectDepthFormat(context.Device) {
		return fmt.Errorf("%w: no supported depth format", core.ErrDeviceFailure)
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.Queue = nil

	if context.Device.CommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.CommandPool, context.Allocator)
		context.Device.CommandPool = nil
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.QueueIndex = -1
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		ext := available[i].ExtensionName[:]
		if string(ext[:FindFirstZeroInByteArray(ext)]) == name {
			return true
		}
	}
	return false
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if (vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures) & flags) == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if err := check(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrDeviceFailure)
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:    true,
		Compute:     true,
		DiscreteGPU: true,
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	// first pass insists on a discrete GPU, the second takes anything
	for pass := 0; pass < 2; pass++ {
		for _, physical := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physical, &properties)
			properties.Deref()
			properties.Limits.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physical, &features)
			features.Deref()

			queueIndex, ok := PhysicalDeviceMeetsRequirements(physical, &properties, &features, &requirements)
			if !ok {
				continue
			}

			name := properties.DeviceName[:]
			core.LogInfo("Selected device: '%s'.", string(name[:FindFirstZeroInByteArray(name)]))
			switch properties.DeviceType {
			case vk.PhysicalDeviceTypeIntegratedGpu:
				core.LogInfo("GPU type is Integrated.")
			case vk.PhysicalDeviceTypeDiscreteGpu:
				core.LogInfo("GPU type is Discrete.")
			case vk.PhysicalDeviceTypeVirtualGpu:
				core.LogInfo("GPU type is Virtual.")
			case vk.PhysicalDeviceTypeCpu:
				core.LogInfo("GPU type is CPU.")
			default:
				core.LogInfo("GPU type is Unknown.")
			}
			core.LogInfo(
				"Vulkan API version: %d.%d.%d",
				vk.Version.Major(vk.Version(properties.ApiVersion)),
				vk.Version.Minor(vk.Version(properties.ApiVersion)),
				vk.Version.Patch(vk.Version(properties.ApiVersion)),
			)

			context.Device.PhysicalDevice = physical
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.QueueIndex = queueIndex
			return nil
		}
		requirements.DiscreteGPU = false
	}
	return fmt.Errorf("%w: no physical device meets the requirements", core.ErrDeviceFailure)
}

// PhysicalDeviceMeetsRequirements returns the queue family to use when the
// device qualifies.
func PhysicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	properties *vk.PhysicalDeviceProperties,
	features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements,
) (int32, bool) {
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		return -1, false
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy != vk.True {
		return -1, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	families := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, families)

	var wanted vk.QueueFlagBits
	if requirements.Graphics {
		wanted |= vk.QueueGraphicsBit
	}
	if requirements.Compute {
		wanted |= vk.QueueComputeBit
	}
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&wanted == wanted {
			return int32(i), true
		}
	}
	return -1, false
}

// deviceLimits reads the descriptor related limits of the selected device.
func deviceLimits(device *VulkanDevice) metadata.DeviceLimits {
	l := device.Properties.Limits
	return metadata.DeviceLimits{
		MaxBoundDescriptorSets:              l.MaxBoundDescriptorSets,
		MaxPerStageDescriptorSamplers:       l.MaxPerStageDescriptorSamplers,
		MaxPerStageDescriptorUniformBuffers: l.MaxPerStageDescriptorUniformBuffers,
		MaxPerStageDescriptorStorageBuffers: l.MaxPerStageDescriptorStorageBuffers,
		MaxPerStageDescriptorSampledImages:  l.MaxPerStageDescriptorSampledImages,
		MaxPerStageDescriptorStorageImages:  l.MaxPerStageDescriptorStorageImages,
		MaxDescriptorSetSamplers:            l.MaxDescriptorSetSamplers,
		MaxDescriptorSetUniformBuffers:      l.MaxDescriptorSetUniformBuffers,
		MaxDescriptorSetStorageBuffers:      l.MaxDescriptorSetStorageBuffers,
		MaxDescriptorSetSampledImages:       l.MaxDescriptorSetSampledImages,
		MaxDescriptorSetStorageImages:       l.MaxDescriptorSetStorageImages,
		MaxPushConstantsSize:                l.MaxPushConstantsSize,
		MinUniformBufferOffsetAlignment:     uint64(l.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment:     uint64(l.MinStorageBufferOffsetAlignment),
	}
}
