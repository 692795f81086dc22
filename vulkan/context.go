// Package vulkan backs the render package's collaborator contracts with
// vkngwrapper. It owns instance and device bootstrap, the swapchain
// presentation surface, command buffer streams and the render pass
// factory.
package vulkan

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Options configure context bootstrap.
type Options struct {
	AppName string
	// EnableValidation turns on the Khronos validation layer and the
	// debug messenger. Requires the LunarG SDK.
	EnableValidation bool
}

// queueFamilyIndices mirrors the tutorial-style family lookup.
type queueFamilyIndices struct {
	Graphics *int
	Present  *int
}

func (i *queueFamilyIndices) complete() bool {
	return i.Graphics != nil && i.Present != nil
}

type swapchainSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Context holds the Vulkan instance, device and queues a window renders
// with. It is the root object the Device, Swapchain and PassFactory
// hang off.
type Context struct {
	window *sdl.Window
	opts   Options

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension   khr_surface.ExtensionDriver
	surface            khr_surface.Surface
	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	graphicsFamily int
	presentFamily  int

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue
}

// NewContext bootstraps Vulkan for an SDL window created with
// sdl.WINDOW_VULKAN.
func NewContext(window *sdl.Window, opts Options) (*Context, error) {
	ctx := &Context{window: window, opts: opts}

	var err error
	ctx.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: load driver")
	}

	if err := ctx.createInstance(); err != nil {
		return nil, err
	}
	if err := ctx.setupDebugMessenger(); err != nil {
		return nil, err
	}
	if err := ctx.createSurface(); err != nil {
		return nil, err
	}
	if err := ctx.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := ctx.createLogicalDevice(); err != nil {
		return nil, err
	}
	ctx.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(ctx.deviceDriver)
	return ctx, nil
}

func (ctx *Context) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    ctx.opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "waterdrop",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := ctx.window.VulkanGetInstanceExtensions()
	extensions, _, err := ctx.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Errorf("vulkan: missing required instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if ctx.opts.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	layers, _, err := ctx.globalDriver.AvailableLayers()
	if err != nil {
		return err
	}

	if ctx.opts.EnableValidation {
		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Errorf("vulkan: validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.Next = ctx.debugMessengerOptions()
	}

	ctx.instanceDriver, _, err = ctx.globalDriver.CreateInstance(nil, instanceOptions)
	return err
}

func (ctx *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    ctx.logDebug,
	}
}

func (ctx *Context) setupDebugMessenger() error {
	if !ctx.opts.EnableValidation {
		return nil
	}

	var err error
	ctx.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(ctx.instanceDriver)
	ctx.debugMessenger, _, err = ctx.debugDriver.CreateDebugUtilsMessenger(nil, ctx.debugMessengerOptions())
	return err
}

func (ctx *Context) createSurface() error {
	ctx.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(ctx.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(ctx.instanceDriver.Instance(), ctx.surfaceExtension, ctx.window)
	if err != nil {
		return errors.Wrap(err, "vulkan: create window surface")
	}
	ctx.surface = surface
	return nil
}

func (ctx *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := ctx.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		if ctx.isDeviceSuitable(device) {
			ctx.physicalDevice = device
			break
		}
	}

	if !ctx.physicalDevice.Initialized() {
		return errors.Errorf("vulkan: no suitable GPU found")
	}
	return nil
}

func (ctx *Context) isDeviceSuitable(device core1_0.PhysicalDevice) bool {
	indices, err := ctx.findQueueFamilies(device)
	if err != nil {
		return false
	}

	extensionsSupported := ctx.checkDeviceExtensionSupport(device)

	var swapchainAdequate bool
	if extensionsSupported {
		support, err := ctx.querySwapchainSupport(device)
		if err != nil {
			return false
		}
		swapchainAdequate = len(support.Formats) > 0 && len(support.PresentModes) > 0
	}

	return indices.complete() && extensionsSupported && swapchainAdequate
}

func (ctx *Context) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := ctx.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}
	return true
}

func (ctx *Context) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := ctx.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.Graphics = new(int)
			*indices.Graphics = queueFamilyIdx
		}

		supported, _, err := ctx.surfaceExtension.GetPhysicalDeviceSurfaceSupport(ctx.surface, device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}
		if supported {
			indices.Present = new(int)
			*indices.Present = queueFamilyIdx
		}

		if indices.complete() {
			break
		}
	}
	return indices, nil
}

func (ctx *Context) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var details swapchainSupport
	var err error

	details.Capabilities, _, err = ctx.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(ctx.surface, device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = ctx.surfaceExtension.GetPhysicalDeviceSurfaceFormats(ctx.surface, device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = ctx.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(ctx.surface, device)
	return details, err
}

func (ctx *Context) createLogicalDevice() error {
	indices, err := ctx.findQueueFamilies(ctx.physicalDevice)
	if err != nil {
		return err
	}

	uniqueQueueFamilies := []int{*indices.Graphics}
	if uniqueQueueFamilies[0] != *indices.Present {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *indices.Present)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Keeps the device compatible with vulkan portability (MoltenVK).
	extensions, _, err := ctx.instanceDriver.EnumerateDeviceExtensionProperties(ctx.physicalDevice)
	if err != nil {
		return err
	}
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	ctx.deviceDriver, _, err = ctx.instanceDriver.CreateDevice(ctx.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	ctx.graphicsFamily = *indices.Graphics
	ctx.presentFamily = *indices.Present
	ctx.graphicsQueue = ctx.deviceDriver.GetQueue(*indices.Graphics, 0)
	ctx.presentQueue = ctx.deviceDriver.GetQueue(*indices.Present, 0)
	return nil
}

func (ctx *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

// Driver exposes the device driver for example-level resource work
// (buffers, pipelines) that sits outside the orchestration core.
func (ctx *Context) Driver() core1_0.CoreDeviceDriver { return ctx.deviceDriver }

// PhysicalDevice exposes the selected GPU.
func (ctx *Context) PhysicalDevice() core1_0.PhysicalDevice { return ctx.physicalDevice }

// InstanceDriver exposes the instance driver.
func (ctx *Context) InstanceDriver() core1_0.CoreInstanceDriver { return ctx.instanceDriver }

// Destroy tears the context down in reverse creation order. The caller
// must have destroyed swapchains and devices created from it first.
func (ctx *Context) Destroy() {
	if ctx.deviceDriver != nil {
		ctx.deviceDriver.DestroyDevice(nil)
	}
	if ctx.debugMessenger.Initialized() {
		ctx.debugDriver.DestroyDebugUtilsMessenger(ctx.debugMessenger, nil)
	}
	if ctx.surface.Initialized() {
		ctx.surfaceExtension.DestroySurface(ctx.surface, nil)
	}
	if ctx.instanceDriver != nil {
		ctx.instanceDriver.DestroyInstance(nil)
	}
}
