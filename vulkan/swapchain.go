package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/mecanicascience/waterdrop/render"
)

// Swapchain implements render.Surface over khr_swapchain. It owns the
// swapchain images, their views and the per-image acquire and
// render-finished semaphores.
type Swapchain struct {
	ctx *Context

	swapchain khr_swapchain.Swapchain
	images    []core1_0.Image
	views     []core1_0.ImageView
	format    core1_0.Format
	extent    core1_0.Extent2D

	// Acquire rotates through the available semaphores; lastAcquired
	// remembers which one the surface raised for each image so submit
	// can wait on the right signal.
	available    []core1_0.Semaphore
	lastAcquired []core1_0.Semaphore
	finished     []core1_0.Semaphore
	cursor       int

	// activeImage is the image index the last acquire returned; pass
	// Begin picks the matching framebuffer through it.
	activeImage int
}

// NewSwapchain builds the swapchain against the window's current
// drawable size.
func NewSwapchain(ctx *Context) (*Swapchain, error) {
	s := &Swapchain{ctx: ctx}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create() error {
	support, err := s.ctx.querySwapchainSupport(s.ctx.physicalDevice)
	if err != nil {
		return err
	}

	surfaceFormat := chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes)
	extent := s.chooseExtent(support.Capabilities)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && support.Capabilities.MaxImageCount < imageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.ctx.graphicsFamily != s.ctx.presentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, s.ctx.graphicsFamily, s.ctx.presentFamily)
	}

	swapchain, _, err := s.ctx.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "vulkan: create swapchain")
	}
	s.swapchain = swapchain
	s.format = surfaceFormat.Format
	s.extent = extent

	images, _, err := s.ctx.swapchainExtension.GetSwapchainImages(swapchain)
	if err != nil {
		return errors.Wrap(err, "vulkan: get swapchain images")
	}
	s.images = images

	for _, image := range images {
		view, _, err := s.ctx.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrap(err, "vulkan: swapchain image view")
		}
		s.views = append(s.views, view)

		availSem, _, err := s.ctx.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "vulkan: image-available semaphore")
		}
		finSem, _, err := s.ctx.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "vulkan: render-finished semaphore")
		}
		s.available = append(s.available, availSem)
		s.finished = append(s.finished, finSem)
	}
	s.lastAcquired = make([]core1_0.Semaphore, len(images))
	return nil
}

func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return availableFormats[0]
}

func choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range availablePresentModes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}
	return khr_surface.PresentModeFIFO
}

func (s *Swapchain) chooseExtent(capabilities *khr_surface.SurfaceCapabilities) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	widthInt, heightInt := s.ctx.window.VulkanGetDrawableSize()
	width := int(widthInt)
	height := int(heightInt)

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}
	return core1_0.Extent2D{Width: width, Height: height}
}

// AcquireNextImage implements render.Surface.
func (s *Swapchain) AcquireNextImage(timeout time.Duration) (int, error) {
	vkTimeout := common.NoTimeout
	if timeout > 0 {
		vkTimeout = timeout
	}

	sem := s.available[s.cursor]
	imageIndex, res, err := s.ctx.swapchainExtension.AcquireNextImage(s.swapchain, vkTimeout, &sem, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, &render.PresentationError{OutOfDate: true, Cause: err}
	}
	if res == core1_0.VKTimeout {
		return 0, &render.TimeoutError{Op: "acquire image", Timeout: timeout}
	}
	if err != nil {
		return 0, errors.Wrap(err, "vulkan: acquire next image")
	}

	s.cursor = (s.cursor + 1) % len(s.available)
	s.lastAcquired[imageIndex] = sem
	s.activeImage = imageIndex
	return imageIndex, nil
}

// Present implements render.Surface. Out-of-date and suboptimal both
// surface as a rebuild-worthy presentation error, matching how the
// frame loop treats a stale swapchain.
func (s *Swapchain) Present(imageIndex int) error {
	res, err := s.ctx.swapchainExtension.QueuePresent(s.ctx.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{s.finished[imageIndex]},
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return &render.PresentationError{OutOfDate: true, Cause: err}
	}
	if err != nil {
		return &render.PresentationError{Cause: err}
	}
	return nil
}

// ImageCount implements render.Surface.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// Extent implements render.Surface.
func (s *Swapchain) Extent() render.Extent {
	return render.Extent{Width: s.extent.Width, Height: s.extent.Height}
}

// ImageAvailable implements render.Surface.
func (s *Swapchain) ImageAvailable(imageIndex int) render.Signal {
	return s.lastAcquired[imageIndex]
}

// RenderFinished implements render.Surface.
func (s *Swapchain) RenderFinished(imageIndex int) render.Signal {
	return s.finished[imageIndex]
}

// ActiveImage returns the image index of the last successful acquire.
func (s *Swapchain) ActiveImage() int { return s.activeImage }

// Format returns the swapchain's pixel format.
func (s *Swapchain) Format() core1_0.Format { return s.format }

// ImageViews returns the per-image views, used by the pass factory for
// presentation attachments.
func (s *Swapchain) ImageViews() []core1_0.ImageView { return s.views }

// Recreate tears the swapchain down and rebuilds it against the
// window's current drawable size. The caller drains the device first
// and rebuilds the pipeline's pass graph afterwards.
func (s *Swapchain) Recreate() error {
	s.Destroy()
	s.cursor = 0
	s.activeImage = 0
	s.views = nil
	s.available = nil
	s.finished = nil
	return s.create()
}

// Minimized reports whether the window currently has a zero drawable
// area, in which case rendering should pause instead of recreating.
func (s *Swapchain) Minimized() bool {
	w, h := s.ctx.window.VulkanGetDrawableSize()
	if w == 0 || h == 0 {
		return true
	}
	return s.ctx.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0
}

// Destroy releases views, semaphores and the swapchain itself.
func (s *Swapchain) Destroy() {
	for _, view := range s.views {
		s.ctx.deviceDriver.DestroyImageView(view, nil)
	}
	for _, sem := range s.available {
		s.ctx.deviceDriver.DestroySemaphore(sem, nil)
	}
	for _, sem := range s.finished {
		s.ctx.deviceDriver.DestroySemaphore(sem, nil)
	}
	if s.swapchain.Initialized() {
		s.ctx.swapchainExtension.DestroySwapchain(s.swapchain, nil)
	}
}
