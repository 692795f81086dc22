package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/mecanicascience/waterdrop/render"
)

// PassFactory materializes render.Pass values over Vulkan render
// passes. Presentation attachments bind to the swapchain's images;
// color and depth attachments get dedicated backing images sized to
// the extent the factory is asked for.
type PassFactory struct {
	ctx       *Context
	swapchain *Swapchain
}

// NewPassFactory builds a factory rendering into the given swapchain.
func NewPassFactory(ctx *Context, swapchain *Swapchain) *PassFactory {
	return &PassFactory{ctx: ctx, swapchain: swapchain}
}

// Pass implements render.Pass. It owns the render pass object, one
// framebuffer per swapchain image and the backing images for
// non-presentation attachments.
type Pass struct {
	ctx       *Context
	swapchain *Swapchain

	renderPass   core1_0.RenderPass
	framebuffers []core1_0.Framebuffer
	images       []core1_0.Image
	memories     []core1_0.DeviceMemory
	views        []core1_0.ImageView

	extent       core1_0.Extent2D
	clearValues  []core1_0.ClearValue
	subpassCount int
}

// CreatePass implements render.PassFactory.
func (f *PassFactory) CreatePass(attachments []render.Attachment, desc render.PassDescription, extent render.Extent) (render.Pass, error) {
	p := &Pass{
		ctx:          f.ctx,
		swapchain:    f.swapchain,
		extent:       core1_0.Extent2D{Width: extent.Width, Height: extent.Height},
		subpassCount: len(desc.Subpasses),
	}

	formats := make([]core1_0.Format, len(attachments))
	for i, att := range attachments {
		format, err := f.resolveFormat(att)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		formats[i] = format
	}

	if err := p.createRenderPass(attachments, formats, desc); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createBackingImages(attachments, formats); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createFramebuffers(attachments); err != nil {
		p.Destroy()
		return nil, err
	}
	p.clearValues = buildClearValues(attachments)
	return p, nil
}

func (f *PassFactory) resolveFormat(att render.Attachment) (core1_0.Format, error) {
	if att.Format != render.FormatSurface {
		return core1_0.Format(att.Format), nil
	}
	switch att.Kind {
	case render.AttachmentDepthStencil:
		return f.findDepthFormat()
	default:
		return f.swapchain.Format(), nil
	}
}

func (f *PassFactory) findDepthFormat() (core1_0.Format, error) {
	return f.findSupportedFormat(
		[]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

func (f *PassFactory) findSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := f.ctx.instanceDriver.GetPhysicalDeviceFormatProperties(f.ctx.physicalDevice, format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}
	return 0, errors.Errorf("vulkan: no supported format for tiling %s, featureset %s", tiling, features)
}

func (p *Pass) createRenderPass(attachments []render.Attachment, formats []core1_0.Format, desc render.PassDescription) error {
	var descriptions []core1_0.AttachmentDescription
	for i, att := range attachments {
		loadOp := core1_0.AttachmentLoadOpDontCare
		if att.Clear != nil {
			loadOp = core1_0.AttachmentLoadOpClear
		}

		description := core1_0.AttachmentDescription{
			Format:         formats[i],
			Samples:        core1_0.Samples1,
			LoadOp:         loadOp,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
		}
		switch att.Kind {
		case render.AttachmentPresentation:
			description.FinalLayout = khr_swapchain.ImageLayoutPresentSrc
		case render.AttachmentDepthStencil:
			description.StoreOp = core1_0.AttachmentStoreOpDontCare
			description.FinalLayout = core1_0.ImageLayoutDepthStencilAttachmentOptimal
		default:
			description.FinalLayout = core1_0.ImageLayoutColorAttachmentOptimal
		}
		descriptions = append(descriptions, description)
	}

	var subpasses []core1_0.SubpassDescription
	for _, sub := range desc.Subpasses {
		subpass := core1_0.SubpassDescription{
			PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		}
		for _, ref := range sub.Inputs {
			subpass.InputAttachments = append(subpass.InputAttachments, core1_0.AttachmentReference{
				Attachment: ref,
				Layout:     core1_0.ImageLayoutShaderReadOnlyOptimal,
			})
		}
		for _, ref := range sub.Outputs {
			if attachments[ref].Kind == render.AttachmentDepthStencil {
				subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
					Attachment: ref,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				}
				continue
			}
			subpass.ColorAttachments = append(subpass.ColorAttachments, core1_0.AttachmentReference{
				Attachment: ref,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			})
		}
		subpasses = append(subpasses, subpass)
	}

	dependencies := []core1_0.SubpassDependency{
		{
			SrcSubpass: core1_0.SubpassExternal,
			DstSubpass: 0,

			SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
			SrcAccessMask: 0,

			DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
			DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
		},
	}
	// Later subpasses read the previous one's color outputs as input
	// attachments.
	for i := 1; i < len(desc.Subpasses); i++ {
		dependencies = append(dependencies, core1_0.SubpassDependency{
			SrcSubpass: i - 1,
			DstSubpass: i,

			SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
			SrcAccessMask: core1_0.AccessColorAttachmentWrite,

			DstStageMask:  core1_0.PipelineStageFragmentShader,
			DstAccessMask: core1_0.AccessInputAttachmentRead,
		})
	}

	renderPass, _, err := p.ctx.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments:         descriptions,
		Subpasses:           subpasses,
		SubpassDependencies: dependencies,
	})
	if err != nil {
		return errors.Wrapf(err, "vulkan: create render pass %d", desc.ID)
	}
	p.renderPass = renderPass
	return nil
}

// createBackingImages allocates an image, memory and view per color or
// depth attachment. Presentation attachments stay zero-valued; the
// framebuffer substitutes the swapchain's view there.
func (p *Pass) createBackingImages(attachments []render.Attachment, formats []core1_0.Format) error {
	p.images = make([]core1_0.Image, len(attachments))
	p.memories = make([]core1_0.DeviceMemory, len(attachments))
	p.views = make([]core1_0.ImageView, len(attachments))

	for i, att := range attachments {
		var usage core1_0.ImageUsageFlags
		var aspect core1_0.ImageAspectFlags
		switch att.Kind {
		case render.AttachmentPresentation:
			continue
		case render.AttachmentDepthStencil:
			usage = core1_0.ImageUsageDepthStencilAttachment
			aspect = core1_0.ImageAspectDepth
		default:
			usage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageInputAttachment
			aspect = core1_0.ImageAspectColor
		}

		image, memory, err := p.createImage(formats[i], usage)
		if err != nil {
			return errors.Wrapf(err, "vulkan: attachment %q image", att.Label)
		}
		p.images[i] = image
		p.memories[i] = memory

		view, _, err := p.ctx.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   formats[i],
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "vulkan: attachment %q view", att.Label)
		}
		p.views[i] = view
	}
	return nil
}

func (p *Pass) createImage(format core1_0.Format, usage core1_0.ImageUsageFlags) (core1_0.Image, core1_0.DeviceMemory, error) {
	image, _, err := p.ctx.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  p.extent.Width,
			Height: p.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	memReqs := p.ctx.deviceDriver.GetImageMemoryRequirements(image)
	memoryIndex, err := p.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	memory, _, err := p.ctx.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	_, err = p.ctx.deviceDriver.BindImageMemory(image, memory, 0)
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}
	return image, memory, nil
}

func (p *Pass) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := p.ctx.instanceDriver.GetPhysicalDeviceMemoryProperties(p.ctx.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}
	return 0, errors.Errorf("vulkan: no suitable memory type")
}

func (p *Pass) createFramebuffers(attachments []render.Attachment) error {
	for _, swapchainView := range p.swapchain.ImageViews() {
		views := make([]core1_0.ImageView, len(attachments))
		for i, att := range attachments {
			if att.Kind == render.AttachmentPresentation {
				views[i] = swapchainView
				continue
			}
			views[i] = p.views[i]
		}

		framebuffer, _, err := p.ctx.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  p.renderPass,
			Layers:      1,
			Attachments: views,
			Width:       p.extent.Width,
			Height:      p.extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "vulkan: create framebuffer")
		}
		p.framebuffers = append(p.framebuffers, framebuffer)
	}
	return nil
}

func buildClearValues(attachments []render.Attachment) []core1_0.ClearValue {
	values := make([]core1_0.ClearValue, len(attachments))
	for i, att := range attachments {
		if att.Kind == render.AttachmentDepthStencil {
			clear := core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0}
			if att.Clear != nil {
				clear = core1_0.ClearValueDepthStencil{Depth: att.Clear.Depth, Stencil: att.Clear.Stencil}
			}
			values[i] = clear
			continue
		}
		color := core1_0.ClearValueFloat{0, 0, 0, 1}
		if att.Clear != nil {
			color = core1_0.ClearValueFloat(att.Clear.Color)
		}
		values[i] = color
	}
	return values
}

// Begin implements render.Pass. It opens the render pass on the
// framebuffer of the surface's last acquired image.
func (p *Pass) Begin(s render.CommandStream) error {
	stream, ok := s.(*Stream)
	if !ok {
		return errors.Errorf("vulkan: foreign command stream %T", s)
	}

	return p.ctx.deviceDriver.CmdBeginRenderPass(stream.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  p.renderPass,
			Framebuffer: p.framebuffers[p.swapchain.ActiveImage()],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: p.extent,
			},
			ClearValues: p.clearValues,
		})
}

// NextSubpass implements render.Pass.
func (p *Pass) NextSubpass(s render.CommandStream) error {
	stream, ok := s.(*Stream)
	if !ok {
		return errors.Errorf("vulkan: foreign command stream %T", s)
	}
	p.ctx.deviceDriver.CmdNextSubpass(stream.buffer, core1_0.SubpassContentsInline)
	return nil
}

// End implements render.Pass.
func (p *Pass) End(s render.CommandStream) error {
	stream, ok := s.(*Stream)
	if !ok {
		return errors.Errorf("vulkan: foreign command stream %T", s)
	}
	p.ctx.deviceDriver.CmdEndRenderPass(stream.buffer)
	return nil
}

// SubpassCount implements render.Pass.
func (p *Pass) SubpassCount() int { return p.subpassCount }

// Handle exposes the render pass for graphics pipeline creation.
func (p *Pass) Handle() core1_0.RenderPass { return p.renderPass }

// Destroy implements render.Pass.
func (p *Pass) Destroy() {
	for _, framebuffer := range p.framebuffers {
		p.ctx.deviceDriver.DestroyFramebuffer(framebuffer, nil)
	}
	p.framebuffers = nil
	for _, view := range p.views {
		if view.Initialized() {
			p.ctx.deviceDriver.DestroyImageView(view, nil)
		}
	}
	p.views = nil
	for _, image := range p.images {
		if image.Initialized() {
			p.ctx.deviceDriver.DestroyImage(image, nil)
		}
	}
	p.images = nil
	for _, memory := range p.memories {
		if memory.Initialized() {
			p.ctx.deviceDriver.FreeMemory(memory, nil)
		}
	}
	p.memories = nil
	if p.renderPass.Initialized() {
		p.ctx.deviceDriver.DestroyRenderPass(p.renderPass, nil)
		p.renderPass = core1_0.RenderPass{}
	}
}
