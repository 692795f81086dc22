package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/mecanicascience/waterdrop/render"
)

// Device implements render.Device over a Context. It owns the command
// pool every stream allocates from.
type Device struct {
	ctx         *Context
	commandPool core1_0.CommandPool
	queue       *Queue
}

// NewDevice creates the device facade and its command pool. The pool
// allows per-buffer reset so frame streams can be re-recorded without
// recycling the whole pool.
func NewDevice(ctx *Context) (*Device, error) {
	pool, _, err := ctx.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: ctx.graphicsFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create command pool")
	}
	d := &Device{ctx: ctx, commandPool: pool}
	d.queue = &Queue{ctx: ctx, queue: ctx.graphicsQueue}
	return d, nil
}

// CreateFence implements render.Device.
func (d *Device) CreateFence(signaled bool) (render.Fence, error) {
	info := core1_0.FenceCreateInfo{}
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	handle, _, err := d.ctx.deviceDriver.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create fence")
	}
	return &Fence{driver: d.ctx.deviceDriver, handle: handle}, nil
}

// NewStream implements render.Device.
func (d *Device) NewStream(secondary bool) (render.CommandStream, error) {
	level := core1_0.CommandBufferLevelPrimary
	if secondary {
		level = core1_0.CommandBufferLevelSecondary
	}
	buffers, _, err := d.ctx.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              level,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: allocate command buffer")
	}
	return &Stream{driver: d.ctx.deviceDriver, buffer: buffers[0]}, nil
}

// Queue implements render.Device.
func (d *Device) Queue() render.Queue { return d.queue }

// WaitIdle implements render.Device.
func (d *Device) WaitIdle() error {
	_, err := d.ctx.deviceDriver.DeviceWaitIdle()
	return err
}

// Destroy releases the command pool and its buffers.
func (d *Device) Destroy() {
	if d.commandPool.Initialized() {
		d.ctx.deviceDriver.DestroyCommandPool(d.commandPool, nil)
	}
}

// Fence implements render.Fence over a Vulkan fence.
type Fence struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Fence
}

// Wait implements render.Fence. A timeout <= 0 waits forever.
func (f *Fence) Wait(timeout time.Duration) error {
	vkTimeout := common.NoTimeout
	if timeout > 0 {
		vkTimeout = timeout
	}
	res, err := f.driver.WaitForFences(true, vkTimeout, f.handle)
	if err != nil {
		return errors.Wrap(err, "vulkan: wait for fence")
	}
	if res == core1_0.VKTimeout {
		return &render.TimeoutError{Op: "fence wait", Timeout: timeout}
	}
	return nil
}

// Reset implements render.Fence.
func (f *Fence) Reset() error {
	_, err := f.driver.ResetFences(f.handle)
	return errors.Wrap(err, "vulkan: reset fence")
}

// Destroy releases the fence.
func (f *Fence) Destroy() {
	f.driver.DestroyFence(f.handle, nil)
}

// Stream implements render.CommandStream over a Vulkan command buffer.
type Stream struct {
	driver core1_0.CoreDeviceDriver
	buffer core1_0.CommandBuffer
}

// Buffer exposes the command buffer so passes and draw code can record
// into it.
func (s *Stream) Buffer() core1_0.CommandBuffer { return s.buffer }

// Begin implements render.CommandStream.
func (s *Stream) Begin(flags render.RecordFlags) error {
	var vkFlags core1_0.CommandBufferUsageFlags
	if flags&render.RecordOneTimeSubmit != 0 {
		vkFlags |= core1_0.CommandBufferUsageOneTimeSubmit
	}
	if flags&render.RecordSimultaneousUse != 0 {
		vkFlags |= core1_0.CommandBufferUsageSimultaneousUse
	}
	_, err := s.driver.BeginCommandBuffer(s.buffer, core1_0.CommandBufferBeginInfo{Flags: vkFlags})
	return err
}

// End implements render.CommandStream.
func (s *Stream) End() error {
	_, err := s.driver.EndCommandBuffer(s.buffer)
	return err
}

// Reset implements render.CommandStream.
func (s *Stream) Reset() error {
	_, err := s.driver.ResetCommandBuffer(s.buffer, 0)
	return err
}

// Queue implements render.Queue over the context's graphics queue.
type Queue struct {
	ctx   *Context
	queue core1_0.Queue
}

// Submit implements render.Queue. Wait signals gate the color output
// stage, matching the single-pass presentation dependency the pass
// factory declares.
func (q *Queue) Submit(s render.CommandStream, fence render.Fence, wait, signal render.Signal) error {
	stream, ok := s.(*Stream)
	if !ok {
		return errors.Errorf("vulkan: foreign command stream %T", s)
	}

	info := core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{stream.buffer},
	}
	if wait != nil {
		info.WaitSemaphores = []core1_0.Semaphore{wait.(core1_0.Semaphore)}
		info.WaitDstStageMask = []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput}
	}
	if signal != nil {
		info.SignalSemaphores = []core1_0.Semaphore{signal.(core1_0.Semaphore)}
	}

	var vkFence *core1_0.Fence
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Errorf("vulkan: foreign fence %T", fence)
		}
		vkFence = &f.handle
	}

	_, err := q.ctx.deviceDriver.QueueSubmit(q.queue, vkFence, info)
	return errors.Wrap(err, "vulkan: queue submit")
}

// WaitIdle implements render.Queue.
func (q *Queue) WaitIdle() error {
	_, err := q.ctx.deviceDriver.QueueWaitIdle(q.queue)
	return errors.Wrap(err, "vulkan: queue wait idle")
}
