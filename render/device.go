// Package render is the frame-orchestration core of the engine. It owns
// the render pass graph, the per-frame command recording and submission
// protocol, and the CPU/GPU synchronization ring that bounds how far the
// CPU may race ahead of the GPU.
//
// The package is GPU-API agnostic: every device-facing concern is
// expressed as a small collaborator interface, implemented for Vulkan by
// the vulkan package and by in-memory fakes in the tests. A single
// logical frame-loop goroutine is expected to drive a Pipeline; none of
// the types here are safe for concurrent use unless stated otherwise.
package render

import "time"

// Extent is a surface size in pixels.
type Extent struct {
	Width  int
	Height int
}

// Signal is an opaque GPU-side synchronization token (a semaphore
// equivalent). Signals order queue operations against each other without
// CPU involvement; the core never inspects one, it only routes the
// surface's signals into queue submissions.
type Signal interface{}

// Fence is a CPU-observable completion signal for one submitted unit of
// GPU work.
type Fence interface {
	// Wait blocks until the fence signals. A timeout <= 0 waits
	// forever; a bounded wait that expires returns *TimeoutError.
	Wait(timeout time.Duration) error
	// Reset returns the fence to the unsignaled state.
	Reset() error
}

// RecordFlags adjust how a command stream begins recording.
type RecordFlags uint32

const (
	// RecordOneTimeSubmit marks the recording as submitted once and
	// then discarded.
	RecordOneTimeSubmit RecordFlags = 1 << iota
	// RecordSimultaneousUse allows the stream to be resubmitted while
	// still pending.
	RecordSimultaneousUse
)

// CommandStream is one backend recordable unit of GPU work. The
// Recorder enforces the begin/record/end lifecycle on top of it.
type CommandStream interface {
	Begin(flags RecordFlags) error
	End() error
	Reset() error
}

// Queue is the device queue commands are submitted to. Submit is
// asynchronous: it enqueues the stream with the given dependencies and
// returns immediately, completion is observed later through the fence.
// Any of fence, wait and signal may be nil.
type Queue interface {
	Submit(s CommandStream, fence Fence, wait, signal Signal) error
	WaitIdle() error
}

// Device creates the synchronization and recording primitives the core
// owns per frame slot.
type Device interface {
	// CreateFence makes a fence, optionally pre-signaled so the first
	// wait on a never-submitted slot does not block.
	CreateFence(signaled bool) (Fence, error)
	// NewStream allocates a command stream. Secondary streams are used
	// by worker recorders, primary streams by the frame slots.
	NewStream(secondary bool) (CommandStream, error)
	// Queue returns the graphics queue submissions go to.
	Queue() Queue
	// WaitIdle blocks until all queues on the device drain.
	WaitIdle() error
}

// Surface is the presentation collaborator: it hands out renderable
// images and displays completed ones. The surface owns one
// image-available and one render-finished signal per image; its image
// count is deliberately independent of the configured frames in flight.
type Surface interface {
	// AcquireNextImage blocks until an image is available and returns
	// its index. The surface raises the image-available signal for the
	// returned image as a queue-side dependency.
	AcquireNextImage(timeout time.Duration) (int, error)
	// Present queues the image for display, gated on its
	// render-finished signal. A failure maps to *PresentationError.
	Present(imageIndex int) error
	ImageCount() int
	Extent() Extent
	ImageAvailable(imageIndex int) Signal
	RenderFinished(imageIndex int) Signal
}

// Renderer is the application-supplied render callback, invoked once
// per tick with the frame's recorder and an opaque scene handle. The
// callback walks the pass graph with BeginPass/EndPass and
// BeginSubpass/EndSubpass and issues draw work in between. It must not
// retain the recorder past the tick.
type Renderer interface {
	Render(rec *Recorder, scene any) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(rec *Recorder, scene any) error

// Render implements Renderer.
func (f RendererFunc) Render(rec *Recorder, scene any) error { return f(rec, scene) }
