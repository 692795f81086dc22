package render

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/mecanicascience/waterdrop/core"
)

// Config carries the orchestrator's knobs.
type Config struct {
	// FramesInFlight sizes the frame synchronization ring. Defaults
	// to 3.
	FramesInFlight int
	// WaitTimeout bounds every blocking wait (slot fences, image
	// acquisition). Zero or negative waits forever.
	WaitTimeout time.Duration
}

const defaultFramesInFlight = 3

// Pipeline is the top-level frame driver. It owns the validated pass
// graph and its runtime passes, the frame synchronization ring and the
// current frame counter, executes the per-frame tick and exposes the
// begin/end pass and subpass protocol to the render callback.
//
// One pipeline has exactly one pass/subpass state machine and it is not
// reentrant: a single frame-loop goroutine drives Tick, and nested or
// interleaved pass sequences are protocol errors, not races to lock
// around.
type Pipeline struct {
	cfg      Config
	device   Device
	surface  Surface
	factory  PassFactory
	renderer Renderer

	attachments []Attachment
	structure   []PassDescription
	passes      []Pass

	ring *FrameRing

	// Active pass/subpass ids; -1 means none.
	currentPass    int
	currentSubpass int

	frameStart time.Duration
	lastFrame  time.Duration
}

// NewPipeline wires the orchestrator to its collaborators. The render
// callback is injected here once; there is no pipeline subclassing.
func NewPipeline(cfg Config, device Device, surface Surface, factory PassFactory, renderer Renderer) (*Pipeline, error) {
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = defaultFramesInFlight
	}
	ring, err := NewFrameRing(device, cfg.FramesInFlight, surface.ImageCount())
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:            cfg,
		device:         device,
		surface:        surface,
		factory:        factory,
		renderer:       renderer,
		ring:           ring,
		currentPass:    -1,
		currentSubpass: -1,
	}, nil
}

// SetAttachments stores the attachment set the structure will bind.
// Must run before SetStructure.
func (p *Pipeline) SetAttachments(attachments []Attachment) error {
	if len(p.structure) > 0 && len(p.attachments) == 0 {
		return &MissingAttachmentsError{}
	}
	p.attachments = attachments
	return nil
}

// SetStructure validates the declarative pass list and materializes one
// runtime pass per entry, in order, against the current surface extent.
// Ids must be dense and zero-based at both levels; any gap is a
// construction-time defect and the frame loop never sees the graph.
func (p *Pipeline) SetStructure(structure []PassDescription) error {
	if err := validateStructure(p.attachments, structure); err != nil {
		return err
	}
	passes, err := p.materialize(structure)
	if err != nil {
		return err
	}
	p.destroyPasses()
	p.structure = structure
	p.passes = passes
	return nil
}

func (p *Pipeline) materialize(structure []PassDescription) ([]Pass, error) {
	extent := p.surface.Extent()
	passes := make([]Pass, 0, len(structure))
	for _, desc := range structure {
		pass, err := p.factory.CreatePass(p.attachments, desc, extent)
		if err != nil {
			for _, built := range passes {
				built.Destroy()
			}
			return nil, errors.Wrapf(err, "render: materialize pass %d", desc.ID)
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

// PassCount returns the number of runtime passes.
func (p *Pipeline) PassCount() int { return len(p.passes) }

// Pass returns the materialized runtime pass with the given id, so
// callers can build pass-scoped resources like graphics pipelines
// against it. The returned value is invalidated by Rebuild.
func (p *Pipeline) Pass(id int) (Pass, error) {
	if id < 0 || id >= len(p.passes) {
		return nil, &OutOfRangeError{Kind: "pass", ID: id, Count: len(p.passes)}
	}
	return p.passes[id], nil
}

// CurrentFrame returns the active frame slot index.
func (p *Pipeline) CurrentFrame() int { return p.ring.Current() }

// LastFrameTime returns the duration of the previous completed tick.
func (p *Pipeline) LastFrameTime() time.Duration { return p.lastFrame }

// Tick renders one frame: acquire the next surface image, wait out the
// active slot's prior GPU work, record through the render callback,
// submit gated on the image's signals, present and advance the frame
// counter. On any mid-tick failure the frame's output is abandoned and
// the pass/subpass state is forced back to outside so the next tick
// starts clean; no partial rollback is attempted.
func (p *Pipeline) Tick(scene any) error {
	p.frameStart = hrtime.Now()
	err := p.tick(scene)
	if err != nil {
		p.abandonFrame()
		return err
	}
	p.lastFrame = hrtime.Now() - p.frameStart
	return nil
}

func (p *Pipeline) tick(scene any) error {
	imageIndex, err := p.surface.AcquireNextImage(p.cfg.WaitTimeout)
	if err != nil {
		return err
	}

	// Backpressure: the slot's fence must have signaled before its
	// recorder or any slot-owned resource is touched again.
	if err := p.ring.WaitSlot(p.cfg.WaitTimeout); err != nil {
		return err
	}

	rec := p.ring.Recorder()
	if !rec.Recording() {
		if err := rec.Begin(0); err != nil {
			return err
		}
	}

	if err := p.renderer.Render(rec, scene); err != nil {
		return errors.Wrap(err, "render: render callback")
	}

	// The surface may hand back an image an older slot is still
	// rendering to; wait that submission out before re-targeting it.
	if err := p.ring.WaitImage(imageIndex, p.cfg.WaitTimeout); err != nil {
		return err
	}

	if err := rec.End(); err != nil {
		return err
	}
	// Re-arm the slot fence only now that submission is certain; an
	// abandoned tick leaves it signaled so the slot stays reusable.
	if err := p.ring.Arm(); err != nil {
		return err
	}
	if err := rec.Submit(p.ring.Fence(), p.surface.ImageAvailable(imageIndex), p.surface.RenderFinished(imageIndex)); err != nil {
		return err
	}

	if err := p.surface.Present(imageIndex); err != nil {
		return err
	}

	p.ring.Advance()
	return nil
}

// abandonFrame forces the pass/subpass state machine back to outside
// and closes a half-recorded stream. The frame's output is lost; GPU
// state stays consistent because nothing was submitted.
func (p *Pipeline) abandonFrame() {
	p.currentPass = -1
	p.currentSubpass = -1
	rec := p.ring.Recorder()
	if rec.Recording() {
		_ = rec.End()
	}
}

// BeginPass opens the runtime pass with the given id on the active
// frame's recorder.
func (p *Pipeline) BeginPass(id int) error {
	if p.currentPass != -1 {
		return &PassActiveError{Active: p.currentPass, Requested: id}
	}
	if id < 0 || id >= len(p.passes) {
		return &OutOfRangeError{Kind: "pass", ID: id, Count: len(p.passes)}
	}
	if err := p.passes[id].Begin(p.ring.Recorder().Stream()); err != nil {
		return err
	}
	p.currentPass = id
	return nil
}

// EndPass closes the active pass. The active subpass must have ended
// first.
func (p *Pipeline) EndPass() error {
	if p.currentPass == -1 {
		return &NoPassActiveError{Op: "end pass"}
	}
	if p.currentSubpass != -1 {
		return &SubpassActiveError{Pass: p.currentPass, Subpass: p.currentSubpass}
	}
	if err := p.passes[p.currentPass].End(p.ring.Recorder().Stream()); err != nil {
		return err
	}
	p.currentPass = -1
	return nil
}

// BeginSubpass enters the given subpass of the active pass. Subpass 0's
// GPU scope opens with the pass itself; later subpasses advance the
// stream.
func (p *Pipeline) BeginSubpass(id int) error {
	if p.currentPass == -1 {
		return &NoPassActiveError{Op: "begin subpass"}
	}
	if p.currentSubpass != -1 {
		return &PassActiveError{Active: p.currentSubpass, Requested: id, Subpass: true}
	}
	if id < 0 || id >= p.passes[p.currentPass].SubpassCount() {
		return &OutOfRangeError{Kind: "subpass", ID: id, Count: p.passes[p.currentPass].SubpassCount()}
	}
	if id > 0 {
		if err := p.passes[p.currentPass].NextSubpass(p.ring.Recorder().Stream()); err != nil {
			return err
		}
	}
	p.currentSubpass = id
	return nil
}

// EndSubpass leaves the active subpass. Unlike the reference engine,
// "no pass active" and "no subpass active inside the active pass" are
// distinct errors here.
func (p *Pipeline) EndSubpass() error {
	if p.currentPass == -1 {
		return &NoPassActiveError{Op: "end subpass"}
	}
	if p.currentSubpass == -1 {
		return &NoSubpassActiveError{Pass: p.currentPass}
	}
	p.currentSubpass = -1
	return nil
}

// Rebuild discards every runtime pass and re-materializes the validated
// structure against the surface's current extent, then resets the
// images-in-flight guard to the surface's image count. Only legal while
// no pass or subpass is active and no frame is mid-submission; callers
// drain the device before swapping the surface out underneath us.
func (p *Pipeline) Rebuild() error {
	if p.currentPass != -1 {
		return &PassActiveError{Active: p.currentPass, Requested: -1}
	}
	passes, err := p.materialize(p.structure)
	if err != nil {
		return err
	}
	p.destroyPasses()
	p.passes = passes
	p.ring.ResetImages(p.surface.ImageCount())
	return nil
}

func (p *Pipeline) destroyPasses() {
	for _, pass := range p.passes {
		pass.Destroy()
	}
	p.passes = nil
}

// Destroy drains the device and releases the runtime passes. The
// pipeline is unusable afterwards.
func (p *Pipeline) Destroy() error {
	if err := p.device.WaitIdle(); err != nil {
		return err
	}
	p.destroyPasses()
	return nil
}

// OnNotify lets the pipeline sit on a core.Subject feed: a resize event
// triggers the wholesale pass rebuild. Other events are ignored.
func (p *Pipeline) OnNotify(event core.Event) {
	if event.Kind != core.EventResized {
		return
	}
	_ = p.device.WaitIdle()
	_ = p.Rebuild()
}
