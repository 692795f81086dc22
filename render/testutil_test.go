package render

import (
	"fmt"
	"time"
)

// The fakes below stand in for a GPU backend: submission "completes"
// instantly by signaling the fence, so multi-tick sequences can run
// without a device.

type fakeFence struct {
	signaled bool
	waits    int
	resets   int
}

func (f *fakeFence) Wait(timeout time.Duration) error {
	if !f.signaled {
		if timeout > 0 {
			return &TimeoutError{Op: "fence wait", Timeout: timeout}
		}
		return fmt.Errorf("fake fence: unbounded wait on unsignaled fence")
	}
	f.waits++
	return nil
}

func (f *fakeFence) Reset() error {
	f.signaled = false
	f.resets++
	return nil
}

type fakeStream struct {
	secondary bool
	begun     int
	ended     int
	resets    int
	beginErr  error
}

func (s *fakeStream) Begin(flags RecordFlags) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	s.begun++
	return nil
}

func (s *fakeStream) End() error {
	s.ended++
	return nil
}

func (s *fakeStream) Reset() error {
	s.resets++
	return nil
}

type submission struct {
	stream CommandStream
	fence  Fence
	wait   Signal
	signal Signal
}

type fakeQueue struct {
	submissions []submission
	// holdFences leaves fences unsignaled after submit, emulating GPU
	// work that never finishes.
	holdFences bool
	submitErr  error
	idleWaits  int
}

func (q *fakeQueue) Submit(s CommandStream, fence Fence, wait, signal Signal) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submissions = append(q.submissions, submission{stream: s, fence: fence, wait: wait, signal: signal})
	if fence != nil && !q.holdFences {
		fence.(*fakeFence).signaled = true
	}
	return nil
}

func (q *fakeQueue) WaitIdle() error {
	q.idleWaits++
	return nil
}

type fakeDevice struct {
	queue     *fakeQueue
	fences    []*fakeFence
	streams   []*fakeStream
	idleWaits int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{queue: &fakeQueue{}}
}

func (d *fakeDevice) CreateFence(signaled bool) (Fence, error) {
	f := &fakeFence{signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) NewStream(secondary bool) (CommandStream, error) {
	s := &fakeStream{secondary: secondary}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) Queue() Queue { return d.queue }

func (d *fakeDevice) WaitIdle() error {
	d.idleWaits++
	return nil
}

type fakeSurface struct {
	images     int
	extent     Extent
	next       int
	acquired   []int
	presented  []int
	presentErr error
	acquireErr error
}

func newFakeSurface(images int) *fakeSurface {
	return &fakeSurface{images: images, extent: Extent{Width: 800, Height: 600}}
}

func (s *fakeSurface) AcquireNextImage(timeout time.Duration) (int, error) {
	if s.acquireErr != nil {
		return 0, s.acquireErr
	}
	idx := s.next
	s.next = (s.next + 1) % s.images
	s.acquired = append(s.acquired, idx)
	return idx, nil
}

func (s *fakeSurface) Present(imageIndex int) error {
	if s.presentErr != nil {
		return s.presentErr
	}
	s.presented = append(s.presented, imageIndex)
	return nil
}

func (s *fakeSurface) ImageCount() int { return s.images }

func (s *fakeSurface) Extent() Extent { return s.extent }

func (s *fakeSurface) ImageAvailable(imageIndex int) Signal {
	return fmt.Sprintf("available-%d", imageIndex)
}

func (s *fakeSurface) RenderFinished(imageIndex int) Signal {
	return fmt.Sprintf("finished-%d", imageIndex)
}

type fakePass struct {
	desc      PassDescription
	extent    Extent
	begins    int
	ends      int
	advances  int
	destroyed bool
}

func (p *fakePass) Begin(s CommandStream) error {
	p.begins++
	return nil
}

func (p *fakePass) NextSubpass(s CommandStream) error {
	p.advances++
	return nil
}

func (p *fakePass) End(s CommandStream) error {
	p.ends++
	return nil
}

func (p *fakePass) SubpassCount() int { return len(p.desc.Subpasses) }

func (p *fakePass) Destroy() { p.destroyed = true }

type fakeFactory struct {
	created   []*fakePass
	createErr error
}

func (f *fakeFactory) CreatePass(attachments []Attachment, desc PassDescription, extent Extent) (Pass, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	p := &fakePass{desc: desc, extent: extent}
	f.created = append(f.created, p)
	return p, nil
}

// testAttachments is the minimal depth + presentation attachment set
// used across the pipeline tests.
func testAttachments() []Attachment {
	return []Attachment{
		{Label: "depth", Kind: AttachmentDepthStencil, Format: 1},
		{Label: "swapchain", Kind: AttachmentPresentation, Format: FormatSurface},
	}
}

// newTestPipeline builds a pipeline over fakes with one pass holding
// one subpass writing both attachments.
func newTestPipeline(cfg Config) (*Pipeline, *fakeDevice, *fakeSurface, *fakeFactory, error) {
	device := newFakeDevice()
	surface := newFakeSurface(2)
	factory := &fakeFactory{}
	p, err := NewPipeline(cfg, device, surface, factory, RendererFunc(func(rec *Recorder, scene any) error {
		return nil
	}))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := p.SetAttachments(testAttachments()); err != nil {
		return nil, nil, nil, nil, err
	}
	err = p.SetStructure([]PassDescription{
		{ID: 0, Subpasses: []SubpassDescription{{ID: 0, Outputs: []int{0, 1}}}},
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return p, device, surface, factory, nil
}
