package render

import (
	"time"

	"github.com/cockroachdb/errors"
)

// FrameRing is the fixed-size set of per-slot synchronization state
// that arbitrates GPU resource reuse across frames in flight. Each slot
// owns a completion fence and the primary recorder for that frame;
// before a slot is reused its fence must have signaled, which is the
// backpressure that bounds how far the CPU can race ahead of the GPU.
//
// Frame slots and surface images are two different index spaces: the
// slot index cycles modulo the ring length, the image index is whatever
// the surface hands out, and the surface may expose more or fewer
// images than there are slots. Fences are slot-indexed; the
// image-available and render-finished signals consumed at submit time
// are image-indexed and owned by the surface. The imagesInFlight guard
// bridges the two so an image still referenced by an older slot's
// submission is waited on before being re-targeted.
type FrameRing struct {
	fences    []Fence
	recorders []*Recorder
	current   int

	// imagesInFlight[i] is the slot fence of the last submission that
	// rendered to image i, or nil.
	imagesInFlight []Fence
}

// NewFrameRing builds a ring of length frames with signaled fences (so
// the first wait on each slot does not block) and one primary recorder
// per slot. imageCount sizes the images-in-flight guard.
func NewFrameRing(device Device, frames, imageCount int) (*FrameRing, error) {
	if frames <= 0 {
		return nil, errors.Errorf("render: frame ring length must be positive, got %d", frames)
	}
	ring := &FrameRing{
		imagesInFlight: make([]Fence, imageCount),
	}
	for i := 0; i < frames; i++ {
		fence, err := device.CreateFence(true)
		if err != nil {
			return nil, errors.Wrapf(err, "render: fence for frame slot %d", i)
		}
		stream, err := device.NewStream(false)
		if err != nil {
			return nil, errors.Wrapf(err, "render: stream for frame slot %d", i)
		}
		ring.fences = append(ring.fences, fence)
		ring.recorders = append(ring.recorders, NewRecorder(stream, device.Queue()))
	}
	return ring, nil
}

// Len returns the configured frames-in-flight count.
func (r *FrameRing) Len() int { return len(r.fences) }

// Current returns the active frame slot index.
func (r *FrameRing) Current() int { return r.current }

// Recorder returns the primary recorder owned by the active slot.
func (r *FrameRing) Recorder() *Recorder { return r.recorders[r.current] }

// Fence returns the active slot's completion fence.
func (r *FrameRing) Fence() Fence { return r.fences[r.current] }

// WaitSlot blocks until the GPU has finished the prior submission that
// used the active slot and releases the slot's recorder for reuse. The
// fence is left signaled; Arm re-arms it only once the tick is certain
// to submit, so an abandoned frame never strands the slot behind a
// fence nothing will signal.
func (r *FrameRing) WaitSlot(timeout time.Duration) error {
	if err := r.fences[r.current].Wait(timeout); err != nil {
		return err
	}
	rec := r.recorders[r.current]
	if rec.State() == RecorderSubmitted {
		if err := rec.Release(); err != nil {
			return err
		}
	}
	return nil
}

// Arm resets the active slot's fence immediately before the submission
// that will signal it.
func (r *FrameRing) Arm() error {
	return r.fences[r.current].Reset()
}

// WaitImage blocks until the submission that last rendered to the given
// image completes, then records the active slot's fence as that image's
// new owner. Needed when the surface hands back an image an older slot
// is still rendering to.
func (r *FrameRing) WaitImage(imageIndex int, timeout time.Duration) error {
	if imageIndex < 0 || imageIndex >= len(r.imagesInFlight) {
		return &OutOfRangeError{Kind: "image", ID: imageIndex, Count: len(r.imagesInFlight)}
	}
	if prior := r.imagesInFlight[imageIndex]; prior != nil && prior != r.fences[r.current] {
		if err := prior.Wait(timeout); err != nil {
			return err
		}
	}
	r.imagesInFlight[imageIndex] = r.fences[r.current]
	return nil
}

// Advance moves the active slot forward by exactly one, modulo the ring
// length. Called once per completed tick; slot reuse order is strictly
// round-robin.
func (r *FrameRing) Advance() {
	r.current = (r.current + 1) % len(r.fences)
}

// ResetImages clears the images-in-flight guard, resizing it to the
// surface's new image count. Called on surface rebuild.
func (r *FrameRing) ResetImages(imageCount int) {
	r.imagesInFlight = make([]Fence, imageCount)
}
