package render

import (
	"github.com/cockroachdb/errors"
)

// RecorderState is the lifecycle state of a Recorder.
type RecorderState int

const (
	// RecorderIdle means the recorder holds no recorded work.
	RecorderIdle RecorderState = iota
	// RecorderRecording means Begin has been called and commands may
	// be recorded.
	RecorderRecording
	// RecorderSubmitted means the recorded work sits on the queue and
	// the recorder must not be reused until its fence is observed.
	RecorderSubmitted
)

func (s RecorderState) String() string {
	switch s {
	case RecorderIdle:
		return "idle"
	case RecorderRecording:
		return "recording"
	case RecorderSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Recorder wraps one recordable unit of GPU work and enforces the
// strict begin -> record -> end -> submit lifecycle on it. A recorder
// is exclusively owned: per frame slot for the primary frame path, per
// worker token for secondary recording. It is not safe for concurrent
// use.
type Recorder struct {
	stream CommandStream
	queue  Queue
	state  RecorderState

	// recorded is set between End and Submit so an empty idle recorder
	// cannot be submitted.
	recorded bool
}

// NewRecorder wraps a backend command stream and the queue it submits
// to.
func NewRecorder(stream CommandStream, queue Queue) *Recorder {
	return &Recorder{stream: stream, queue: queue}
}

// State returns the current lifecycle state.
func (r *Recorder) State() RecorderState { return r.state }

// Recording reports whether the recorder currently accepts commands.
func (r *Recorder) Recording() bool { return r.state == RecorderRecording }

// Stream exposes the underlying backend stream so pass objects can
// record into it. Only valid while Recording.
func (r *Recorder) Stream() CommandStream { return r.stream }

// Begin starts the recording state.
func (r *Recorder) Begin(flags RecordFlags) error {
	if r.state != RecorderIdle {
		return &RecorderStateError{Op: "begin", State: r.state}
	}
	if err := r.stream.Begin(flags); err != nil {
		return errors.Wrap(err, "render: begin recording")
	}
	r.state = RecorderRecording
	r.recorded = false
	return nil
}

// End closes the recording state. The recorded work stays on the
// recorder until Submit.
func (r *Recorder) End() error {
	if r.state != RecorderRecording {
		return &RecorderStateError{Op: "end", State: r.state}
	}
	if err := r.stream.End(); err != nil {
		return errors.Wrap(err, "render: end recording")
	}
	r.state = RecorderIdle
	r.recorded = true
	return nil
}

// Submit enqueues the recorded stream to the device queue and returns
// immediately. The fence signals when the GPU completes the work; wait
// and signal order the submission against the surface's image
// lifecycle. Only valid after End.
func (r *Recorder) Submit(fence Fence, wait, signal Signal) error {
	if r.state != RecorderIdle || !r.recorded {
		return &RecorderStateError{Op: "submit", State: r.state}
	}
	if err := r.queue.Submit(r.stream, fence, wait, signal); err != nil {
		return errors.Wrap(err, "render: submit")
	}
	r.state = RecorderSubmitted
	r.recorded = false
	return nil
}

// Release returns a submitted recorder to idle. The caller must have
// observed the submission's fence first; the frame ring does this as
// part of its slot-reuse wait.
func (r *Recorder) Release() error {
	if r.state != RecorderSubmitted {
		return &RecorderStateError{Op: "release", State: r.state}
	}
	if err := r.stream.Reset(); err != nil {
		return errors.Wrap(err, "render: reset stream")
	}
	r.state = RecorderIdle
	return nil
}

// SubmitIdle ends recording if needed, submits without synchronization
// dependencies and blocks until the queue drains. It is a convenience
// for one-shot setup and teardown work and must never run inside the
// per-frame path, where it would stall the whole queue.
func (r *Recorder) SubmitIdle() error {
	if r.state == RecorderRecording {
		if err := r.End(); err != nil {
			return err
		}
	}
	if err := r.Submit(nil, nil, nil); err != nil {
		return err
	}
	if err := r.queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "render: wait queue idle")
	}
	return r.Release()
}

// WaitForQueueIdle blocks until all work on the associated queue
// completes. System-wide stall; use sparingly.
func (r *Recorder) WaitForQueueIdle() error {
	return r.queue.WaitIdle()
}
