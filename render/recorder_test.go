package render

import (
	"errors"
	"testing"
)

func newTestRecorder() (*Recorder, *fakeStream, *fakeQueue) {
	stream := &fakeStream{}
	queue := &fakeQueue{}
	return NewRecorder(stream, queue), stream, queue
}

func TestRecorderLifecycle(t *testing.T) {
	rec, stream, queue := newTestRecorder()

	if rec.State() != RecorderIdle {
		t.Fatalf("initial state = %v, want idle", rec.State())
	}
	if err := rec.Begin(0); err != nil {
		t.Fatal(err)
	}
	if !rec.Recording() {
		t.Fatal("not recording after Begin")
	}
	if err := rec.End(); err != nil {
		t.Fatal(err)
	}

	fence := &fakeFence{}
	if err := rec.Submit(fence, "wait", "signal"); err != nil {
		t.Fatal(err)
	}
	if rec.State() != RecorderSubmitted {
		t.Fatalf("state after Submit = %v, want submitted", rec.State())
	}
	if len(queue.submissions) != 1 {
		t.Fatalf("queue saw %d submissions, want 1", len(queue.submissions))
	}
	sub := queue.submissions[0]
	if sub.fence != fence || sub.wait != "wait" || sub.signal != "signal" {
		t.Errorf("submission dependencies not forwarded: %+v", sub)
	}

	if err := rec.Release(); err != nil {
		t.Fatal(err)
	}
	if rec.State() != RecorderIdle || stream.resets != 1 {
		t.Errorf("Release: state %v resets %d, want idle and 1", rec.State(), stream.resets)
	}
}

func TestRecorderRejectsWrongStates(t *testing.T) {
	rec, _, _ := newTestRecorder()

	var stateErr *RecorderStateError
	if err := rec.End(); !errors.As(err, &stateErr) {
		t.Errorf("End while idle: got %v, want RecorderStateError", err)
	}
	if err := rec.Submit(nil, nil, nil); !errors.As(err, &stateErr) {
		t.Errorf("Submit without recording: got %v, want RecorderStateError", err)
	}

	if err := rec.Begin(0); err != nil {
		t.Fatal(err)
	}
	if err := rec.Begin(0); !errors.As(err, &stateErr) {
		t.Errorf("Begin while recording: got %v, want RecorderStateError", err)
	}
	if err := rec.Submit(nil, nil, nil); !errors.As(err, &stateErr) {
		t.Errorf("Submit while recording: got %v, want RecorderStateError", err)
	}
}

func TestRecorderSubmitIdle(t *testing.T) {
	rec, _, queue := newTestRecorder()

	if err := rec.Begin(RecordOneTimeSubmit); err != nil {
		t.Fatal(err)
	}
	if err := rec.SubmitIdle(); err != nil {
		t.Fatal(err)
	}
	if rec.State() != RecorderIdle {
		t.Errorf("state after SubmitIdle = %v, want idle", rec.State())
	}
	if queue.idleWaits != 1 {
		t.Errorf("queue idle waits = %d, want 1", queue.idleWaits)
	}
	if len(queue.submissions) != 1 {
		t.Errorf("submissions = %d, want 1", len(queue.submissions))
	}
}
