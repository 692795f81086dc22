package render

import (
	"errors"
	"fmt"
	"testing"
)

func TestPipelineStateMachine(t *testing.T) {
	p, _, _, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("begin pass twice", func(t *testing.T) {
		if err := p.BeginPass(0); err != nil {
			t.Fatal(err)
		}
		var active *PassActiveError
		if err := p.BeginPass(0); !errors.As(err, &active) {
			t.Fatalf("expected PassActiveError, got %v", err)
		}
		if err := p.EndPass(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("begin pass out of range", func(t *testing.T) {
		var oor *OutOfRangeError
		if err := p.BeginPass(3); !errors.As(err, &oor) {
			t.Fatalf("expected OutOfRangeError, got %v", err)
		}
	})

	t.Run("subpass requires pass", func(t *testing.T) {
		var noPass *NoPassActiveError
		if err := p.BeginSubpass(0); !errors.As(err, &noPass) {
			t.Fatalf("expected NoPassActiveError, got %v", err)
		}
	})

	t.Run("subpass out of range", func(t *testing.T) {
		if err := p.BeginPass(0); err != nil {
			t.Fatal(err)
		}
		var oor *OutOfRangeError
		if err := p.BeginSubpass(1); !errors.As(err, &oor) {
			t.Fatalf("expected OutOfRangeError, got %v", err)
		}
		if err := p.EndPass(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("end pass with active subpass", func(t *testing.T) {
		if err := p.BeginPass(0); err != nil {
			t.Fatal(err)
		}
		if err := p.BeginSubpass(0); err != nil {
			t.Fatal(err)
		}
		var subActive *SubpassActiveError
		if err := p.EndPass(); !errors.As(err, &subActive) {
			t.Fatalf("expected SubpassActiveError, got %v", err)
		}
		if err := p.EndSubpass(); err != nil {
			t.Fatal(err)
		}
		if err := p.EndPass(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("end subpass without subpass", func(t *testing.T) {
		if err := p.BeginPass(0); err != nil {
			t.Fatal(err)
		}
		var noSub *NoSubpassActiveError
		if err := p.EndSubpass(); !errors.As(err, &noSub) {
			t.Fatalf("expected NoSubpassActiveError, got %v", err)
		}
		if err := p.EndPass(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("end subpass without pass", func(t *testing.T) {
		var noPass *NoPassActiveError
		if err := p.EndSubpass(); !errors.As(err, &noPass) {
			t.Fatalf("expected NoPassActiveError, got %v", err)
		}
	})
}

func TestPipelineTickSequence(t *testing.T) {
	p, device, surface, factory, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}
	p.renderer = RendererFunc(func(rec *Recorder, scene any) error {
		if err := p.BeginPass(0); err != nil {
			return err
		}
		if err := p.BeginSubpass(0); err != nil {
			return err
		}
		if err := p.EndSubpass(); err != nil {
			return err
		}
		return p.EndPass()
	})

	const ticks = 7
	var slots []int
	for i := 0; i < ticks; i++ {
		slots = append(slots, p.CurrentFrame())
		if err := p.Tick("scene"); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slots = %v, want %v", slots, want)
		}
	}

	if got := len(device.queue.submissions); got != ticks {
		t.Fatalf("submissions = %d, want %d", got, ticks)
	}
	if got := len(surface.presented); got != ticks {
		t.Fatalf("presents = %d, want %d", got, ticks)
	}
	if factory.created[0].begins != ticks || factory.created[0].ends != ticks {
		t.Errorf("pass begins/ends = %d/%d, want %d", factory.created[0].begins, factory.created[0].ends, ticks)
	}
}

func TestPipelineSubmitUsesImageIndexedSignals(t *testing.T) {
	p, device, surface, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Surface has 2 images, the ring has 3 slots; after three ticks
	// the image sequence 0,1,0 has diverged from the slot sequence
	// 0,1,2. Every submission must carry the image's signals, not the
	// slot's.
	for i := 0; i < 3; i++ {
		if err := p.Tick(nil); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	for i, sub := range device.queue.submissions {
		image := surface.acquired[i]
		if sub.wait != fmt.Sprintf("available-%d", image) {
			t.Errorf("tick %d: wait signal %v, want image %d's", i, sub.wait, image)
		}
		if sub.signal != fmt.Sprintf("finished-%d", image) {
			t.Errorf("tick %d: signal %v, want image %d's", i, sub.signal, image)
		}
		if sub.fence != device.fences[i%3] {
			t.Errorf("tick %d: fence is not slot %d's", i, i%3)
		}
	}
}

func TestPipelineTickEndToEnd(t *testing.T) {
	p, _, surface, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}
	p.renderer = RendererFunc(func(rec *Recorder, scene any) error {
		if scene != "the-scene" {
			t.Errorf("scene handle = %v, want the-scene", scene)
		}
		if !rec.Recording() {
			t.Error("recorder not recording inside callback")
		}
		if err := p.BeginPass(0); err != nil {
			return err
		}
		if err := p.BeginSubpass(0); err != nil {
			return err
		}
		if err := p.EndSubpass(); err != nil {
			return err
		}
		return p.EndPass()
	})

	before := p.CurrentFrame()
	if err := p.Tick("the-scene"); err != nil {
		t.Fatal(err)
	}
	if got := p.CurrentFrame(); got != (before+1)%3 {
		t.Errorf("frame advanced %d -> %d, want +1 mod 3", before, got)
	}
	if len(surface.presented) != 1 || surface.presented[0] != surface.acquired[0] {
		t.Errorf("presented %v, acquired %v: must present the acquired image", surface.presented, surface.acquired)
	}
}

func TestPipelineCallbackErrorResetsState(t *testing.T) {
	p, _, _, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	p.renderer = RendererFunc(func(rec *Recorder, scene any) error {
		if err := p.BeginPass(0); err != nil {
			return err
		}
		if err := p.BeginSubpass(0); err != nil {
			return err
		}
		return boom
	})

	frame := p.CurrentFrame()
	if err := p.Tick(nil); !errors.Is(err, boom) {
		t.Fatalf("tick error = %v, want wrapped boom", err)
	}
	if p.CurrentFrame() != frame {
		t.Error("frame index advanced on a failed tick")
	}

	// The state machine must be outside again: a fresh pass can begin.
	p.renderer = RendererFunc(func(rec *Recorder, scene any) error {
		if err := p.BeginPass(0); err != nil {
			return err
		}
		return p.EndPass()
	})
	if err := p.Tick(nil); err != nil {
		t.Fatalf("tick after failure: %v", err)
	}
}

func TestPipelinePresentationFailure(t *testing.T) {
	p, _, surface, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}
	surface.presentErr = &PresentationError{OutOfDate: true}

	err = p.Tick(nil)
	var presErr *PresentationError
	if !errors.As(err, &presErr) {
		t.Fatalf("expected PresentationError, got %v", err)
	}
	if !presErr.OutOfDate {
		t.Error("OutOfDate not propagated")
	}
}

func TestPipelineSlotTimeout(t *testing.T) {
	p, device, _, _, err := newTestPipeline(Config{FramesInFlight: 1, WaitTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	device.queue.holdFences = true

	if err := p.Tick(nil); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	var timeout *TimeoutError
	if err := p.Tick(nil); !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestPipelineRebuild(t *testing.T) {
	p, _, surface, factory, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}

	old := factory.created[0]
	surface.extent = Extent{Width: 1920, Height: 1080}
	if err := p.Rebuild(); err != nil {
		t.Fatal(err)
	}
	if !old.destroyed {
		t.Error("old runtime pass not destroyed on rebuild")
	}
	if len(factory.created) != 2 {
		t.Fatalf("factory created %d passes, want 2", len(factory.created))
	}
	if factory.created[1].extent != surface.extent {
		t.Errorf("rebuilt against %+v, want new extent", factory.created[1].extent)
	}
}

func TestPipelineRebuildRejectedMidPass(t *testing.T) {
	p, _, _, _, err := newTestPipeline(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.BeginPass(0); err != nil {
		t.Fatal(err)
	}
	var active *PassActiveError
	if err := p.Rebuild(); !errors.As(err, &active) {
		t.Fatalf("expected PassActiveError, got %v", err)
	}
}
