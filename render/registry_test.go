package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistryOneRecorderPerToken(t *testing.T) {
	device := newFakeDevice()
	registry := NewRegistry(device)

	a := NewWorkerToken()
	b := NewWorkerToken()

	recA, err := registry.Recorder(a)
	if err != nil {
		t.Fatal(err)
	}
	recA2, err := registry.Recorder(a)
	if err != nil {
		t.Fatal(err)
	}
	if recA != recA2 {
		t.Error("same token produced different recorders")
	}

	recB, err := registry.Recorder(b)
	if err != nil {
		t.Fatal(err)
	}
	if recA == recB {
		t.Error("distinct tokens share a recorder")
	}
	if registry.Len() != 2 {
		t.Errorf("Len = %d, want 2", registry.Len())
	}

	// Worker recorders use secondary streams.
	for _, stream := range device.streams {
		if !stream.secondary {
			t.Error("registry allocated a primary stream")
		}
	}
}

func TestRegistryRecordAll(t *testing.T) {
	device := newFakeDevice()
	registry := NewRegistry(device)

	tokens := make([]WorkerToken, 4)
	for i := range tokens {
		tokens[i] = NewWorkerToken()
		if _, err := registry.Recorder(tokens[i]); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := make(map[WorkerToken]bool)
	err := registry.RecordAll(func(token WorkerToken, rec *Recorder) error {
		if err := rec.Begin(RecordSimultaneousUse); err != nil {
			return err
		}
		if err := rec.End(); err != nil {
			return err
		}
		mu.Lock()
		seen[token] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != len(tokens) {
		t.Errorf("recorded %d workers, want %d", len(seen), len(tokens))
	}
}

func TestRegistryRecordAllPropagatesError(t *testing.T) {
	registry := NewRegistry(newFakeDevice())
	for i := 0; i < 3; i++ {
		if _, err := registry.Recorder(NewWorkerToken()); err != nil {
			t.Fatal(err)
		}
	}

	boom := errors.New("record failed")
	var calls atomic.Int32
	err := registry.RecordAll(func(token WorkerToken, rec *Recorder) error {
		if calls.Add(1) == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RecordAll error = %v, want boom", err)
	}
}
