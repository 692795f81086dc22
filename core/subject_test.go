package core

import (
	"testing"
)

func TestSubjectDeliveryOrder(t *testing.T) {
	s := NewSubject("resize")

	var order []string
	s.Subscribe(ObserverFunc(func(e Event) { order = append(order, "first") }), false)
	s.Subscribe(ObserverFunc(func(e Event) { order = append(order, "second") }), false)
	s.Subscribe(ObserverFunc(func(e Event) { order = append(order, "top") }), true)

	s.Notify(Event{Kind: EventResized})

	want := []string{"top", "first", "second"}
	if len(order) != len(want) {
		t.Fatalf("delivered %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivered %v, want %v", order, want)
		}
	}
}

func TestSubjectUnsubscribe(t *testing.T) {
	s := NewSubject("frame")

	calls := 0
	keep := 0
	h := s.Subscribe(ObserverFunc(func(e Event) { calls++ }), false)
	s.Subscribe(ObserverFunc(func(e Event) { keep++ }), false)

	s.Notify(Event{Kind: EventFrameComplete})
	s.Unsubscribe(h)
	s.Notify(Event{Kind: EventFrameComplete})

	if calls != 1 {
		t.Errorf("unsubscribed observer called %d times, want 1", calls)
	}
	if keep != 2 {
		t.Errorf("remaining observer called %d times, want 2", keep)
	}

	// Unknown handles are ignored.
	s.Unsubscribe(Handle(999))
}

func TestSubjectEventPayload(t *testing.T) {
	s := NewSubject("resize")

	var got Event
	s.Subscribe(ObserverFunc(func(e Event) { got = e }), false)
	s.Notify(Event{Kind: EventResized, Data: [2]int{1920, 1080}})

	if got.Kind != EventResized {
		t.Errorf("kind = %v, want EventResized", got.Kind)
	}
	if got.Data != [2]int{1920, 1080} {
		t.Errorf("data = %v, want extent payload", got.Data)
	}
}

func TestSubjectClear(t *testing.T) {
	s := NewSubject("x")
	calls := 0
	s.Subscribe(ObserverFunc(func(e Event) { calls++ }), false)
	s.Clear()
	s.Notify(Event{})
	if calls != 0 {
		t.Errorf("cleared observer still called %d times", calls)
	}
}

func TestHandleAllocatorUnique(t *testing.T) {
	var a HandleAllocator
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h := a.Next()
		if h == 0 {
			t.Fatal("allocator returned the zero sentinel")
		}
		if seen[h] {
			t.Fatalf("handle %d allocated twice", h)
		}
		seen[h] = true
	}
	a.Reset()
	if h := a.Next(); h != 1 {
		t.Errorf("first handle after Reset = %d, want 1", h)
	}
}
