// Package core carries the small cross-cutting pieces of the engine:
// the event subject used to decouple modules and the handle allocator
// that backs it.
package core

// EventKind discriminates event payloads.
type EventKind int

const (
	// EventResized is published when the presentation surface changes
	// extent. Data holds the publisher-defined extent value.
	EventResized EventKind = iota
	// EventFrameComplete is published after a frame tick fully completes.
	EventFrameComplete
)

// Event is the payload delivered to observers.
type Event struct {
	Kind EventKind
	Data any
}

// Observer receives events published by a Subject.
type Observer interface {
	OnNotify(event Event)
}

// Handle identifies one subscription on a Subject.
type Handle uint64

type subscription struct {
	handle   Handle
	observer Observer
}

// Subject is an ordered publish/subscribe registry. Observers are
// notified in subscription order; Subscribe with pushTop prepends the
// observer so it is notified first. Subscriptions are addressed by
// Handle, so unsubscribing never depends on observer identity.
//
// A Subject is not safe for concurrent use; the engine drives all
// notification from the frame-loop goroutine.
type Subject struct {
	label   string
	handles HandleAllocator
	subs    []subscription
}

// NewSubject creates a subject with a debug label.
func NewSubject(label string) *Subject {
	return &Subject{label: label}
}

// Label returns the identification label of the subject.
func (s *Subject) Label() string { return s.label }

// Subscribe registers an observer and returns its subscription handle.
func (s *Subject) Subscribe(obs Observer, pushTop bool) Handle {
	sub := subscription{handle: s.handles.Next(), observer: obs}
	if pushTop {
		s.subs = append([]subscription{sub}, s.subs...)
	} else {
		s.subs = append(s.subs, sub)
	}
	return sub.handle
}

// Unsubscribe removes the subscription with the given handle. Unknown
// handles are ignored.
func (s *Subject) Unsubscribe(h Handle) {
	for i, sub := range s.subs {
		if sub.handle == h {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Clear drops every subscription.
func (s *Subject) Clear() {
	s.subs = nil
}

// Notify delivers the event to every subscribed observer in order.
func (s *Subject) Notify(event Event) {
	for _, sub := range s.subs {
		if sub.observer != nil {
			sub.observer.OnNotify(event)
		}
	}
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// OnNotify implements Observer.
func (f ObserverFunc) OnNotify(event Event) { f(event) }
