package render

import (
	"time"

	"github.com/cockroachdb/errors"
)

// The error taxonomy splits into three families:
//
//   - construction-time errors (MissingAttachmentsError, StructureGapError)
//     raised while the pass graph is built; the engine must not start with
//     an invalid graph;
//   - protocol violations (PassActiveError, NoPassActiveError,
//     NoSubpassActiveError, SubpassActiveError, OutOfRangeError,
//     RecorderStateError) which indicate a caller sequencing bug and should
//     be treated as fatal by the caller;
//   - environmental errors (PresentationError, TimeoutError) surfaced from
//     Tick, which a caller may recover from by rebuilding the surface and
//     graph.

// MissingAttachmentsError reports a structure declared before any
// attachments.
type MissingAttachmentsError struct{}

func (e *MissingAttachmentsError) Error() string {
	return "render: structure declared before attachments"
}

// StructureGapError reports a hole in the declared pass or subpass
// numbering. Subpass is -1 when the gap is at the pass level.
type StructureGapError struct {
	// Pass is the id of the owning pass for a subpass gap, or the
	// missing pass id itself.
	Pass int
	// Subpass is the missing subpass id, or -1.
	Subpass int
}

func (e *StructureGapError) Error() string {
	if e.Subpass < 0 {
		return errors.Errorf("render: missing render pass with id %d", e.Pass).Error()
	}
	return errors.Errorf("render: missing subpass with id %d in render pass %d", e.Subpass, e.Pass).Error()
}

// PassActiveError reports an operation that requires no active pass or
// subpass while one has already begun: a colliding Begin call, or a
// graph rebuild attempted mid-pass (Requested == -1).
type PassActiveError struct {
	// Active is the id of the pass or subpass already begun.
	Active int
	// Requested is the id the caller tried to begin, or -1 when the
	// operation was not a begin.
	Requested int
	// Subpass is true when the collision is between subpasses.
	Subpass bool
}

func (e *PassActiveError) Error() string {
	kind := "pass"
	if e.Subpass {
		kind = "subpass"
	}
	if e.Requested < 0 {
		return errors.Errorf("render: %s %d still active", kind, e.Active).Error()
	}
	return errors.Errorf("render: cannot begin %s %d: %s %d already active", kind, e.Requested, kind, e.Active).Error()
}

// NoPassActiveError reports a subpass or end-pass operation issued
// outside of any render pass.
type NoPassActiveError struct {
	Op string
}

func (e *NoPassActiveError) Error() string {
	return errors.Errorf("render: %s outside of a render pass", e.Op).Error()
}

// NoSubpassActiveError reports EndSubpass with an active pass but no
// active subpass. The reference engine folded this into "no active
// pass"; it is kept distinct here so the two caller bugs are told apart.
type NoSubpassActiveError struct {
	Pass int
}

func (e *NoSubpassActiveError) Error() string {
	return errors.Errorf("render: no subpass active in render pass %d", e.Pass).Error()
}

// SubpassActiveError reports EndPass while a subpass is still active.
type SubpassActiveError struct {
	Pass    int
	Subpass int
}

func (e *SubpassActiveError) Error() string {
	return errors.Errorf("render: cannot end render pass %d: subpass %d still active", e.Pass, e.Subpass).Error()
}

// OutOfRangeError reports a pass or subpass id beyond the validated
// structure.
type OutOfRangeError struct {
	Kind  string // "pass" or "subpass"
	ID    int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return errors.Errorf("render: %s %d out of range (have %d)", e.Kind, e.ID, e.Count).Error()
}

// RecorderStateError reports a Recorder operation invalid in its
// current state.
type RecorderStateError struct {
	Op    string
	State RecorderState
}

func (e *RecorderStateError) Error() string {
	return errors.Errorf("render: recorder %s while %s", e.Op, e.State).Error()
}

// PresentationError reports a failed or stale presentation. OutOfDate
// marks the recoverable case: the surface and pass graph need a full
// rebuild before the next tick.
type PresentationError struct {
	OutOfDate bool
	Cause     error
}

func (e *PresentationError) Error() string {
	if e.OutOfDate {
		return "render: presentation surface out of date"
	}
	return errors.Wrap(e.Cause, "render: presentation failed").Error()
}

func (e *PresentationError) Unwrap() error { return e.Cause }

// TimeoutError reports a bounded blocking wait that expired before the
// GPU signaled.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return errors.Errorf("render: %s timed out after %s", e.Op, e.Timeout).Error()
}
