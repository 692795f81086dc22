package render

import (
	"github.com/cockroachdb/errors"
)

// AttachmentKind classifies what a pass attachment is used for.
type AttachmentKind int

const (
	// AttachmentColor is an offscreen color target.
	AttachmentColor AttachmentKind = iota
	// AttachmentDepthStencil is a depth/stencil target.
	AttachmentDepthStencil
	// AttachmentPresentation is the surface image presented at the end
	// of the frame.
	AttachmentPresentation
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentColor:
		return "color"
	case AttachmentDepthStencil:
		return "depth-stencil"
	case AttachmentPresentation:
		return "presentation"
	}
	return "unknown"
}

// Format identifies a pixel format. The concrete values are
// backend-defined; FormatSurface tells the backend to inherit the
// presentation surface's format.
type Format int32

// FormatSurface is the "inherit from surface" sentinel, valid on
// presentation attachments.
const FormatSurface Format = -1

// ClearValue is an optional attachment clear. Color holds RGBA for
// color-class attachments, Depth/Stencil the depth-stencil clear.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// Attachment describes one named image target read or written by
// passes. Attachments are declared once, before any pass structure, and
// are immutable once the graph is built. The attachment's index in the
// declared slice is its identity.
type Attachment struct {
	Label  string
	Kind   AttachmentKind
	Format Format
	Clear  *ClearValue
}

// SubpassDescription is one sub-step of a pass with its own attachment
// bindings. Indices reference the shared attachment set; there are no
// cross-pass references.
type SubpassDescription struct {
	ID      int
	Inputs  []int
	Outputs []int
}

// PassDescription declares one render pass and its ordered subpasses.
type PassDescription struct {
	ID        int
	Subpasses []SubpassDescription
}

// Pass is the runtime render pass instantiated from one structure entry
// plus the shared attachment set. It owns whatever backing resources
// the backend sized to the current surface extent; on extent change the
// whole pass list is destroyed and rebuilt, there is no incremental
// resize path.
type Pass interface {
	// Begin opens the pass on the stream and implicitly enters
	// subpass 0's GPU scope; the orchestrator still tracks subpass 0
	// explicitly.
	Begin(s CommandStream) error
	// NextSubpass advances the stream to the following subpass scope.
	NextSubpass(s CommandStream) error
	// End closes the pass on the stream.
	End(s CommandStream) error
	SubpassCount() int
	// Destroy releases the pass's backing resources.
	Destroy()
}

// PassFactory materializes runtime passes for a backend.
type PassFactory interface {
	CreatePass(attachments []Attachment, desc PassDescription, extent Extent) (Pass, error)
}

// validateStructure walks the declared passes in order and rejects any
// gap in pass or subpass numbering. A malformed graph must never reach
// the frame loop, so this fails fast at construction.
func validateStructure(attachments []Attachment, structure []PassDescription) error {
	if len(attachments) == 0 {
		return &MissingAttachmentsError{}
	}
	for i, pass := range structure {
		if pass.ID != i {
			return &StructureGapError{Pass: i, Subpass: -1}
		}
		for j, sub := range pass.Subpasses {
			if sub.ID != j {
				return &StructureGapError{Pass: i, Subpass: j}
			}
			if err := validateReferences(attachments, i, j, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateReferences checks that every attachment a subpass binds was
// declared.
func validateReferences(attachments []Attachment, passID, subID int, sub SubpassDescription) error {
	for _, refs := range [][]int{sub.Inputs, sub.Outputs} {
		for _, ref := range refs {
			if ref < 0 || ref >= len(attachments) {
				return errors.WithDetailf(
					&OutOfRangeError{Kind: "attachment", ID: ref, Count: len(attachments)},
					"referenced by pass %d subpass %d", passID, subID)
			}
		}
	}
	return nil
}
