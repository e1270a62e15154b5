package gfxcore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/format"
)

// Renderer errors.
var (
	// ErrRendererMismatch is returned when passes of different
	// renderers are combined.
	ErrRendererMismatch = errors.New("gfxcore: pass belongs to another renderer")
)

// AttachKind discriminates attachment slots.
type AttachKind int

const (
	AttachEmpty AttachKind = iota
	AttachImage
	AttachWindow
)

// Swapchain is a window-backed attachment resource. Swapchain
// internals (surface creation, acquire/present) live outside this
// package; the renderer only needs the format and extent to size
// passes against.
type Swapchain interface {
	Format() gputypes.TextureFormat
	Extent() (width, height uint32)
}

// attachment is one slot of a renderer's attachment vector.
type attachment struct {
	kind   AttachKind
	image  *Image
	window Swapchain
}

// Renderer owns an attachment vector and a render graph over it.
//
// The attachment vector and the graph are NOT internally locked:
// Attach, AttachWindow, Detach, AddPass and the build family must be
// serialized by the caller against each other and against any
// concurrent reference resolution touching this renderer.
type Renderer struct {
	heap    *Heap
	dev     backend.Device
	formats *format.Table

	attachs []attachment
	graph   graph

	// Backend pass objects shared between passes with identical
	// attachment layouts.
	passes *Cache[backend.Pass]
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithFormatTable overrides the format table the renderer consults.
// By default the table is built from the device's reported features.
func WithFormatTable(t *format.Table) RendererOption {
	return func(r *Renderer) { r.formats = t }
}

// NewRenderer creates a renderer allocating through the given heap.
func NewRenderer(heap *Heap, opts ...RendererOption) *Renderer {
	r := &Renderer{
		heap:   heap,
		dev:    heap.Device(),
		passes: NewCache[backend.Pass](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.formats == nil {
		r.formats = format.NewTable(r.dev.FormatFeatures)
	}
	r.graph.init(r)
	return r
}

// Formats returns the renderer's format table.
func (r *Renderer) Formats() *format.Table { return r.formats }

// NumAttachs returns the current attachment vector length.
func (r *Renderer) NumAttachs() int { return len(r.attachs) }

// AttachKindAt returns the kind of slot index, AttachEmpty when the
// index lies outside the vector.
func (r *Renderer) AttachKindAt(index int) AttachKind {
	if index < 0 || index >= len(r.attachs) {
		return AttachEmpty
	}
	return r.attachs[index].kind
}

// AttachImageAt returns the image bound at a slot, nil if none.
func (r *Renderer) AttachImageAt(index int) *Image {
	if index < 0 || index >= len(r.attachs) || r.attachs[index].kind != AttachImage {
		return nil
	}
	return r.attachs[index].image
}

// ensureAttachs grows the attachment vector to cover index.
func (r *Renderer) ensureAttachs(index int) {
	for len(r.attachs) <= index {
		r.attachs = append(r.attachs, attachment{})
	}
}

// Attach binds an image resource at a slot, replacing whatever was
// bound there. Pass state built against the old binding is destructed
// before the slot changes.
func (r *Renderer) Attach(index int, img *Image) error {
	if index < 0 {
		return fmt.Errorf("%w: negative attachment index %d", ErrInvalidReference, index)
	}
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidReference)
	}
	r.ensureAttachs(index)
	if r.attachs[index].kind != AttachEmpty {
		r.graph.destruct(index)
	}
	r.attachs[index] = attachment{kind: AttachImage, image: img}
	r.graph.invalidate()
	return nil
}

// AttachWindow binds a window-backed resource at a slot, replacing
// whatever was bound there.
func (r *Renderer) AttachWindow(index int, sw Swapchain) error {
	if index < 0 {
		return fmt.Errorf("%w: negative attachment index %d", ErrInvalidReference, index)
	}
	if sw == nil {
		return fmt.Errorf("%w: nil swapchain", ErrInvalidReference)
	}
	r.ensureAttachs(index)
	if r.attachs[index].kind != AttachEmpty {
		r.graph.destruct(index)
	}
	r.attachs[index] = attachment{kind: AttachWindow, window: sw}
	r.graph.invalidate()
	return nil
}

// Detach unbinds a slot, destructing the pass state built against it
// first. The freed resource itself stays owned by the caller or heap.
func (r *Renderer) Detach(index int) {
	if index < 0 || index >= len(r.attachs) || r.attachs[index].kind == AttachEmpty {
		return
	}
	r.graph.destruct(index)
	r.attachs[index] = attachment{}
}

// RecreateAttachment re-binds a slot in place and rebuilds the pass
// state that renders into it. For image slots the image is replaced;
// flags describe what changed.
func (r *Renderer) RecreateAttachment(index int, img *Image, flags RecreateFlags) error {
	if index < 0 || index >= len(r.attachs) || r.attachs[index].kind != AttachImage {
		return fmt.Errorf("%w: attachment %d is not an image", ErrInvalidReference, index)
	}
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidReference)
	}
	r.attachs[index].image = img
	return r.graph.rebuild(index, flags)
}

// attachFormat returns the native format a slot presents to passes.
func (r *Renderer) attachFormat(index int) gputypes.TextureFormat {
	if index < 0 || index >= len(r.attachs) {
		return gputypes.TextureFormatUndefined
	}
	switch at := &r.attachs[index]; at.kind {
	case AttachImage:
		return at.image.format
	case AttachWindow:
		return at.window.Format()
	default:
		return gputypes.TextureFormatUndefined
	}
}

// AddPass appends a pass to the render graph, depending on the given
// parent passes. All parents must belong to this renderer.
func (r *Renderer) AddPass(parents ...*Pass) (*Pass, error) {
	return r.graph.addPass(parents)
}

// NumPasses returns the number of passes in submission order.
func (r *Renderer) NumPasses() int { return len(r.graph.passes) }

// PassAt returns the pass at a submission-order position.
func (r *Renderer) PassAt(i int) *Pass { return r.graph.passes[i] }

// NumSinks returns the number of sink passes (passes without known
// children).
func (r *Renderer) NumSinks() int { return len(r.graph.sinks) }

// Sink returns the i-th sink pass.
func (r *Renderer) Sink(i int) *Pass { return r.graph.sinks[i] }

// Warmup pre-builds pass state that does not depend on attachment
// memory. Partial failure leaves the graph retryable by Build.
func (r *Renderer) Warmup() error { return r.graph.warmup() }

// Build brings the whole graph to the built state. A no-op when the
// graph is already built and nothing changed.
func (r *Renderer) Build() error { return r.graph.build() }

// Invalidate lazily marks the graph for a full re-derivation on the
// next Warmup or Build.
func (r *Renderer) Invalidate() { r.graph.invalidate() }

// Clear destroys all passes, children before parents, and empties the
// graph.
func (r *Renderer) Clear() { r.graph.clear() }
