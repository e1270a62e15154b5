package gfxcore

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Resolution errors.
var (
	// ErrInvalidReference is returned when a reference names a target
	// that does not exist or has the wrong kind.
	ErrInvalidReference = errors.New("gfxcore: invalid reference")

	// ErrOutOfBounds is returned under BoundsReject when a resolved
	// offset falls outside its allocation.
	ErrOutOfBounds = errors.New("gfxcore: reference out of bounds")
)

// BoundsPolicy selects how Unpack treats offsets that fall outside
// the resolved allocation.
type BoundsPolicy int32

const (
	// BoundsWarn logs a warning and lets the reference through.
	BoundsWarn BoundsPolicy = iota
	// BoundsReject fails the unpack with ErrOutOfBounds.
	BoundsReject
	// BoundsIgnore lets the reference through silently.
	BoundsIgnore
)

var boundsPolicy atomic.Int32

// SetBoundsPolicy configures the global bounds policy. The default is
// BoundsWarn. Safe for concurrent use.
func SetBoundsPolicy(p BoundsPolicy) { boundsPolicy.Store(int32(p)) }

// CurrentBoundsPolicy returns the active bounds policy.
func CurrentBoundsPolicy() BoundsPolicy { return BoundsPolicy(boundsPolicy.Load()) }

func checkBounds(value, size uint64, what string) error {
	if value < size {
		return nil
	}
	switch CurrentBoundsPolicy() {
	case BoundsReject:
		return fmt.Errorf("%w: %s offset %d >= size %d", ErrOutOfBounds, what, value, size)
	case BoundsWarn:
		Logger().Warn("gfxcore: reference offset out of bounds",
			"target", what, "offset", value, "size", size)
	}
	return nil
}

// Unpacked is the terminal, elementary form of a Reference. Exactly
// one of Buffer, Image and Renderer is non-nil. Value holds the
// resolved byte offset for buffers, or the attachment slot index for
// renderers.
type Unpacked struct {
	Buffer   *Buffer
	Image    *Image
	Renderer *Renderer

	Flags MemoryFlags
	Value uint64
}

// IsEmpty reports whether the unpacked reference denotes nothing.
func (u Unpacked) IsEmpty() bool {
	return u.Buffer == nil && u.Image == nil && u.Renderer == nil
}

// Equal reports whether two unpacked references denote the same
// elementary object. Offsets are ignored; attachments compare by
// renderer and slot.
func (u Unpacked) Equal(o Unpacked) bool {
	switch {
	case u.Buffer != nil:
		return u.Buffer == o.Buffer
	case u.Image != nil:
		return u.Image == o.Image
	case u.Renderer != nil:
		return u.Renderer == o.Renderer && u.Value == o.Value
	default:
		return o.IsEmpty()
	}
}

// resolveOnce performs one resolution step. It returns the followed
// reference and whether another step may be needed. Validation
// failures return an error with the empty reference.
func resolveOnce(ref Reference) (Reference, bool, error) {
	switch ref.kind {
	case RefPrimitiveVertices:
		p := ref.primitive
		if p.numVertices == 0 {
			return Reference{}, false, fmt.Errorf("%w: primitive has no vertices", ErrInvalidReference)
		}
		if p.refVertex.IsEmpty() {
			return ref, false, nil
		}
		rec := p.refVertex
		rec.offset += ref.offset
		return rec, true, nil

	case RefPrimitiveIndices:
		p := ref.primitive
		if p.numIndices == 0 {
			return Reference{}, false, fmt.Errorf("%w: primitive has no indices", ErrInvalidReference)
		}
		if p.refIndex.IsEmpty() {
			return ref, false, nil
		}
		rec := p.refIndex
		rec.offset += ref.offset
		return rec, true, nil

	case RefGroupBuffer:
		g := ref.group
		if ref.binding < 0 || ref.binding >= len(g.bindings) {
			return Reference{}, false, fmt.Errorf("%w: group binding %d out of range", ErrInvalidReference, ref.binding)
		}
		b := &g.bindings[ref.binding]
		if b.Kind != BindingBuffer {
			return Reference{}, false, fmt.Errorf("%w: group binding %d is not buffer-typed", ErrInvalidReference, ref.binding)
		}
		if ref.index < 0 || ref.index >= len(b.Buffers) {
			return Reference{}, false, fmt.Errorf("%w: group element %d out of range", ErrInvalidReference, ref.index)
		}
		rec := b.Buffers[ref.index]
		// Elements stored in the group's own buffer are terminal;
		// the group-buffer reference itself is the elementary form.
		if rec.kind == RefBuffer && rec.buffer == g.buffer {
			return ref, false, nil
		}
		rec.offset += ref.offset
		return rec, true, nil

	case RefGroupImage:
		g := ref.group
		if ref.binding < 0 || ref.binding >= len(g.bindings) {
			return Reference{}, false, fmt.Errorf("%w: group binding %d out of range", ErrInvalidReference, ref.binding)
		}
		b := &g.bindings[ref.binding]
		if b.Kind != BindingImage {
			return Reference{}, false, fmt.Errorf("%w: group binding %d is not image-typed", ErrInvalidReference, ref.binding)
		}
		if ref.index < 0 || ref.index >= len(b.Images) {
			return Reference{}, false, fmt.Errorf("%w: group element %d out of range", ErrInvalidReference, ref.index)
		}
		rec := b.Images[ref.index]
		if rec.IsEmpty() {
			return Reference{}, false, fmt.Errorf("%w: group image element %d is unset", ErrInvalidReference, ref.index)
		}
		return rec, true, nil

	case RefAttachment:
		// Not safe against concurrent attachment mutation; callers
		// serialize renderer changes externally.
		r := ref.renderer
		if ref.index < 0 || ref.index >= len(r.attachs) {
			return Reference{}, false, fmt.Errorf("%w: attachment %d out of range", ErrInvalidReference, ref.index)
		}
		if r.attachs[ref.index].kind != AttachImage {
			return Reference{}, false, fmt.Errorf("%w: attachment %d is not an image", ErrInvalidReference, ref.index)
		}
		return ref, false, nil

	default:
		// Elementary or empty.
		return ref, false, nil
	}
}

func resolve(ref Reference) (Reference, error) {
	for {
		next, again, err := resolveOnce(ref)
		if err != nil {
			return Reference{}, err
		}
		if !again {
			return next, nil
		}
		ref = next
	}
}

// Resolve follows composite references until a terminal reference is
// produced. Validation failures are logged as warnings and yield the
// empty reference.
//
// Resolution assumes the reference graph is acyclic and must not race
// with structural mutation of the renderer's attachments.
func Resolve(ref Reference) Reference {
	out, err := resolve(ref)
	if err != nil {
		Logger().Warn("gfxcore: could not resolve reference",
			"kind", ref.kind.String(), "error", err)
		return Reference{}
	}
	return out
}

// Unpack resolves a reference and maps the terminal form to its
// elementary object with a validated offset. The empty reference
// unpacks to the empty result without error; validation failures
// return ErrInvalidReference, and out-of-bounds offsets follow the
// configured BoundsPolicy.
func Unpack(ref Reference) (Unpacked, error) {
	term, err := resolve(ref)
	if err != nil {
		return Unpacked{}, err
	}

	switch term.kind {
	case RefEmpty:
		return Unpacked{}, nil

	case RefBuffer:
		b := term.buffer
		if err := checkBounds(term.offset, b.size, "buffer"); err != nil {
			return Unpacked{}, err
		}
		return Unpacked{Buffer: b, Flags: b.flags, Value: term.offset}, nil

	case RefImage:
		i := term.image
		return Unpacked{Image: i, Flags: i.flags}, nil

	case RefPrimitiveVertices:
		p := term.primitive
		if err := checkBounds(term.offset, p.buffer.size, "primitive vertices"); err != nil {
			return Unpacked{}, err
		}
		return Unpacked{Buffer: p.buffer, Flags: p.buffer.flags, Value: term.offset}, nil

	case RefPrimitiveIndices:
		p := term.primitive
		// Index data follows the vertex region in the primitive's own
		// buffer unless the vertex data lives elsewhere.
		value := term.offset
		if p.refVertex.IsEmpty() {
			value += uint64(p.numVertices) * uint64(p.stride)
		}
		if err := checkBounds(value, p.buffer.size, "primitive indices"); err != nil {
			return Unpacked{}, err
		}
		return Unpacked{Buffer: p.buffer, Flags: p.buffer.flags, Value: value}, nil

	case RefGroupBuffer:
		g := term.group
		elem := g.bindings[term.binding].Buffers[term.index]
		value := term.offset + elem.offset
		if err := checkBounds(value, g.buffer.size, "group buffer"); err != nil {
			return Unpacked{}, err
		}
		return Unpacked{Buffer: g.buffer, Flags: g.buffer.flags, Value: value}, nil

	case RefAttachment:
		r := term.renderer
		at := &r.attachs[term.index]
		var flags MemoryFlags
		if at.image != nil {
			flags = at.image.flags
		}
		return Unpacked{Renderer: r, Flags: flags, Value: uint64(term.index)}, nil

	default:
		return Unpacked{}, fmt.Errorf("%w: unresolvable kind %s", ErrInvalidReference, term.kind)
	}
}

// RefSize returns the byte size of the range a reference names, zero
// for images, attachments and the empty reference.
func RefSize(ref Reference) uint64 {
	sub := func(size, off uint64) uint64 {
		if off >= size {
			return 0
		}
		return size - off
	}
	switch ref.kind {
	case RefBuffer:
		return sub(ref.buffer.size, ref.offset)
	case RefPrimitiveVertices:
		p := ref.primitive
		return sub(uint64(p.numVertices)*uint64(p.stride), ref.offset)
	case RefPrimitiveIndices:
		p := ref.primitive
		return sub(uint64(p.numIndices)*uint64(p.indexSize), ref.offset)
	case RefGroupBuffer:
		g := ref.group
		if ref.binding < 0 || ref.binding >= len(g.bindings) ||
			ref.index < 0 || ref.index >= len(g.bindings[ref.binding].Buffers) {
			return 0
		}
		return sub(RefSize(g.bindings[ref.binding].Buffers[ref.index]), ref.offset)
	default:
		return 0
	}
}
