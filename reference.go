package gfxcore

// RefKind discriminates the variants of a Reference.
type RefKind int

const (
	RefEmpty RefKind = iota
	RefBuffer
	RefImage
	RefPrimitiveVertices
	RefPrimitiveIndices
	RefGroupBuffer
	RefGroupImage
	RefAttachment
)

// String returns the variant name.
func (k RefKind) String() string {
	switch k {
	case RefEmpty:
		return "empty"
	case RefBuffer:
		return "buffer"
	case RefImage:
		return "image"
	case RefPrimitiveVertices:
		return "primitive-vertices"
	case RefPrimitiveIndices:
		return "primitive-indices"
	case RefGroupBuffer:
		return "group-buffer"
	case RefGroupImage:
		return "group-image"
	case RefAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Reference names a byte range of some memory resource, possibly
// through a composite object. References do not own their target;
// the target must outlive every reference to it.
//
// A reference must not, directly or through composites, refer back to
// itself. Resolution assumes the reference graph is acyclic; cycles
// are the caller's responsibility to avoid.
type Reference struct {
	kind RefKind

	buffer    *Buffer
	image     *Image
	primitive *Primitive
	group     *Group
	renderer  *Renderer

	// Byte offset into the referenced range. Meaningful for
	// buffer-like variants only.
	offset uint64

	// binding and index address into a group's bindings; index also
	// holds the attachment slot for RefAttachment.
	binding int
	index   int
}

// Kind returns the reference's variant.
func (r Reference) Kind() RefKind { return r.kind }

// IsEmpty reports whether the reference targets nothing.
func (r Reference) IsEmpty() bool { return r.kind == RefEmpty }

// Offset returns the byte offset carried by the reference.
func (r Reference) Offset() uint64 { return r.offset }

// NilRef is the empty reference.
func NilRef() Reference { return Reference{} }

// BufferRef references a whole elementary buffer.
func BufferRef(b *Buffer) Reference {
	return BufferRefAt(b, 0)
}

// BufferRefAt references an elementary buffer at a byte offset.
func BufferRefAt(b *Buffer, offset uint64) Reference {
	if b == nil {
		return Reference{}
	}
	return Reference{kind: RefBuffer, buffer: b, offset: offset}
}

// ImageRef references an elementary image.
func ImageRef(i *Image) Reference {
	if i == nil {
		return Reference{}
	}
	return Reference{kind: RefImage, image: i}
}

// VerticesRef references the vertex data of a primitive at a byte
// offset into that data.
func VerticesRef(p *Primitive, offset uint64) Reference {
	if p == nil {
		return Reference{}
	}
	return Reference{kind: RefPrimitiveVertices, primitive: p, offset: offset}
}

// IndicesRef references the index data of a primitive at a byte
// offset into that data.
func IndicesRef(p *Primitive, offset uint64) Reference {
	if p == nil {
		return Reference{}
	}
	return Reference{kind: RefPrimitiveIndices, primitive: p, offset: offset}
}

// GroupBufferRef references one buffer element of a group binding at a
// byte offset into that element.
func GroupBufferRef(g *Group, binding, index int, offset uint64) Reference {
	if g == nil {
		return Reference{}
	}
	return Reference{kind: RefGroupBuffer, group: g, binding: binding, index: index, offset: offset}
}

// GroupImageRef references one image element of a group binding.
func GroupImageRef(g *Group, binding, index int) Reference {
	if g == nil {
		return Reference{}
	}
	return Reference{kind: RefGroupImage, group: g, binding: binding, index: index}
}

// AttachmentRef references a renderer attachment by slot index.
func AttachmentRef(r *Renderer, index int) Reference {
	if r == nil {
		return Reference{}
	}
	return Reference{kind: RefAttachment, renderer: r, index: index}
}
