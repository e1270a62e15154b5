package gfxcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BindingKind discriminates buffer-typed from image-typed group
// bindings.
type BindingKind int

const (
	BindingBuffer BindingKind = iota
	BindingImage
)

// GroupBinding is one named slot of a group: an array of buffer or
// image references, addressed by element index.
type GroupBinding struct {
	Kind BindingKind

	// Buffers holds the element references of a buffer-typed binding.
	// Elements referencing the group's own buffer mark data stored in
	// the group allocation itself.
	Buffers []Reference

	// Images holds the element references of an image-typed binding.
	Images []Reference
}

// Group is a composite resource bundle: a set of bindings backed
// either by the group's own buffer or by external resources.
type Group struct {
	heap   *Heap
	buffer *Buffer

	bindings []GroupBinding
}

// NumBindings returns the binding count.
func (g *Group) NumBindings() int { return len(g.bindings) }

// Buffer returns the group's internal buffer, nil when every element
// is external.
func (g *Group) Buffer() *Buffer { return g.buffer }

// BufferAt references a buffer element of the group.
func (g *Group) BufferAt(binding, index int, offset uint64) Reference {
	return GroupBufferRef(g, binding, index, offset)
}

// ImageAt references an image element of the group.
func (g *Group) ImageAt(binding, index int) Reference {
	return GroupImageRef(g, binding, index)
}

// GroupBindingDesc describes one binding of a group allocation.
// Buffer-typed bindings with ElemSize > 0 and no external references
// store Count elements of ElemSize bytes in the group's own buffer.
type GroupBindingDesc struct {
	Kind     BindingKind
	Count    int
	ElemSize uint64

	// Refs optionally supplies external references for the binding's
	// elements. Unset (empty) entries of a buffer-typed binding fall
	// back to internal storage.
	Refs []Reference
}

// GroupDesc describes a group allocation.
type GroupDesc struct {
	Flags    MemoryFlags
	Usage    gputypes.BufferUsage
	Bindings []GroupBindingDesc
}

// AllocGroup allocates a group. Internal buffer-typed elements are
// packed into one shared allocation, in binding order.
func (h *Heap) AllocGroup(desc GroupDesc) (*Group, error) {
	if len(desc.Bindings) == 0 {
		return nil, fmt.Errorf("gfxcore: group needs bindings: %w", ErrZeroSize)
	}

	g := &Group{heap: h, bindings: make([]GroupBinding, len(desc.Bindings))}

	// First pass: total internal storage.
	var size uint64
	for bi, bd := range desc.Bindings {
		if bd.Count <= 0 {
			return nil, fmt.Errorf("gfxcore: group binding %d has no elements: %w", bi, ErrZeroSize)
		}
		if bd.Kind != BindingBuffer {
			continue
		}
		for e := 0; e < bd.Count; e++ {
			if e < len(bd.Refs) && !bd.Refs[e].IsEmpty() {
				continue
			}
			if bd.ElemSize == 0 {
				return nil, fmt.Errorf("gfxcore: group binding %d element %d needs a size or a reference", bi, e)
			}
			size += bd.ElemSize
		}
	}

	if size > 0 {
		buf, err := h.allocBuffer("group-buffer", desc.Flags, desc.Usage, size)
		if err != nil {
			return nil, err
		}
		g.buffer = buf
	}

	// Second pass: materialize element references. Internal elements
	// point at the group's own buffer at their packed offset.
	var offset uint64
	for bi, bd := range desc.Bindings {
		b := GroupBinding{Kind: bd.Kind}
		switch bd.Kind {
		case BindingBuffer:
			b.Buffers = make([]Reference, bd.Count)
			for e := 0; e < bd.Count; e++ {
				if e < len(bd.Refs) && !bd.Refs[e].IsEmpty() {
					b.Buffers[e] = bd.Refs[e]
					continue
				}
				b.Buffers[e] = BufferRefAt(g.buffer, offset)
				offset += bd.ElemSize
			}
		case BindingImage:
			b.Images = make([]Reference, bd.Count)
			copy(b.Images, bd.Refs)
		}
		g.bindings[bi] = b
	}

	h.mu.Lock()
	h.groups[g] = struct{}{}
	h.mu.Unlock()
	return g, nil
}

// FreeGroup releases a group and its internal buffer. External
// references stay untouched.
func (h *Heap) FreeGroup(g *Group) {
	if g == nil || g.heap != h {
		return
	}
	h.mu.Lock()
	_, ok := h.groups[g]
	delete(h.groups, g)
	h.mu.Unlock()
	if !ok {
		return
	}
	if g.buffer != nil {
		h.dev.DestroyBuffer(g.buffer.backing)
		g.buffer.backing = nil
		g.buffer = nil
	}
}
