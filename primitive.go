package gfxcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Primitive is a composite geometry resource: vertex data, optionally
// index data, backed either by the primitive's own buffer or by
// external references.
//
// Data the caller did not reference externally is packed into the
// primitive's internal buffer, vertices first, index data after.
type Primitive struct {
	heap   *Heap
	buffer *Buffer

	refVertex Reference
	refIndex  Reference

	numVertices uint32
	numIndices  uint32
	stride      uint32
	indexSize   uint32
}

// NumVertices returns the vertex count.
func (p *Primitive) NumVertices() uint32 { return p.numVertices }

// NumIndices returns the index count, zero for non-indexed geometry.
func (p *Primitive) NumIndices() uint32 { return p.numIndices }

// Stride returns the per-vertex byte stride.
func (p *Primitive) Stride() uint32 { return p.stride }

// IndexSize returns the per-index byte size, zero for non-indexed
// geometry.
func (p *Primitive) IndexSize() uint32 { return p.indexSize }

// Buffer returns the primitive's internal buffer.
func (p *Primitive) Buffer() *Buffer { return p.buffer }

// Vertices references the primitive's vertex data at a byte offset.
func (p *Primitive) Vertices(offset uint64) Reference {
	return VerticesRef(p, offset)
}

// Indices references the primitive's index data at a byte offset.
func (p *Primitive) Indices(offset uint64) Reference {
	return IndicesRef(p, offset)
}

// PrimitiveDesc describes a primitive allocation. RefVertex and
// RefIndex optionally point vertex or index data at external buffer
// ranges; leaving either empty stores that data in the primitive's
// internal buffer instead.
type PrimitiveDesc struct {
	Flags MemoryFlags
	Usage gputypes.BufferUsage

	NumVertices uint32
	Stride      uint32
	NumIndices  uint32
	IndexSize   uint32

	RefVertex Reference
	RefIndex  Reference
}

// AllocPrimitive allocates a primitive and, when needed, the internal
// buffer holding non-external data.
func (h *Heap) AllocPrimitive(desc PrimitiveDesc) (*Primitive, error) {
	if desc.NumVertices == 0 || desc.Stride == 0 {
		return nil, fmt.Errorf("gfxcore: primitive needs vertices: %w", ErrZeroSize)
	}
	if desc.NumIndices > 0 && desc.IndexSize != 2 && desc.IndexSize != 4 {
		return nil, fmt.Errorf("gfxcore: primitive index size must be 2 or 4, got %d", desc.IndexSize)
	}

	var size uint64
	if desc.RefVertex.IsEmpty() {
		size += uint64(desc.NumVertices) * uint64(desc.Stride)
	}
	if desc.NumIndices > 0 && desc.RefIndex.IsEmpty() {
		size += uint64(desc.NumIndices) * uint64(desc.IndexSize)
	}

	p := &Primitive{
		heap:        h,
		refVertex:   desc.RefVertex,
		refIndex:    desc.RefIndex,
		numVertices: desc.NumVertices,
		numIndices:  desc.NumIndices,
		stride:      desc.Stride,
	}
	if desc.NumIndices > 0 {
		p.indexSize = desc.IndexSize
	}

	if size > 0 {
		usage := desc.Usage | gputypes.BufferUsageVertex
		if desc.NumIndices > 0 && desc.RefIndex.IsEmpty() {
			usage |= gputypes.BufferUsageIndex
		}
		buf, err := h.allocBuffer("primitive-buffer", desc.Flags, usage, size)
		if err != nil {
			return nil, err
		}
		p.buffer = buf
	}

	h.mu.Lock()
	h.primitives[p] = struct{}{}
	h.mu.Unlock()
	return p, nil
}

// FreePrimitive releases a primitive and its internal buffer.
// External references stay untouched.
func (h *Heap) FreePrimitive(p *Primitive) {
	if p == nil || p.heap != h {
		return
	}
	h.mu.Lock()
	_, ok := h.primitives[p]
	delete(h.primitives, p)
	h.mu.Unlock()
	if !ok {
		return
	}
	if p.buffer != nil {
		h.dev.DestroyBuffer(p.buffer.backing)
		p.buffer.backing = nil
		p.buffer = nil
	}
}
