package gfxcore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
)

// Allocation errors.
var (
	// ErrZeroSize is returned when an allocation of zero bytes or
	// zero extent is requested.
	ErrZeroSize = errors.New("gfxcore: allocation must be non-empty")
)

// MemoryFlags describe how an allocation may be accessed.
type MemoryFlags uint32

const (
	MemoryRead MemoryFlags = 1 << iota
	MemoryWrite
	MemoryHostVisible
	MemoryDeviceLocal
)

// Buffer is an elementary buffer allocation owned by a Heap.
type Buffer struct {
	heap  *Heap
	flags MemoryFlags
	usage gputypes.BufferUsage
	size  uint64

	backing backend.Buffer
}

// Size returns the allocation size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Flags returns the allocation's memory flags.
func (b *Buffer) Flags() MemoryFlags { return b.flags }

// Usage returns the buffer usage the allocation was made with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Backing returns the backend allocation.
func (b *Buffer) Backing() backend.Buffer { return b.backing }

// Image is an elementary image allocation owned by a Heap.
type Image struct {
	heap   *Heap
	flags  MemoryFlags
	usage  gputypes.TextureUsage
	format gputypes.TextureFormat

	width  uint32
	height uint32
	layers uint32

	backing backend.Image
}

// Format returns the image's native format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

// Flags returns the allocation's memory flags.
func (i *Image) Flags() MemoryFlags { return i.flags }

// Usage returns the texture usage the allocation was made with.
func (i *Image) Usage() gputypes.TextureUsage { return i.usage }

// Extent returns width, height and layer count.
func (i *Image) Extent() (width, height, layers uint32) {
	return i.width, i.height, i.layers
}

// Backing returns the backend allocation.
func (i *Image) Backing() backend.Image { return i.backing }

// Heap allocates memory resources on a backend device and tracks
// them until they are freed or the heap is cleared.
//
// All Heap methods are safe for concurrent use; the heap guards its
// bookkeeping with its own lock.
type Heap struct {
	mu  sync.Mutex
	dev backend.Device

	buffers    map[*Buffer]struct{}
	images     map[*Image]struct{}
	primitives map[*Primitive]struct{}
	groups     map[*Group]struct{}
}

// NewHeap creates a heap allocating on the given device.
func NewHeap(dev backend.Device) *Heap {
	return &Heap{
		dev:        dev,
		buffers:    make(map[*Buffer]struct{}),
		images:     make(map[*Image]struct{}),
		primitives: make(map[*Primitive]struct{}),
		groups:     make(map[*Group]struct{}),
	}
}

// Device returns the backend device the heap allocates on.
func (h *Heap) Device() backend.Device { return h.dev }

func (h *Heap) allocBuffer(label string, flags MemoryFlags, usage gputypes.BufferUsage, size uint64) (*Buffer, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	backing, err := h.dev.CreateBuffer(&backend.BufferDesc{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gfxcore: alloc buffer: %w", err)
	}
	return &Buffer{heap: h, flags: flags, usage: usage, size: size, backing: backing}, nil
}

// AllocBuffer allocates an elementary buffer.
func (h *Heap) AllocBuffer(flags MemoryFlags, usage gputypes.BufferUsage, size uint64) (*Buffer, error) {
	b, err := h.allocBuffer("heap-buffer", flags, usage, size)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.buffers[b] = struct{}{}
	h.mu.Unlock()
	return b, nil
}

// FreeBuffer releases a buffer. Freeing a buffer other references
// still point at leaves those references dangling.
func (h *Heap) FreeBuffer(b *Buffer) {
	if b == nil || b.heap != h {
		return
	}
	h.mu.Lock()
	_, ok := h.buffers[b]
	delete(h.buffers, b)
	h.mu.Unlock()
	if ok {
		h.dev.DestroyBuffer(b.backing)
		b.backing = nil
	}
}

// AllocImage allocates an elementary image.
func (h *Heap) AllocImage(flags MemoryFlags, usage gputypes.TextureUsage,
	fmtNative gputypes.TextureFormat, width, height, layers uint32) (*Image, error) {
	if width == 0 || height == 0 {
		return nil, ErrZeroSize
	}
	if layers == 0 {
		layers = 1
	}
	backing, err := h.dev.CreateImage(&backend.ImageDesc{
		Label:  "heap-image",
		Width:  width,
		Height: height,
		Layers: layers,
		Format: fmtNative,
		Usage:  usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gfxcore: alloc image: %w", err)
	}
	img := &Image{
		heap: h, flags: flags, usage: usage, format: fmtNative,
		width: width, height: height, layers: layers, backing: backing,
	}
	h.mu.Lock()
	h.images[img] = struct{}{}
	h.mu.Unlock()
	return img, nil
}

// FreeImage releases an image.
func (h *Heap) FreeImage(i *Image) {
	if i == nil || i.heap != h {
		return
	}
	h.mu.Lock()
	_, ok := h.images[i]
	delete(h.images, i)
	h.mu.Unlock()
	if ok {
		h.dev.DestroyImage(i.backing)
		i.backing = nil
	}
}

// Clear releases every resource the heap still owns, composites
// before the elementary allocations they may reference.
func (h *Heap) Clear() {
	h.mu.Lock()
	buffers := h.buffers
	images := h.images
	primitives := h.primitives
	groups := h.groups
	h.buffers = make(map[*Buffer]struct{})
	h.images = make(map[*Image]struct{})
	h.primitives = make(map[*Primitive]struct{})
	h.groups = make(map[*Group]struct{})
	h.mu.Unlock()

	for p := range primitives {
		if p.buffer != nil {
			h.dev.DestroyBuffer(p.buffer.backing)
			p.buffer.backing = nil
			p.buffer = nil
		}
	}
	for g := range groups {
		if g.buffer != nil {
			h.dev.DestroyBuffer(g.buffer.backing)
			g.buffer.backing = nil
			g.buffer = nil
		}
	}
	for b := range buffers {
		h.dev.DestroyBuffer(b.backing)
		b.backing = nil
	}
	for i := range images {
		h.dev.DestroyImage(i.backing)
		i.backing = nil
	}
}
