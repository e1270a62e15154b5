package gfxcore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestHeapBufferLifecycle(t *testing.T) {
	heap, dev := newTestHeap()

	buf, err := heap.AllocBuffer(MemoryDeviceLocal|MemoryWrite, gputypes.BufferUsageStorage, 4096)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if buf.Size() != 4096 {
		t.Errorf("size = %d, want 4096", buf.Size())
	}
	if buf.Flags() != MemoryDeviceLocal|MemoryWrite {
		t.Errorf("flags = %b", buf.Flags())
	}
	if buf.Usage() != gputypes.BufferUsageStorage {
		t.Errorf("usage = %v", buf.Usage())
	}
	if buf.Backing() == nil {
		t.Error("no backend allocation")
	}
	if dev.liveBuffers != 1 {
		t.Errorf("live buffers = %d, want 1", dev.liveBuffers)
	}

	heap.FreeBuffer(buf)
	if dev.liveBuffers != 0 {
		t.Errorf("live buffers = %d, want 0", dev.liveBuffers)
	}
	if buf.Backing() != nil {
		t.Error("freed buffer keeps a backend allocation")
	}

	// Double free and freeing through the wrong heap do nothing.
	heap.FreeBuffer(buf)
	heap.FreeBuffer(nil)
	other, _ := newTestHeap()
	b2, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 16)
	other.FreeBuffer(b2)
	if dev.liveBuffers != 1 {
		t.Errorf("live buffers = %d, want 1", dev.liveBuffers)
	}
}

func TestHeapAllocErrors(t *testing.T) {
	heap, dev := newTestHeap()

	if _, err := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 0); !errors.Is(err, ErrZeroSize) {
		t.Errorf("zero-size buffer: err = %v", err)
	}
	if _, err := heap.AllocImage(0, gputypes.TextureUsageTextureBinding,
		gputypes.TextureFormatRGBA8Unorm, 0, 16, 1); !errors.Is(err, ErrZeroSize) {
		t.Errorf("zero-extent image: err = %v", err)
	}

	dev.failBuffers = true
	if _, err := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 16); !errors.Is(err, errTestFail) {
		t.Errorf("device failure not surfaced: %v", err)
	}
	dev.failImages = true
	if _, err := heap.AllocImage(0, gputypes.TextureUsageTextureBinding,
		gputypes.TextureFormatRGBA8Unorm, 16, 16, 1); !errors.Is(err, errTestFail) {
		t.Errorf("device failure not surfaced: %v", err)
	}
}

func TestHeapImageLifecycle(t *testing.T) {
	heap, dev := newTestHeap()

	img, err := heap.AllocImage(MemoryDeviceLocal, gputypes.TextureUsageRenderAttachment,
		gputypes.TextureFormatBGRA8Unorm, 640, 480, 0)
	if err != nil {
		t.Fatalf("AllocImage: %v", err)
	}
	w, h, layers := img.Extent()
	if w != 640 || h != 480 || layers != 1 {
		t.Errorf("extent = %dx%dx%d, want 640x480x1", w, h, layers)
	}
	if img.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("format = %v", img.Format())
	}

	heap.FreeImage(img)
	if dev.liveImages != 0 {
		t.Errorf("live images = %d, want 0", dev.liveImages)
	}
}

func TestAllocPrimitiveSizing(t *testing.T) {
	heap, dev := newTestHeap()
	ext, _ := heap.AllocBuffer(0, gputypes.BufferUsageVertex, 4096)

	tests := []struct {
		name     string
		desc     PrimitiveDesc
		wantSize uint64
	}{
		{
			name:     "vertices only",
			desc:     PrimitiveDesc{NumVertices: 100, Stride: 12},
			wantSize: 1200,
		},
		{
			name:     "indexed",
			desc:     PrimitiveDesc{NumVertices: 100, Stride: 12, NumIndices: 300, IndexSize: 2},
			wantSize: 1800,
		},
		{
			name: "external vertices",
			desc: PrimitiveDesc{NumVertices: 100, Stride: 12, NumIndices: 300, IndexSize: 4,
				RefVertex: BufferRef(ext)},
			wantSize: 1200,
		},
		{
			name: "fully external",
			desc: PrimitiveDesc{NumVertices: 100, Stride: 12, NumIndices: 300, IndexSize: 2,
				RefVertex: BufferRef(ext), RefIndex: BufferRefAt(ext, 2048)},
			wantSize: 0,
		},
	}
	for _, tt := range tests {
		p, err := heap.AllocPrimitive(tt.desc)
		if err != nil {
			t.Fatalf("%s: AllocPrimitive: %v", tt.name, err)
		}
		if tt.wantSize == 0 {
			if p.Buffer() != nil {
				t.Errorf("%s: fully external primitive got an internal buffer", tt.name)
			}
		} else if p.Buffer() == nil || p.Buffer().Size() != tt.wantSize {
			t.Errorf("%s: internal buffer size mismatch, want %d", tt.name, tt.wantSize)
		}
		heap.FreePrimitive(p)
	}
	if dev.liveBuffers != 1 {
		t.Errorf("live buffers = %d, want only the external one", dev.liveBuffers)
	}
}

func TestAllocPrimitiveUsage(t *testing.T) {
	heap, _ := newTestHeap()

	p, err := heap.AllocPrimitive(PrimitiveDesc{
		Usage:       gputypes.BufferUsageCopyDst,
		NumVertices: 4,
		Stride:      16,
		NumIndices:  6,
		IndexSize:   2,
	})
	if err != nil {
		t.Fatalf("AllocPrimitive: %v", err)
	}
	usage := p.Buffer().Usage()
	if usage&gputypes.BufferUsageVertex == 0 || usage&gputypes.BufferUsageIndex == 0 {
		t.Errorf("usage = %v, want vertex and index bits", usage)
	}
	if usage&gputypes.BufferUsageCopyDst == 0 {
		t.Errorf("usage = %v, caller bits dropped", usage)
	}
}

func TestAllocPrimitiveValidation(t *testing.T) {
	heap, _ := newTestHeap()

	if _, err := heap.AllocPrimitive(PrimitiveDesc{Stride: 16}); !errors.Is(err, ErrZeroSize) {
		t.Errorf("no vertices: err = %v", err)
	}
	if _, err := heap.AllocPrimitive(PrimitiveDesc{NumVertices: 4}); !errors.Is(err, ErrZeroSize) {
		t.Errorf("no stride: err = %v", err)
	}
	if _, err := heap.AllocPrimitive(PrimitiveDesc{
		NumVertices: 4, Stride: 16, NumIndices: 6, IndexSize: 3,
	}); err == nil {
		t.Error("index size 3 accepted")
	}
}

func TestAllocGroupPacking(t *testing.T) {
	heap, _ := newTestHeap()

	g, err := heap.AllocGroup(GroupDesc{
		Usage: gputypes.BufferUsageUniform,
		Bindings: []GroupBindingDesc{
			{Kind: BindingBuffer, Count: 3, ElemSize: 16},
			{Kind: BindingBuffer, Count: 1, ElemSize: 256},
		},
	})
	if err != nil {
		t.Fatalf("AllocGroup: %v", err)
	}
	if g.Buffer() == nil || g.Buffer().Size() != 3*16+256 {
		t.Fatal("internal buffer size mismatch")
	}

	// Elements pack in binding order.
	wantOffsets := []struct {
		binding, index int
		offset         uint64
	}{
		{0, 0, 0}, {0, 1, 16}, {0, 2, 32}, {1, 0, 48},
	}
	for _, w := range wantOffsets {
		u, err := Unpack(g.BufferAt(w.binding, w.index, 0))
		if err != nil {
			t.Fatalf("Unpack(%d,%d): %v", w.binding, w.index, err)
		}
		if u.Buffer != g.Buffer() || u.Value != w.offset {
			t.Errorf("element %d/%d at %d, want %d", w.binding, w.index, u.Value, w.offset)
		}
	}
}

func TestAllocGroupValidation(t *testing.T) {
	heap, dev := newTestHeap()

	if _, err := heap.AllocGroup(GroupDesc{}); !errors.Is(err, ErrZeroSize) {
		t.Errorf("no bindings: err = %v", err)
	}
	if _, err := heap.AllocGroup(GroupDesc{
		Bindings: []GroupBindingDesc{{Kind: BindingBuffer, Count: 0, ElemSize: 16}},
	}); !errors.Is(err, ErrZeroSize) {
		t.Errorf("empty binding: err = %v", err)
	}
	if _, err := heap.AllocGroup(GroupDesc{
		Bindings: []GroupBindingDesc{{Kind: BindingBuffer, Count: 1}},
	}); err == nil {
		t.Error("unsized internal element accepted")
	}

	// A purely external group allocates nothing.
	ext, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 64)
	live := dev.liveBuffers
	g, err := heap.AllocGroup(GroupDesc{
		Bindings: []GroupBindingDesc{
			{Kind: BindingBuffer, Count: 1, Refs: []Reference{BufferRef(ext)}},
		},
	})
	if err != nil {
		t.Fatalf("AllocGroup: %v", err)
	}
	if g.Buffer() != nil || dev.liveBuffers != live {
		t.Error("external-only group allocated an internal buffer")
	}
}

func TestHeapClear(t *testing.T) {
	heap, dev := newTestHeap()

	if _, err := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 64); err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if _, err := heap.AllocImage(0, gputypes.TextureUsageTextureBinding,
		gputypes.TextureFormatR8Unorm, 8, 8, 1); err != nil {
		t.Fatalf("AllocImage: %v", err)
	}
	if _, err := heap.AllocPrimitive(PrimitiveDesc{NumVertices: 3, Stride: 8}); err != nil {
		t.Fatalf("AllocPrimitive: %v", err)
	}
	if _, err := heap.AllocGroup(GroupDesc{
		Bindings: []GroupBindingDesc{{Kind: BindingBuffer, Count: 1, ElemSize: 32}},
	}); err != nil {
		t.Fatalf("AllocGroup: %v", err)
	}

	heap.Clear()
	if dev.liveBuffers != 0 || dev.liveImages != 0 {
		t.Errorf("live after Clear: %d buffers, %d images", dev.liveBuffers, dev.liveImages)
	}

	// The heap stays usable.
	if _, err := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 16); err != nil {
		t.Fatalf("AllocBuffer after Clear: %v", err)
	}
}
