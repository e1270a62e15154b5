package gfxcore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestInjectionSignalCatch(t *testing.T) {
	heap, dev := newTestHeap()
	dep := NewDependency(dev, 1)
	buf, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 256)

	// Producer signals the buffer; non-blocking, so a semaphore
	// carries the signal across submissions.
	prod := NewInjection()
	if err := prod.Prepare(nil, false, SignalRange(dep, AccessStorageWrite, StageCompute, BufferRef(buf))); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(prod.Signals()) != 1 {
		t.Fatalf("signals = %d, want 1", len(prod.Signals()))
	}
	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// Consumer catches the pending signal as a semaphore wait.
	cons := NewInjection()
	if err := cons.Catch(nil, WaitRange(dep, BufferRef(buf))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(cons.Waits()) != 1 || cons.Waits()[0] != prod.sigs[0] {
		t.Fatalf("waits = %d, want the producer's semaphore", len(cons.Waits()))
	}
	if err := cons.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// The signal allowed one catch; a later consumer finds nothing.
	late := NewInjection()
	if err := late.Catch(nil, WaitRange(dep, BufferRef(buf))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(late.Waits()) != 0 {
		t.Errorf("spent signal caught again: %d waits", len(late.Waits()))
	}
	if err := late.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if dep.numLive() != 0 {
		t.Errorf("live records = %d, want 0", dep.numLive())
	}
}

func TestInjectionWaitCapacity(t *testing.T) {
	heap, dev := newTestHeap()
	dep := NewDependency(dev, 2)
	buf, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 64)

	prod := NewInjection()
	if err := prod.Prepare(nil, false, SignalRange(dep, AccessStorageWrite, StageCompute, BufferRef(buf))); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// Each finished catch spends one wait; the signal survives the
	// first consumer and is gone after the second.
	for i := 0; i < 2; i++ {
		cons := NewInjection()
		if err := cons.Catch(nil, Wait(dep)); err != nil {
			t.Fatalf("Catch %d: %v", i, err)
		}
		if len(cons.Waits()) != 1 {
			t.Fatalf("consumer %d: waits = %d, want 1", i, len(cons.Waits()))
		}
		if err := cons.Finish(); err != nil {
			t.Fatalf("Finish %d: %v", i, err)
		}
	}
	if dep.numLive() != 0 {
		t.Errorf("live records = %d, want 0 after capacity spent", dep.numLive())
	}
}

func TestInjectionClosedSession(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	inj := NewInjection()
	if err := inj.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := inj.Prepare(nil, true, Signal(dep, AccessStorageWrite, StageCompute)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Prepare after Finish: err = %v", err)
	}
	if err := inj.Catch(nil, Wait(dep)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Catch after Finish: err = %v", err)
	}
	if err := inj.Abort(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Abort after Finish: err = %v", err)
	}
	if err := inj.Finish(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("double Finish: err = %v", err)
	}
}

func TestInjectionAbortReleasesPrepared(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	inj := NewInjection()
	if err := inj.Prepare(nil, false, Signal(dep, AccessStorageWrite, StageCompute)); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if dev.liveSemaphores != 1 {
		t.Fatalf("live semaphores = %d, want 1", dev.liveSemaphores)
	}

	if err := inj.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if dev.liveSemaphores != 0 {
		t.Errorf("live semaphores = %d, want 0 after Abort", dev.liveSemaphores)
	}
	if dep.numLive() != 0 {
		t.Errorf("live records = %d, want 0", dep.numLive())
	}

	// An aborted signal never became visible.
	cons := NewInjection()
	if err := cons.Catch(nil, Wait(dep)); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(cons.Waits()) != 0 {
		t.Error("aborted signal was caught")
	}
}

func TestInjectionAbortReturnsCaught(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	prod := NewInjection()
	if err := prod.Prepare(nil, false, Signal(dep, AccessStorageWrite, StageCompute)); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// A consumer catches the signal but aborts; the record goes back
	// to pending and stays catchable.
	bad := NewInjection()
	if err := bad.Catch(nil, Wait(dep)); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(bad.Waits()) != 1 {
		t.Fatalf("waits = %d, want 1", len(bad.Waits()))
	}
	if err := bad.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	good := NewInjection()
	if err := good.Catch(nil, Wait(dep)); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(good.Waits()) != 1 {
		t.Errorf("waits = %d, want the returned signal", len(good.Waits()))
	}
	if err := good.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestInjectionSelfCatchBarrier(t *testing.T) {
	heap, dev := newTestHeap()
	dep := NewDependency(dev, 1)
	img, err := heap.AllocImage(0, gputypes.TextureUsageTextureBinding,
		gputypes.TextureFormatRGBA8Unorm, 16, 16, 1)
	if err != nil {
		t.Fatalf("AllocImage: %v", err)
	}

	enc, err := dev.NewEncoder("self-catch")
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	te := enc.(*testEncoder)

	// One session both signals and waits; blocking, so the dependency
	// resolves to a barrier instead of a semaphore.
	inj := NewInjection()
	if err := inj.Prepare(enc, true, SignalRange(dep, AccessStorageWrite, StageCompute, ImageRef(img))); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := inj.Catch(enc, WaitRange(dep, ImageRef(img))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(inj.Waits()) != 0 || len(inj.Signals()) != 0 {
		t.Error("blocking dependency produced semaphores")
	}
	if len(te.barriers) != 1 || len(te.barriers[0]) != 1 {
		t.Fatalf("barriers = %v, want one image barrier", te.barriers)
	}
	if te.barriers[0][0].Image != img.Backing() {
		t.Error("barrier targets the wrong image")
	}

	if err := inj.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	// A self-caught record is consumed at Finish.
	if dep.numLive() != 0 {
		t.Errorf("live records = %d, want 0", dep.numLive())
	}
}

func TestInjectionVisibility(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	prod := NewInjection()
	if err := prod.Prepare(nil, false, Signal(dep, AccessStorageWrite, StageCompute)); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// Another session must not observe the signal until the producer
	// finishes.
	cons := NewInjection()
	if err := cons.Catch(nil, Wait(dep)); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(cons.Waits()) != 0 {
		t.Fatal("unfinished signal leaked to another session")
	}

	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := cons.Catch(nil, Wait(dep)); err != nil {
		t.Fatalf("Catch after producer Finish: %v", err)
	}
	if len(cons.Waits()) != 1 {
		t.Errorf("waits = %d, want 1 after producer Finish", len(cons.Waits()))
	}
	if err := cons.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestInjectionRangeMatching(t *testing.T) {
	heap, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	// Vertex and index data share one buffer but occupy disjoint
	// ranges.
	p, err := heap.AllocPrimitive(PrimitiveDesc{
		NumVertices: 10,
		Stride:      8,
		NumIndices:  6,
		IndexSize:   2,
	})
	if err != nil {
		t.Fatalf("AllocPrimitive: %v", err)
	}
	other, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 64)

	prod := NewInjection()
	if err := prod.Prepare(nil, false, SignalRange(dep, AccessStorageWrite, StageVertex, p.Vertices(0))); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// A wait on the index range misses the vertex-range signal, as
	// does a wait on an unrelated buffer.
	miss := NewInjection()
	if err := miss.Catch(nil, WaitRange(dep, p.Indices(0)), WaitRange(dep, BufferRef(other))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(miss.Waits()) != 0 {
		t.Errorf("disjoint range caught the signal: %d waits", len(miss.Waits()))
	}
	if err := miss.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	// An overlapping sub-range hits.
	hit := NewInjection()
	if err := hit.Catch(nil, WaitRange(dep, p.Vertices(40))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(hit.Waits()) != 1 {
		t.Errorf("overlapping range missed the signal: %d waits", len(hit.Waits()))
	}
	if err := hit.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestInjectionUnscopedSignal(t *testing.T) {
	heap, dev := newTestHeap()
	dep := NewDependency(dev, 1)
	buf, _ := heap.AllocBuffer(0, gputypes.BufferUsageStorage, 64)

	// A signal without a reference covers everything; even a narrowed
	// wait catches it.
	prod := NewInjection()
	if err := prod.Prepare(nil, false, Signal(dep, AccessStorageWrite, StageCompute)); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := prod.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	cons := NewInjection()
	if err := cons.Catch(nil, WaitRange(dep, BufferRef(buf))); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(cons.Waits()) != 1 {
		t.Errorf("waits = %d, want 1", len(cons.Waits()))
	}
	if err := cons.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestInjectionRecordRecycling(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	// Run the full signal/catch cycle twice; the second cycle reuses
	// the spent record and frees its retired semaphore.
	for i := 0; i < 2; i++ {
		prod := NewInjection()
		if err := prod.Prepare(nil, false, Signal(dep, AccessStorageWrite, StageCompute)); err != nil {
			t.Fatalf("Prepare %d: %v", i, err)
		}
		if err := prod.Finish(); err != nil {
			t.Fatalf("Finish %d: %v", i, err)
		}
		cons := NewInjection()
		if err := cons.Catch(nil, Wait(dep)); err != nil {
			t.Fatalf("Catch %d: %v", i, err)
		}
		if err := cons.Finish(); err != nil {
			t.Fatalf("Finish %d: %v", i, err)
		}
	}

	if len(dep.syncs) != 1 {
		t.Errorf("records = %d, want 1 recycled", len(dep.syncs))
	}
	if dev.liveSemaphores != 1 {
		t.Errorf("live semaphores = %d, want only the active cycle's", dev.liveSemaphores)
	}
}

func TestInjectionIgnoresMismatchedInjects(t *testing.T) {
	_, dev := newTestHeap()
	dep := NewDependency(dev, 1)

	// Waits are skipped by Prepare and signals by Catch, as are
	// injects without a dependency object.
	inj := NewInjection()
	if err := inj.Prepare(nil, false, Wait(dep), Inject{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := inj.Catch(nil, Signal(dep, AccessStorageWrite, StageCompute), Inject{}); err != nil {
		t.Fatalf("Catch: %v", err)
	}
	if len(inj.Waits()) != 0 || len(inj.Signals()) != 0 {
		t.Error("mismatched injects produced semaphores")
	}
	if dep.numLive() != 0 {
		t.Errorf("live records = %d, want 0", dep.numLive())
	}
	if err := inj.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
}
