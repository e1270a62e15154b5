package gfxcore

import (
	"errors"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/format"
)

var errTestFail = errors.New("induced failure")

// testDevice implements backend.Device in memory with switchable
// failure injection.
type testDevice struct {
	mu sync.Mutex

	failBuffers bool
	failImages  bool
	failBuild   bool
	failWarmup  bool

	liveBuffers    int
	liveImages     int
	liveSemaphores int
	submissions    int

	passes []*testPass
}

type testBuffer struct{ size uint64 }

func (b *testBuffer) Size() uint64 { return b.size }

type testImage struct{ format gputypes.TextureFormat }

func (i *testImage) Format() gputypes.TextureFormat { return i.format }

type testSemaphore struct{ signaled int }

type testEncoder struct {
	barriers [][]backend.Barrier
	finished bool
}

type testCommands struct{}

func (d *testDevice) CreateBuffer(desc *backend.BufferDesc) (backend.Buffer, error) {
	if d.failBuffers {
		return nil, errTestFail
	}
	d.mu.Lock()
	d.liveBuffers++
	d.mu.Unlock()
	return &testBuffer{size: desc.Size}, nil
}

func (d *testDevice) DestroyBuffer(backend.Buffer) {
	d.mu.Lock()
	d.liveBuffers--
	d.mu.Unlock()
}

func (d *testDevice) CreateImage(desc *backend.ImageDesc) (backend.Image, error) {
	if d.failImages {
		return nil, errTestFail
	}
	d.mu.Lock()
	d.liveImages++
	d.mu.Unlock()
	return &testImage{format: desc.Format}, nil
}

func (d *testDevice) DestroyImage(backend.Image) {
	d.mu.Lock()
	d.liveImages--
	d.mu.Unlock()
}

func (d *testDevice) NewEncoder(string) (backend.Encoder, error) {
	return &testEncoder{}, nil
}

func (e *testEncoder) Barrier(barriers []backend.Barrier) error {
	bs := make([]backend.Barrier, len(barriers))
	copy(bs, barriers)
	e.barriers = append(e.barriers, bs)
	return nil
}

func (e *testEncoder) Finish() (backend.CommandBuffer, error) {
	e.finished = true
	return &testCommands{}, nil
}

func (e *testEncoder) Discard() { e.finished = true }

func (d *testDevice) Submit(cmds []backend.CommandBuffer, waits, signals []backend.Semaphore) error {
	for _, s := range signals {
		s.(*testSemaphore).signaled++
	}
	d.mu.Lock()
	d.submissions++
	d.mu.Unlock()
	return nil
}

func (d *testDevice) NewSemaphore() (backend.Semaphore, error) {
	d.mu.Lock()
	d.liveSemaphores++
	d.mu.Unlock()
	return &testSemaphore{}, nil
}

func (d *testDevice) FreeSemaphore(backend.Semaphore) {
	d.mu.Lock()
	d.liveSemaphores--
	d.mu.Unlock()
}

func (d *testDevice) FormatFeatures(native gputypes.TextureFormat) format.Features {
	return format.DefaultFeatures(native)
}

// testPass counts backend pass transitions, failing on demand.
type testPass struct {
	dev       *testDevice
	warmups   int
	builds    int
	destructs int
}

func (d *testDevice) NewPass(backend.PassInfo) backend.Pass {
	p := &testPass{dev: d}
	d.mu.Lock()
	d.passes = append(d.passes, p)
	d.mu.Unlock()
	return p
}

func (p *testPass) Warmup() error {
	if p.dev.failWarmup {
		return errTestFail
	}
	p.warmups++
	return nil
}

func (p *testPass) Build() error {
	if p.dev.failBuild {
		return errTestFail
	}
	p.builds++
	return nil
}

func (p *testPass) Destruct() { p.destructs++ }

func (d *testDevice) Wait() error { return nil }

// newTestHeap wires a heap to a fresh test device.
func newTestHeap() (*Heap, *testDevice) {
	dev := &testDevice{}
	return NewHeap(dev), dev
}

// totalBuilds sums build invocations across all backend passes.
func (d *testDevice) totalBuilds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, p := range d.passes {
		n += p.builds
	}
	return n
}
