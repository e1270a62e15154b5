// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements the backend driver in plain memory.
// Resources are host allocations and submissions complete
// immediately. It serves headless use and tests, and is the registry
// fallback when no GPU backend is available.
package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/format"
)

func init() {
	backend.Register(backend.BackendSoftware, func() backend.Driver {
		return New()
	})
}

// Driver is the software driver. Construct with New and call Init.
type Driver struct {
	dev *Device
}

// New creates an uninitialized driver.
func New() *Driver { return &Driver{} }

// Name implements backend.Driver.
func (d *Driver) Name() string { return backend.BackendSoftware }

// Init implements backend.Driver.
func (d *Driver) Init() error {
	if d.dev == nil {
		d.dev = &Device{}
	}
	return nil
}

// Close implements backend.Driver.
func (d *Driver) Close() { d.dev = nil }

// Device implements backend.Driver.
func (d *Driver) Device() backend.Device {
	if d.dev == nil {
		return nil
	}
	return d.dev
}

// Device implements backend.Device in host memory. Counters track
// live allocations so tests can assert balanced create/destroy pairs.
type Device struct {
	mu sync.Mutex

	liveBuffers    int
	liveImages     int
	liveSemaphores int
	submissions    int
}

// Buffer is a host buffer allocation.
type Buffer struct {
	label string
	data  []byte
	usage gputypes.BufferUsage
}

// Size implements backend.Buffer.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Bytes exposes the backing storage.
func (b *Buffer) Bytes() []byte { return b.data }

// Image is a host image allocation.
type Image struct {
	label  string
	desc   backend.ImageDesc
	texels []byte
}

// Format implements backend.Image.
func (i *Image) Format() gputypes.TextureFormat { return i.desc.Format }

// semaphore completes immediately; it only exists so submission
// wiring can be exercised without a device.
type semaphore struct {
	signaled uint64
}

// CreateBuffer implements backend.Device.
func (d *Device) CreateBuffer(desc *backend.BufferDesc) (backend.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("software: buffer size must be positive")
	}
	d.mu.Lock()
	d.liveBuffers++
	d.mu.Unlock()
	return &Buffer{label: desc.Label, data: make([]byte, desc.Size), usage: desc.Usage}, nil
}

// DestroyBuffer implements backend.Device.
func (d *Device) DestroyBuffer(buf backend.Buffer) {
	if _, ok := buf.(*Buffer); !ok {
		return
	}
	d.mu.Lock()
	d.liveBuffers--
	d.mu.Unlock()
}

// texelSize returns a coarse per-texel byte size, enough for host
// storage to exist.
func texelSize(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatR32Float,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	case gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

// CreateImage implements backend.Device.
func (d *Device) CreateImage(desc *backend.ImageDesc) (backend.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("software: image dimensions must be positive")
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("software: image format must be defined")
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	size := int(desc.Width) * int(desc.Height) * int(layers) * texelSize(desc.Format)

	d.mu.Lock()
	d.liveImages++
	d.mu.Unlock()
	return &Image{label: desc.Label, desc: *desc, texels: make([]byte, size)}, nil
}

// DestroyImage implements backend.Device.
func (d *Device) DestroyImage(img backend.Image) {
	if _, ok := img.(*Image); !ok {
		return
	}
	d.mu.Lock()
	d.liveImages--
	d.mu.Unlock()
}

// Op is one recorded encoder operation.
type Op struct {
	Kind     string
	Barriers []backend.Barrier
}

// commands is the finished recording of an encoder.
type commands struct {
	label string
	ops   []Op
}

// encoder records operations into a host command sequence.
type encoder struct {
	label    string
	ops      []Op
	finished bool
}

// NewEncoder implements backend.Device.
func (d *Device) NewEncoder(label string) (backend.Encoder, error) {
	return &encoder{label: label}, nil
}

// Barrier implements backend.Encoder.
func (e *encoder) Barrier(barriers []backend.Barrier) error {
	if e.finished {
		return fmt.Errorf("software: encoder already finished")
	}
	bs := make([]backend.Barrier, len(barriers))
	copy(bs, barriers)
	e.ops = append(e.ops, Op{Kind: "barrier", Barriers: bs})
	return nil
}

// Finish implements backend.Encoder.
func (e *encoder) Finish() (backend.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("software: encoder already finished")
	}
	e.finished = true
	return &commands{label: e.label, ops: e.ops}, nil
}

// Discard implements backend.Encoder.
func (e *encoder) Discard() {
	e.finished = true
	e.ops = nil
}

// NewSemaphore implements backend.Device.
func (d *Device) NewSemaphore() (backend.Semaphore, error) {
	d.mu.Lock()
	d.liveSemaphores++
	d.mu.Unlock()
	return &semaphore{}, nil
}

// FreeSemaphore implements backend.Device.
func (d *Device) FreeSemaphore(sem backend.Semaphore) {
	if _, ok := sem.(*semaphore); !ok {
		return
	}
	d.mu.Lock()
	d.liveSemaphores--
	d.mu.Unlock()
}

// Submit implements backend.Device. Work completes synchronously, so
// waits are satisfied trivially and signals flip immediately.
func (d *Device) Submit(cmds []backend.CommandBuffer, waits, signals []backend.Semaphore) error {
	for _, c := range cmds {
		if _, ok := c.(*commands); !ok {
			return fmt.Errorf("software: foreign command buffer")
		}
	}
	for _, w := range waits {
		if _, ok := w.(*semaphore); !ok {
			return fmt.Errorf("software: foreign semaphore")
		}
	}
	for _, s := range signals {
		sem, ok := s.(*semaphore)
		if !ok {
			return fmt.Errorf("software: foreign semaphore")
		}
		sem.signaled++
	}
	d.mu.Lock()
	d.submissions++
	d.mu.Unlock()
	return nil
}

// FormatFeatures implements backend.Device. The software device
// handles every known format at its baseline feature set.
func (d *Device) FormatFeatures(native gputypes.TextureFormat) format.Features {
	return format.DefaultFeatures(native)
}

// pass is the software half of a render pass.
type pass struct {
	mu     sync.Mutex
	info   backend.PassInfo
	warmed bool
	built  bool
}

// NewPass implements backend.Device.
func (d *Device) NewPass(info backend.PassInfo) backend.Pass {
	return &pass{info: info}
}

func (p *pass) Warmup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmed = true
	return nil
}

func (p *pass) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmed = true
	p.built = true
	return nil
}

func (p *pass) Destruct() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmed = false
	p.built = false
}

// Wait implements backend.Device.
func (d *Device) Wait() error { return nil }

// LiveBuffers reports outstanding buffer allocations.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBuffers
}

// LiveImages reports outstanding image allocations.
func (d *Device) LiveImages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveImages
}

// LiveSemaphores reports outstanding semaphores.
func (d *Device) LiveSemaphores() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveSemaphores
}

// Submissions reports how many submissions the device accepted.
func (d *Device) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}
