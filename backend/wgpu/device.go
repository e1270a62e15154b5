// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/format"
)

// waitTimeout bounds every semaphore wait.
const waitTimeout = 5 * time.Second

// pollInterval is how often a semaphore wait re-checks the queue.
const pollInterval = 100 * time.Microsecond

// Device implements backend.Device on a hal device/queue pair.
type Device struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue

	// lastSubmit is the index the queue returned for the most recent
	// submission, so command-less signals can piggyback on it.
	lastSubmit uint64
}

func newDevice(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

func (d *Device) close() {
	d.device = nil
	d.queue = nil
}

// buffer wraps a hal buffer allocation.
type buffer struct {
	hal  hal.Buffer
	size uint64
}

func (b *buffer) Size() uint64 { return b.size }

// image wraps a hal texture allocation.
type image struct {
	hal    hal.Texture
	format gputypes.TextureFormat
}

func (i *image) Format() gputypes.TextureFormat { return i.format }

// semaphore marks a point in the queue's submission timeline. Signals
// stamp it with the submission index; waits block until the queue
// reports that index completed. Index zero means never signaled.
type semaphore struct {
	index uint64
}

// CreateBuffer implements backend.Device.
func (d *Device) CreateBuffer(desc *backend.BufferDesc) (backend.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("wgpu: buffer size must be positive")
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer: %w", err)
	}
	return &buffer{hal: buf, size: desc.Size}, nil
}

// DestroyBuffer implements backend.Device.
func (d *Device) DestroyBuffer(buf backend.Buffer) {
	if b, ok := buf.(*buffer); ok {
		d.device.DestroyBuffer(b.hal)
	}
}

// CreateImage implements backend.Device.
func (d *Device) CreateImage(desc *backend.ImageDesc) (backend.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("wgpu: image dimensions must be positive")
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	samples := desc.Samples
	if samples == 0 {
		samples = 1
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: mips,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture: %w", err)
	}
	return &image{hal: tex, format: desc.Format}, nil
}

// DestroyImage implements backend.Device.
func (d *Device) DestroyImage(img backend.Image) {
	if i, ok := img.(*image); ok {
		d.device.DestroyTexture(i.hal)
	}
}

// encoder wraps a hal command encoder between Begin and End.
type encoder struct {
	device *Device
	hal    hal.CommandEncoder
}

// NewEncoder implements backend.Device.
func (d *Device) NewEncoder(label string) (backend.Encoder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &encoder{device: d, hal: enc}, nil
}

// Barrier implements backend.Encoder. Image usage transitions map to
// hal texture transitions; buffer dependencies need no explicit
// barrier, the hal tracks buffer hazards internally.
func (e *encoder) Barrier(barriers []backend.Barrier) error {
	var transitions []hal.TextureBarrier
	for _, b := range barriers {
		img, ok := b.Image.(*image)
		if !ok {
			continue
		}
		if b.OldUsage == b.NewUsage && b.SrcFamily == b.DstFamily {
			continue
		}
		transitions = append(transitions, hal.TextureBarrier{
			Texture: img.hal,
			Usage: hal.TextureUsageTransition{
				OldUsage: b.OldUsage,
				NewUsage: b.NewUsage,
			},
		})
	}
	if len(transitions) > 0 {
		e.hal.TransitionTextures(transitions)
	}
	return nil
}

// Finish implements backend.Encoder.
func (e *encoder) Finish() (backend.CommandBuffer, error) {
	cmd, err := e.hal.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return cmd, nil
}

// Discard implements backend.Encoder.
func (e *encoder) Discard() {
	e.hal.DiscardEncoding()
}

// NewSemaphore implements backend.Device.
func (d *Device) NewSemaphore() (backend.Semaphore, error) {
	return &semaphore{}, nil
}

// FreeSemaphore implements backend.Device.
func (d *Device) FreeSemaphore(sem backend.Semaphore) {
	_, _ = sem.(*semaphore)
}

// awaitSubmission blocks until the queue reports the submission index
// completed. Index zero was never signaled and is satisfied trivially.
func (d *Device) awaitSubmission(index uint64) error {
	if index == 0 {
		return nil
	}
	deadline := time.Now().Add(waitTimeout)
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("wgpu: wait semaphore: %w", backend.ErrDeviceLost)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// Submit implements backend.Device. The hal queue hands back a
// submission index per submission, so waits are resolved host-side by
// polling the queue, and signals stamp their semaphores with the
// returned index. A command-less submission signals at the index of
// the work already queued.
func (d *Device) Submit(cmds []backend.CommandBuffer, waits, signals []backend.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range waits {
		s, ok := w.(*semaphore)
		if !ok {
			return fmt.Errorf("wgpu: foreign semaphore")
		}
		if err := d.awaitSubmission(s.index); err != nil {
			return err
		}
	}

	halCmds := make([]hal.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		hc, ok := c.(hal.CommandBuffer)
		if !ok {
			return fmt.Errorf("wgpu: foreign command buffer")
		}
		halCmds = append(halCmds, hc)
	}

	index := d.lastSubmit
	if len(halCmds) > 0 {
		var err error
		index, err = d.queue.Submit(halCmds)
		if err != nil {
			return fmt.Errorf("wgpu: submit: %w", err)
		}
		d.lastSubmit = index
	}

	for _, sig := range signals {
		s, ok := sig.(*semaphore)
		if !ok {
			return fmt.Errorf("wgpu: foreign semaphore")
		}
		s.index = index
	}
	return nil
}

// FormatFeatures implements backend.Device. The hal exposes no format
// capability query, so the baseline WebGPU guarantees apply.
func (d *Device) FormatFeatures(native gputypes.TextureFormat) format.Features {
	return format.DefaultFeatures(native)
}

// Wait implements backend.Device.
func (d *Device) Wait() error {
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	return nil
}
