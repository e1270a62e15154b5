// Package backend defines the driver interface the resource and
// render-graph layers are built on, plus a registry for selecting an
// implementation at runtime.
package backend

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/format"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDeviceLost is returned when the underlying device stopped responding.
	ErrDeviceLost = errors.New("backend: device lost")
)

// Registered backend names.
const (
	BackendWgpu     = "wgpu"
	BackendSoftware = "software"
)

// Driver is the entry point of a backend implementation.
// Drivers are registered via Register() and selected via Get() or
// Default().
type Driver interface {
	// Name returns the backend identifier (e.g., "software", "wgpu").
	Name() string

	// Init brings up the backend and its device.
	// This should be called before any other operation.
	Init() error

	// Close releases all backend resources.
	// The driver should not be used after Close is called.
	Close()

	// Device returns the device of an initialized driver, nil before
	// Init or after Close.
	Device() Device
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// ImageDesc describes an image allocation.
type ImageDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	Layers    uint32
	MipLevels uint32
	Samples   uint32
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
}

// Buffer is a device buffer allocation.
type Buffer interface {
	Size() uint64
}

// Image is a device image allocation.
type Image interface {
	Format() gputypes.TextureFormat
}

// CommandBuffer is an opaque recorded command sequence, valid for one
// submission.
type CommandBuffer interface{}

// Semaphore orders one submission after another. Semaphores are
// created per device and must be freed on the device that created
// them.
type Semaphore interface{}

// Barrier describes a memory dependency on a single resource.
// Exactly one of Buffer and Image is set. Equal source and destination
// families mean no ownership transfer.
type Barrier struct {
	Buffer Buffer
	Image  Image

	OldUsage gputypes.TextureUsage
	NewUsage gputypes.TextureUsage

	SrcFamily uint32
	DstFamily uint32
}

// Encoder records commands for a single submission.
// An encoder is finished with Finish or abandoned with Discard,
// exactly once either way.
type Encoder interface {
	// Barrier records memory dependencies.
	Barrier(barriers []Barrier) error

	// Finish ends recording and returns the commands for Submit.
	Finish() (CommandBuffer, error)

	// Discard abandons the recording.
	Discard()
}

// PassInfo describes the attachments a pass renders into.
type PassInfo struct {
	Label        string
	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	Samples      uint32
}

// Pass is the backend half of a render pass. Warmup bakes everything
// that does not depend on attachment memory; Build completes the rest.
// Both are idempotent. Destruct releases whatever was baked and
// returns the pass to its initial state.
type Pass interface {
	Warmup() error
	Build() error
	Destruct()
}

// Device is the resource and submission interface of an initialized
// driver. All methods are safe for concurrent use.
type Device interface {
	CreateBuffer(desc *BufferDesc) (Buffer, error)
	DestroyBuffer(buf Buffer)
	CreateImage(desc *ImageDesc) (Image, error)
	DestroyImage(img Image)

	// NewEncoder starts recording a command sequence.
	NewEncoder(label string) (Encoder, error)

	// Submit queues recorded commands, waiting for the given
	// semaphores before execution and signaling the others after.
	Submit(cmds []CommandBuffer, waits, signals []Semaphore) error

	NewSemaphore() (Semaphore, error)
	FreeSemaphore(sem Semaphore)

	// FormatFeatures reports what the device supports for a native
	// format, for building a format.Table.
	FormatFeatures(native gputypes.TextureFormat) format.Features

	// NewPass creates the backend half of a render pass.
	NewPass(info PassInfo) Pass

	// Wait blocks until the device is idle.
	Wait() error
}
