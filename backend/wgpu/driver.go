// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the backend driver on top of gogpu/wgpu/hal.
package wgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gfxcore/backend"
)

func init() {
	backend.Register(backend.BackendWgpu, func() backend.Driver {
		return New()
	})
}

// halProvider is implemented by gpucontext device providers that can
// expose their raw hal handles.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// Driver is the hal-backed driver. The zero value is not usable;
// construct with New and call Init.
type Driver struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// Set when the device came from a shared provider and must not be
	// destroyed on Close.
	shared   bool
	provider gpucontext.DeviceProvider

	dev *Device
}

// Option configures a Driver.
type Option func(*Driver)

// WithProvider makes the driver adopt the device of an existing
// context instead of opening its own. The provider keeps ownership;
// Close will not destroy it.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(d *Driver) { d.provider = p }
}

// New creates an uninitialized driver.
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements backend.Driver.
func (d *Driver) Name() string { return backend.BackendWgpu }

// Init implements backend.Driver. It adopts the shared device when a
// provider was given, otherwise it opens the first useful adapter of
// the Vulkan backend.
func (d *Driver) Init() error {
	if d.dev != nil {
		return nil
	}
	if d.provider != nil {
		return d.initShared()
	}
	return d.initStandalone()
}

func (d *Driver) initShared() error {
	hp, ok := d.provider.Device().(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose hal handles")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return fmt.Errorf("wgpu: provider hal device has unexpected type")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return fmt.Errorf("wgpu: provider hal queue has unexpected type")
	}

	d.device = dev
	d.queue = queue
	d.shared = true
	d.dev = newDevice(dev, queue)
	slogger().Info("wgpu: adopted shared device")
	return nil
}

func (d *Driver) initStandalone() error {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not available: %w", backend.ErrBackendNotAvailable)
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("wgpu: no GPU adapters found: %w", backend.ErrBackendNotAvailable)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("wgpu: open device: %w", err)
	}

	d.instance = instance
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.dev = newDevice(d.device, d.queue)
	slogger().Info("wgpu: device initialized", "adapter", selected.Info.Name)
	return nil
}

// Close implements backend.Driver. Shared devices stay alive; only
// resources the driver opened itself are destroyed.
func (d *Driver) Close() {
	if d.dev != nil {
		d.dev.close()
		d.dev = nil
	}
	if !d.shared {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}

// Device implements backend.Driver.
func (d *Driver) Device() backend.Device {
	if d.dev == nil {
		return nil
	}
	return d.dev
}
