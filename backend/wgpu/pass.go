// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"sync"

	"github.com/gogpu/gfxcore/backend"
)

// pass is the hal half of a render pass. The hal bakes render state at
// encoding time, so warmup and build only pin down the attachment
// layout the pass will encode against.
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
	if p.warmed {
		return nil
	}
	p.warmed = true
	slogger().Debug("wgpu: pass warmed", "label", p.info.Label,
		"colors", len(p.info.ColorFormats))
	return nil
}

func (p *pass) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.warmed {
		p.warmed = true
	}
	if p.built {
		return nil
	}
	p.built = true
	slogger().Debug("wgpu: pass built", "label", p.info.Label)
	return nil
}

func (p *pass) Destruct() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmed = false
	p.built = false
}
