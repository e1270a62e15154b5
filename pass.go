package gfxcore

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
)

// AccessMask declares what kind of memory access a consumption
// performs.
type AccessMask uint32

const (
	AccessVertexRead AccessMask = 1 << iota
	AccessIndexRead
	AccessUniformRead
	AccessStorageRead
	AccessStorageWrite
	AccessSampledRead
	AccessAttachmentRead
	AccessAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
)

// StageMask declares the pipeline stages a consumption happens in.
type StageMask uint32

const (
	StageVertex StageMask = 1 << iota
	StageFragment
	StageCompute
	StageTransfer
)

// RecreateFlags describe what changed about a rebuilt attachment.
type RecreateFlags uint32

const (
	// RecreateResize marks an extent change.
	RecreateResize RecreateFlags = 1 << iota
	// RecreateReformat marks a format change.
	RecreateReformat
)

// Consumption declares one resource a pass reads or writes.
type Consumption struct {
	Write bool
	Mask  AccessMask
	Stage StageMask
	View  Reference
}

// noBacking marks a pass not built against any attachment.
const noBacking = -1

// Pass is one node of the render graph. Passes are created through
// Renderer.AddPass and live until the graph is cleared.
type Pass struct {
	renderer *Renderer

	// level is the longest parent chain to a root; it pre-sorts
	// submission. order is the final submission index, assigned at
	// build.
	level int
	order int

	// gen counts destructs, so stale baked state can be detected by
	// recorder components.
	gen uint32

	parents  []*Pass
	consumes []Consumption

	// backing is the attachment slot the built pass renders into.
	backing int

	bp    backend.Pass
	built bool
}

// Level returns the pass's dependency level.
func (p *Pass) Level() int { return p.level }

// Order returns the submission index assigned by the last build.
func (p *Pass) Order() int { return p.order }

// Generation returns the pass's rebuild generation.
func (p *Pass) Generation() uint32 { return p.gen }

// NumParents returns the number of parent passes.
func (p *Pass) NumParents() int { return len(p.parents) }

// Parent returns the i-th parent pass.
func (p *Pass) Parent(i int) *Pass { return p.parents[i] }

// Consume declares a resource consumption: write or read, with an
// access mask, the stages that touch it, and the viewed reference.
// Declaring a view again replaces the previous consumption of it.
func (p *Pass) Consume(write bool, mask AccessMask, stage StageMask, view Reference) {
	c := Consumption{Write: write, Mask: mask, Stage: stage, View: view}
	for i := range p.consumes {
		if p.consumes[i].View == view {
			p.consumes[i] = c
			return
		}
	}
	p.consumes = append(p.consumes, c)
}

// NumConsumes returns the number of declared consumptions.
func (p *Pass) NumConsumes() int { return len(p.consumes) }

// ConsumeAt returns the i-th declared consumption.
func (p *Pass) ConsumeAt(i int) Consumption { return p.consumes[i] }

// backingAttachment finds the attachment slot the pass renders into:
// the first written attachment consumption, or noBacking.
func (p *Pass) backingAttachment() int {
	for _, c := range p.consumes {
		if c.Write && c.View.kind == RefAttachment && c.View.renderer == p.renderer &&
			c.View.index >= 0 {
			return c.View.index
		}
	}
	return noBacking
}

// passInfo derives the backend pass description from the declared
// consumptions.
func (p *Pass) passInfo() backend.PassInfo {
	info := backend.PassInfo{
		Label:   fmt.Sprintf("pass-%d", p.order),
		Samples: 1,
	}
	for _, c := range p.consumes {
		if c.View.kind != RefAttachment || c.View.renderer != p.renderer {
			continue
		}
		f := p.renderer.attachFormat(c.View.index)
		if f == gputypes.TextureFormatUndefined {
			continue
		}
		info.ColorFormats = append(info.ColorFormats, f)
	}
	return info
}

// passKey builds the cache key for sharing backend passes between
// passes with identical attachment layouts.
func passKey(info backend.PassInfo) []byte {
	key := make([]byte, 0, 8+4*len(info.ColorFormats))
	key = binary.LittleEndian.AppendUint32(key, uint32(info.DepthFormat))
	key = binary.LittleEndian.AppendUint32(key, info.Samples)
	for _, f := range info.ColorFormats {
		key = binary.LittleEndian.AppendUint32(key, uint32(f))
	}
	return key
}

// ensureBackend creates or reuses the backend half of the pass.
func (p *Pass) ensureBackend() backend.Pass {
	if p.bp != nil {
		return p.bp
	}
	info := p.passInfo()
	key := passKey(info)
	if bp, ok := p.renderer.passes.Lookup(key); ok {
		p.bp = bp
		return bp
	}
	bp := p.renderer.dev.NewPass(info)
	p.renderer.passes.Insert(key, bp)
	p.bp = bp
	return bp
}

// warmup pre-builds state independent of attachment memory.
func (p *Pass) warmup() error {
	if err := p.ensureBackend().Warmup(); err != nil {
		Logger().Warn("gfxcore: pass warmup failed", "order", p.order, "error", err)
		return err
	}
	return nil
}

// build completes the pass, recording which attachment backs it.
func (p *Pass) build(flags RecreateFlags) error {
	p.backing = p.backingAttachment()
	if flags&RecreateReformat != 0 {
		// The baked layout is format-bound; start over.
		p.destructBackend()
	}
	if err := p.ensureBackend().Build(); err != nil {
		Logger().Warn("gfxcore: pass build failed", "order", p.order, "error", err)
		p.built = false
		return err
	}
	p.built = true
	return nil
}

// destructBackend throws away baked backend state, bumping the
// generation so cached pipeline state keyed on it is re-derived.
func (p *Pass) destructBackend() {
	if p.bp != nil {
		p.bp.Destruct()
		p.bp = nil
	}
	if p.built || p.backing != noBacking {
		p.gen++
	}
	p.built = false
	p.backing = noBacking
}
