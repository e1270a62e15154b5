package gfxcore

import (
	"errors"
	"fmt"
)

// ErrGraphIncomplete is returned when one or more passes failed to
// warm up or build. The graph stays retryable; a later Build picks up
// where the failure left off.
var ErrGraphIncomplete = errors.New("gfxcore: graph incomplete")

// graphState is the build progress of a render graph.
type graphState int

const (
	stateEmpty graphState = iota
	stateInvalid
	stateValidated
	stateWarmed
	stateBuilt
)

func (s graphState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateInvalid:
		return "invalid"
	case stateValidated:
		return "validated"
	case stateWarmed:
		return "warmed"
	case stateBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// graph orders the passes of a renderer and walks the build-state
// machine. Not internally locked; the renderer's single-writer
// contract covers it.
type graph struct {
	r     *Renderer
	state graphState

	// passes in submission order: sorted by level, insertion-stable
	// within a level.
	passes []*Pass

	// sinks are passes without known children.
	sinks []*Pass
}

func (g *graph) init(r *Renderer) {
	g.r = r
	g.state = stateEmpty
}

// addPass creates a pass depending on parents and inserts it into
// submission order. On failure nothing is mutated.
func (g *graph) addPass(parents []*Pass) (*Pass, error) {
	level := 0
	for _, parent := range parents {
		if parent == nil || parent.renderer != g.r {
			return nil, ErrRendererMismatch
		}
		if parent.level+1 > level {
			level = parent.level + 1
		}
	}

	pass := &Pass{
		renderer: g.r,
		level:    level,
		order:    noBacking,
		backing:  noBacking,
		parents:  append([]*Pass(nil), parents...),
	}

	// The new pass has no children yet.
	g.sinks = append(g.sinks, pass)

	// Find the insertion spot with a backward scan: after the last
	// pass whose level does not exceed the new one, keeping insertion
	// order stable within a level.
	loc := len(g.passes)
	for loc > 0 && g.passes[loc-1].level > level {
		loc--
	}
	g.passes = append(g.passes, nil)
	copy(g.passes[loc+1:], g.passes[loc:])
	g.passes[loc] = pass

	// Parents gained a child, so they cannot be sinks. The new pass
	// sits at the tail of sinks and is skipped.
	for i := 0; i < len(g.sinks)-1; {
		removed := false
		for _, parent := range parents {
			if g.sinks[i] == parent {
				g.sinks = append(g.sinks[:i], g.sinks[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			i++
		}
	}

	// Adding the very first pass leaves nothing to purge.
	if len(g.passes) == 1 {
		g.state = stateEmpty
	} else {
		g.state = stateInvalid
	}
	return pass, nil
}

// purge destructs all baked pass state, forcing re-derivation of
// layout decisions on the next build.
func (g *graph) purge() {
	for _, p := range g.passes {
		p.destructBackend()
	}
}

// analyze is the hook for graph optimization (pass merging). It
// currently only validates.
func (g *graph) analyze() {
	g.state = stateValidated
}

// validate brings the graph to at least stateValidated, purging first
// when a structural change invalidated it.
func (g *graph) validate() {
	if g.state == stateInvalid {
		g.purge()
	}
	if g.state < stateValidated {
		g.analyze()
	}
}

// warmup pre-builds every pass's attachment-independent state.
// Partial failure keeps the state at validated; nothing regresses.
func (g *graph) warmup() error {
	if g.state >= stateWarmed {
		return nil
	}
	g.validate()

	failures := 0
	for _, p := range g.passes {
		if p.warmup() != nil {
			failures++
		}
	}
	if failures > 0 {
		Logger().Error("gfxcore: graph warmup incomplete", "failed", failures)
		return fmt.Errorf("%w: %d passes failed to warm up", ErrGraphIncomplete, failures)
	}
	g.state = stateWarmed
	return nil
}

// build brings the graph to stateBuilt. Each pass's submission order
// is assigned regardless of its build outcome, so recorders can map
// command buffers to submission order even across partial failures.
func (g *graph) build() error {
	if g.state == stateBuilt {
		return nil
	}
	g.validate()

	failures := 0
	for i, p := range g.passes {
		p.order = i
		if p.build(0) != nil {
			failures++
		}
	}
	if failures > 0 {
		Logger().Error("gfxcore: graph build incomplete", "failed", failures)
		return fmt.Errorf("%w: %d passes failed to build", ErrGraphIncomplete, failures)
	}
	g.state = stateBuilt
	Logger().Debug("gfxcore: graph built", "passes", len(g.passes))
	return nil
}

// rebuild re-invokes the build step of every pass backed by the given
// attachment. A no-op below stateWarmed; there is nothing baked yet.
// Partial failure downgrades to validated so the next build retries,
// without reverting successful rebuilds.
func (g *graph) rebuild(index int, flags RecreateFlags) error {
	if g.state < stateWarmed {
		return nil
	}

	failures := 0
	for _, p := range g.passes {
		if p.backing != index {
			continue
		}
		if p.build(flags) != nil {
			failures++
		}
	}
	if failures > 0 {
		g.state = stateValidated
		Logger().Error("gfxcore: graph rebuild incomplete",
			"attachment", index, "failed", failures)
		return fmt.Errorf("%w: %d passes failed to rebuild", ErrGraphIncomplete, failures)
	}
	return nil
}

// destruct forcibly releases the baked state of every pass backed by
// the given attachment. Must run before that attachment's resource is
// detached or freed.
func (g *graph) destruct(index int) {
	for _, p := range g.passes {
		if p.backing == index {
			p.destructBackend()
		}
	}
	if g.state >= stateWarmed {
		g.state = stateValidated
	}
}

// invalidate lazily regresses the graph; the purge happens on the
// next warmup or build.
func (g *graph) invalidate() {
	if g.state != stateEmpty {
		g.state = stateInvalid
	}
}

// clear destroys all passes in reverse submission order, so no pass
// outlives a child that lists it as parent.
func (g *graph) clear() {
	for i := len(g.passes) - 1; i >= 0; i-- {
		g.passes[i].destructBackend()
		g.passes[i] = nil
	}
	g.passes = nil
	g.sinks = nil
	g.r.passes.Clear()
	g.state = stateEmpty
}
