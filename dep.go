package gfxcore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gfxcore/backend"
)

// Protocol errors.
var (
	// ErrSessionClosed is returned when an injection session is used
	// after Abort or Finish closed it.
	ErrSessionClosed = errors.New("gfxcore: injection session closed")
)

// syncStage is the lifecycle of one sync record.
type syncStage int

const (
	syncUnused syncStage = iota
	syncPrepare
	syncPrepareCatch
	syncPending
	syncCatch
	syncUsed
)

// syncRecord tracks one signaled dependency on a resource range.
// Mutated only under the owning Dependency's lock.
type syncRecord struct {
	dep *Dependency

	ref    Unpacked
	offset uint64
	size   uint64

	mask   AccessMask
	stages StageMask

	// waits counts the remaining catches the signal allows before the
	// record is recycled.
	waits int

	stage syncStage
	claim *Injection

	// sem carries the signal across submissions; nil for blocking
	// (barrier-only) signals. Freed when the record is recycled, not
	// before, so in-flight submissions keep a valid handle.
	sem backend.Semaphore
}

// Dependency is a synchronization object shared between producers and
// consumers of resources. All record access, from any session on any
// goroutine, is serialized by the dependency's lock.
type Dependency struct {
	mu  sync.Mutex
	dev backend.Device

	syncs []*syncRecord

	// waitCapacity is how many consumers may catch one signal before
	// its record is spent.
	waitCapacity int
}

// NewDependency creates a dependency object on a device. waitCapacity
// is clamped to at least one.
func NewDependency(dev backend.Device, waitCapacity int) *Dependency {
	if waitCapacity < 1 {
		waitCapacity = 1
	}
	return &Dependency{dev: dev, waitCapacity: waitCapacity}
}

// numLive returns the count of records not unused and not spent.
func (d *Dependency) numLive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.syncs {
		if s.stage != syncUnused && s.stage != syncUsed {
			n++
		}
	}
	return n
}

// claimRecord finds a reusable record or appends a new one.
// Caller holds d.mu. Spent records are recycled here, which also
// defers semaphore destruction to a point after their submissions
// retired.
func (d *Dependency) claimRecord() *syncRecord {
	for _, s := range d.syncs {
		if s.stage == syncUnused {
			return s
		}
		if s.stage == syncUsed {
			if s.sem != nil {
				d.dev.FreeSemaphore(s.sem)
			}
			*s = syncRecord{dep: d, stage: syncUnused}
			return s
		}
	}
	s := &syncRecord{dep: d, stage: syncUnused}
	d.syncs = append(d.syncs, s)
	return s
}

// Inject is one injection command: a signal or wait against a
// dependency object, optionally narrowed to a resource reference.
type Inject struct {
	dep    *Dependency
	signal bool

	mask   AccessMask
	stages StageMask

	ref    Reference
	hasRef bool
}

// Signal injects a signal: the operation makes its accesses under
// mask/stages visible through dep.
func Signal(dep *Dependency, mask AccessMask, stages StageMask) Inject {
	return Inject{dep: dep, signal: true, mask: mask, stages: stages}
}

// SignalRange is Signal narrowed to one resource reference.
func SignalRange(dep *Dependency, mask AccessMask, stages StageMask, ref Reference) Inject {
	return Inject{dep: dep, signal: true, mask: mask, stages: stages, ref: ref, hasRef: true}
}

// Wait injects a wait: the operation observes everything signaled
// through dep.
func Wait(dep *Dependency) Inject {
	return Inject{dep: dep}
}

// WaitRange is Wait narrowed to one resource reference.
func WaitRange(dep *Dependency, ref Reference) Inject {
	return Inject{dep: dep, ref: ref, hasRef: true}
}

// Injection is the metadata of one protocol session: a batch of
// Prepare and Catch calls closed out by exactly one Abort or Finish,
// never both. After either, the session is dead; further calls return
// ErrSessionClosed.
//
// The wait and signal semaphore lists accumulate across calls and
// feed the submission recorded against this session.
type Injection struct {
	mu     sync.Mutex
	closed bool

	prepared []*syncRecord
	caught   []*syncRecord

	waits []backend.Semaphore
	sigs  []backend.Semaphore
}

// NewInjection creates a fresh session.
func NewInjection() *Injection { return &Injection{} }

// Waits returns the semaphores the session's submission must wait on.
func (inj *Injection) Waits() []backend.Semaphore { return inj.waits }

// Signals returns the semaphores the session's submission must signal.
func (inj *Injection) Signals() []backend.Semaphore { return inj.sigs }

// rangesOverlap reports whether two byte ranges intersect; a zero
// size stands for the whole resource.
func rangesOverlap(ao, as, bo, bs uint64) bool {
	if as == 0 || bs == 0 {
		return true
	}
	return ao < bo+bs && bo < ao+as
}

// unpackInject resolves an injection's optional reference.
func unpackInject(in Inject) (Unpacked, uint64, uint64, error) {
	if !in.hasRef {
		return Unpacked{}, 0, 0, nil
	}
	u, err := Unpack(in.ref)
	if err != nil {
		return Unpacked{}, 0, 0, fmt.Errorf("gfxcore: inject reference: %w", err)
	}
	return u, u.Value, RefSize(in.ref), nil
}

// Prepare records what the operation signals: for every signal
// injection a sync record is created (or a spent one reused) in the
// prepare stage, claimed by this session. Non-blocking signals
// allocate a semaphore so consumers on other submissions can wait;
// blocking signals rely on barriers alone.
//
// Prepare may be called from multiple goroutines, against the same or
// different dependency objects. Prepared records become visible to
// Catch calls on this same session immediately, and to other sessions
// at Finish.
func (inj *Injection) Prepare(enc backend.Encoder, blocking bool, injects ...Inject) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.closed {
		return ErrSessionClosed
	}

	for _, in := range injects {
		if !in.signal || in.dep == nil {
			continue
		}
		u, offset, size, err := unpackInject(in)
		if err != nil {
			return err
		}

		d := in.dep
		d.mu.Lock()
		rec := d.claimRecord()
		rec.ref = u
		rec.offset = offset
		rec.size = size
		rec.mask = in.mask
		rec.stages = in.stages
		rec.stage = syncPrepare
		rec.claim = inj

		if !blocking {
			sem, err := d.dev.NewSemaphore()
			if err != nil {
				rec.stage = syncUnused
				rec.claim = nil
				d.mu.Unlock()
				return fmt.Errorf("gfxcore: prepare signal: %w", err)
			}
			rec.sem = sem
			inj.sigs = append(inj.sigs, sem)
		}
		d.mu.Unlock()

		inj.prepared = append(inj.prepared, rec)
	}
	return nil
}

// Catch finds the pending signals matching each wait injection and
// emits the corresponding waits, in the order injections are
// supplied: a semaphore wait when the signal carries one, a barrier
// recorded into enc otherwise. Matching records move toward the catch
// stage; records this session prepared earlier are matched too.
//
// A recording failure leaves the session open; the caller must Abort.
func (inj *Injection) Catch(enc backend.Encoder, injects ...Inject) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.closed {
		return ErrSessionClosed
	}

	for _, in := range injects {
		if in.signal || in.dep == nil {
			continue
		}
		u, offset, size, err := unpackInject(in)
		if err != nil {
			return err
		}

		d := in.dep
		d.mu.Lock()
		var barriers []backend.Barrier
		for _, rec := range d.syncs {
			catchable := rec.stage == syncPending ||
				(rec.stage == syncPrepare && rec.claim == inj)
			if !catchable {
				continue
			}
			if in.hasRef && !rec.ref.IsEmpty() {
				if !rec.ref.Equal(u) {
					continue
				}
				if !rangesOverlap(rec.offset, rec.size, offset, size) {
					continue
				}
			}

			switch {
			case rec.sem != nil:
				inj.waits = append(inj.waits, rec.sem)
			case rec.ref.Image != nil:
				barriers = append(barriers, backend.Barrier{Image: rec.ref.Image.backing})
			case rec.ref.Buffer != nil:
				barriers = append(barriers, backend.Barrier{Buffer: rec.ref.Buffer.backing})
			}

			if rec.stage == syncPrepare {
				rec.stage = syncPrepareCatch
			} else {
				rec.stage = syncCatch
				rec.claim = inj
				inj.caught = append(inj.caught, rec)
			}
		}
		d.mu.Unlock()

		if len(barriers) > 0 && enc != nil {
			if err := enc.Barrier(barriers); err != nil {
				return fmt.Errorf("gfxcore: catch barrier: %w", err)
			}
		}
	}
	return nil
}

// Abort unwinds the session: prepared signals are released as if the
// Prepare never happened, caught records return to pending so other
// consumers can still catch them. Closes the session.
func (inj *Injection) Abort() error {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.closed {
		return ErrSessionClosed
	}

	for _, rec := range inj.prepared {
		d := rec.dep
		d.mu.Lock()
		if (rec.stage == syncPrepare || rec.stage == syncPrepareCatch) && rec.claim == inj {
			// The semaphore was never part of a committed submission.
			if rec.sem != nil {
				d.dev.FreeSemaphore(rec.sem)
			}
			*rec = syncRecord{dep: d, stage: syncUnused}
		}
		d.mu.Unlock()
	}
	for _, rec := range inj.caught {
		d := rec.dep
		d.mu.Lock()
		if rec.stage == syncCatch && rec.claim == inj {
			rec.stage = syncPending
			rec.claim = nil
		}
		d.mu.Unlock()
	}

	inj.prepared = nil
	inj.caught = nil
	inj.waits = nil
	inj.sigs = nil
	inj.closed = true
	return nil
}

// Finish commits the session: prepared signals become pending and
// visible to future waiters, self-caught records are consumed, and
// every caught record spends one wait. Spent records are recycled
// lazily by later Prepare calls. Closes the session.
func (inj *Injection) Finish() error {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if inj.closed {
		return ErrSessionClosed
	}

	for _, rec := range inj.prepared {
		d := rec.dep
		d.mu.Lock()
		switch {
		case rec.stage == syncPrepare && rec.claim == inj:
			rec.stage = syncPending
			rec.claim = nil
			rec.waits = d.waitCapacity
		case rec.stage == syncPrepareCatch && rec.claim == inj:
			rec.stage = syncUsed
			rec.claim = nil
		}
		d.mu.Unlock()
	}
	for _, rec := range inj.caught {
		d := rec.dep
		d.mu.Lock()
		if rec.stage == syncCatch && rec.claim == inj {
			rec.waits--
			rec.claim = nil
			if rec.waits > 0 {
				rec.stage = syncPending
			} else {
				rec.stage = syncUsed
			}
		}
		d.mu.Unlock()
	}

	inj.prepared = nil
	inj.caught = nil
	inj.closed = true
	return nil
}
