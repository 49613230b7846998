// Package mem implements the physical page allocator and core map and
// the swap manager, grounded on the mem package (Physmem_t, Pa_t,
// Refup/Refdown/Refpg_new) and on original_source/kernel/kalloc.c
// (core_map_entry, swap_map_entry, evictpage, ppage_copy).
//
// This module does not run on bare metal: physical frames are plain
// byte slices rather than direct-mapped kernel addresses, since
// boot/MMU/TLB plumbing is out of scope.
package mem

import (
	"math/rand"
	"sync"

	"github.com/rdailey98/xv6-operating-system/limits"
)

// PGSIZE is the size of a single simulated physical page, in bytes.
const PGSIZE = 4096

// Frame identifies a physical page by its index into the core map.
// Frame(0) is always reserved: the eviction victim check treats ppn
// == 0 as special, made explicit here instead of being an
// implementation accident.
type Frame int

const NoFrame Frame = -1

type frameMeta struct {
	available bool
	user      bool
	va        int
	ref       int32
}

// Physmem_t is the core map: one entry per physical frame, plus the
// frame storage itself.
type Physmem_t struct {
	mu      sync.Mutex
	meta    []frameMeta
	pages   [][]byte
	cowFrame Frame // the single frame currently mid-CoW-copy; skip for eviction
	evictor  Evictor
}

// Evictor picks a victim frame and relocates it to swap when the
// allocator is out of free frames. Wired by package proc at boot, which
// is the only layer that can walk every process's address space.
type Evictor interface {
	Evict(phys *Physmem_t) (Frame, bool)
}

// New constructs a core map sized per limits.Syslimit and reserves
// frame 0.
func New() *Physmem_t {
	n := limits.Syslimit.NPhysPages
	p := &Physmem_t{
		meta:     make([]frameMeta, n),
		pages:    make([][]byte, n),
		cowFrame: NoFrame,
	}
	for i := range p.pages {
		p.pages[i] = make([]byte, PGSIZE)
	}
	p.meta[0] = frameMeta{available: false, ref: 1}
	for i := 1; i < n; i++ {
		p.meta[i] = frameMeta{available: true}
	}
	return p
}

// SetEvictor registers the eviction policy. Must be called once during
// boot before any allocation can exhaust the core map.
func (p *Physmem_t) SetEvictor(e Evictor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictor = e
}

// Page returns the backing byte slice for a frame, for direct content
// access by vm and the block cache.
func (p *Physmem_t) Page(f Frame) []byte {
	return p.pages[f]
}

// Refcnt reports a frame's current reference count.
func (p *Physmem_t) Refcnt(f Frame) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.meta[f].ref)
}

// Alloc finds the first available frame, zeroes it, sets ref=1 and
// marks it unavailable. If none is free it triggers eviction.
func (p *Physmem_t) Alloc() (Frame, bool) {
	return p.alloc(true)
}

// AllocNoZero behaves like Alloc but skips zeroing, for callers about
// to overwrite the whole page (e.g. swap-in, CoW copy destination).
func (p *Physmem_t) AllocNoZero() (Frame, bool) {
	return p.alloc(false)
}

func (p *Physmem_t) alloc(zero bool) (Frame, bool) {
	p.mu.Lock()
	for i := 1; i < len(p.meta); i++ {
		if p.meta[i].available {
			p.meta[i] = frameMeta{available: false, ref: 1}
			if zero {
				clearPage(p.pages[i])
			}
			p.mu.Unlock()
			return Frame(i), true
		}
	}
	evictor := p.evictor
	p.mu.Unlock()
	if evictor == nil {
		return NoFrame, false
	}
	victim, ok := evictor.Evict(p)
	if !ok {
		return NoFrame, false
	}
	p.mu.Lock()
	p.meta[victim] = frameMeta{available: false, ref: 1}
	if zero {
		clearPage(p.pages[victim])
	}
	p.mu.Unlock()
	return victim, true
}

func clearPage(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Refup increments a frame's reference count (new CoW sharer).
func (p *Physmem_t) Refup(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meta[f].available || p.meta[f].ref <= 0 {
		panic("refup of free frame")
	}
	p.meta[f].ref++
}

// Free decrements a frame's reference count; when it reaches zero the
// frame is scrubbed and returned to the free list.
func (p *Physmem_t) Free(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meta[f].available || p.meta[f].ref <= 0 {
		panic("double free")
	}
	p.meta[f].ref--
	if p.meta[f].ref == 0 {
		for i := range p.pages[f] {
			p.pages[f][i] = 0xcc // poison, catches dangling refs
		}
		p.meta[f] = frameMeta{available: true}
	}
}

// MarkUser records that a frame backs a user virtual page at va, so
// the evictor can skip kernel-owned frames.
func (p *Physmem_t) MarkUser(f Frame, va int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta[f].user = true
	p.meta[f].va = va
}

// RefSet forces a frame's reference count, used when a page comes back
// from swap already known to be shared by ref distinct mappings (a
// swapped CoW page keeps the swap slot's ref count).
func (p *Physmem_t) RefSet(f Frame, ref int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta[f].ref = int32(ref)
}

// BeginCow marks f as the frame currently being copied for
// copy-on-write, so the evictor skips it.
func (p *Physmem_t) BeginCow(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cowFrame = f
}

// EndCow clears the in-progress CoW marker.
func (p *Physmem_t) EndCow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cowFrame = NoFrame
}

// Copy duplicates src's contents into a freshly allocated frame and
// returns it. Implements ppage_copy's full-copy path
// (original_source/kernel/kalloc.c's ppage_copy): the caller is
// responsible for the "ref == 1, just flip writable" fast path, since
// that decision needs the vpage_info the mem package does not hold.
func (p *Physmem_t) Copy(src Frame) (Frame, bool) {
	p.BeginCow(src)
	defer p.EndCow()
	dst, ok := p.AllocNoZero()
	if !ok {
		return NoFrame, false
	}
	copy(p.pages[dst], p.pages[src])
	return dst, true
}

// randomUserFrame implements get_random_user_page: uniform sampling
// with up to 100 retries, skipping free/kernel/frame-0/CoW-in-progress
// frames.
func (p *Physmem_t) randomUserFrame() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.meta)
	for tries := 0; tries < 100; tries++ {
		i := 1 + rand.Intn(n-1)
		m := p.meta[i]
		if m.available || !m.user || Frame(i) == p.cowFrame {
			continue
		}
		return Frame(i), true
	}
	return NoFrame, false
}

// VictimCandidate exposes randomUserFrame to Evictor implementations
// (SwapEvictor in evict.go, or any outside this package), so they can
// use the core map's lock-protected selection logic.
func (p *Physmem_t) VictimCandidate() (Frame, bool) {
	return p.randomUserFrame()
}

// ClearAvailability forces a frame back onto the free list without
// content scrubbing, used by the evictor after it has relocated a
// frame's contents to swap.
func (p *Physmem_t) ClearAvailability(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta[f] = frameMeta{available: true}
}

// Owner returns the virtual address the frame is recorded to back.
func (p *Physmem_t) Owner(f Frame) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.meta[f]
	return m.va, m.user
}
