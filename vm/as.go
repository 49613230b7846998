// Package vm implements the per-process address space: regions,
// per-page metadata, copy-on-write cloning, and page-fault resolution.
// Grounded on the vm package's Vm_t/Vmregion_t and on
// original_source/kernel/trap.c's fault sequencing and kalloc.c's
// ppage_copy/swappage_copy.
package vm

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/mem"
)

// RegionKind names the four regions every vspace has: code, data,
// heap, and user stack.
type RegionKind int

const (
	RegionCode RegionKind = iota
	RegionData
	RegionHeap
	RegionStack
	nRegions
)

const (
	PGSIZE = mem.PGSIZE
	// UserTop bounds the user address space at 2GiB; the stack is laid
	// out at the top of this region.
	UserTop = 1 << 31
	// UserMin is the lowest usable user virtual address; address 0 is
	// never mapped so that a nil dereference reliably faults.
	UserMin = PGSIZE
	// StackGuardPages is how far below the stack's current base a
	// not-present write fault is still treated as stack growth.
	StackGuardPages = 10
	// MaxStackBytes bounds how far the stack may ever grow downward.
	MaxStackBytes = 8 * 1024 * 1024
)

// vpageInfo is a virtual page's per-page metadata. Exactly one of
// present/swapped holds for any mapped page.
type vpageInfo struct {
	present  bool
	writable bool
	isCow    bool
	swapped  bool
	frame    mem.Frame
	swapIdx  mem.SwapIdx
}

// region_t is a contiguous, single-direction range of virtual address
// space.
type region_t struct {
	base     int
	size     int
	writable bool
	pages    map[int]*vpageInfo // keyed by page-aligned va
}

func pground(va int) int { return va &^ (PGSIZE - 1) }

// Vspace_t is a process's address space.
type Vspace_t struct {
	mu      sync.Mutex
	phys    *mem.Physmem_t
	swap    *mem.Swap_t
	regions [nRegions]*region_t
}

// cowSwapUpdater, set once by package proc at boot, implements
// update_cow_references: when a swapped CoW page is brought back in by
// one process, every other process whose vpage_info still names the
// same swap slot is redirected to the freshly materialized frame.
var cowSwapUpdater func(idx mem.SwapIdx, va int, frame mem.Frame) int

// SetCowSwapUpdater registers the cross-process swap-in fixup callback,
// grounded on the vm package's Cpumap registration pattern.
func SetCowSwapUpdater(f func(idx mem.SwapIdx, va int, frame mem.Frame) int) {
	cowSwapUpdater = f
}

// New constructs an empty address space with its four regions
// positioned at fixed offsets: code and data grow up from UserMin, heap
// grows up above data, the stack grows down from UserTop.
func New(phys *mem.Physmem_t, swap *mem.Swap_t) *Vspace_t {
	as := &Vspace_t{phys: phys, swap: swap}
	as.regions[RegionCode] = &region_t{base: UserMin, pages: map[int]*vpageInfo{}}
	as.regions[RegionData] = &region_t{base: UserMin, pages: map[int]*vpageInfo{}}
	as.regions[RegionHeap] = &region_t{base: UserMin, writable: true, pages: map[int]*vpageInfo{}}
	as.regions[RegionStack] = &region_t{base: UserTop, writable: true, pages: map[int]*vpageInfo{}}
	return as
}

// region returns the region va falls within. The stack region is
// special: va only needs to fall within the region's maximum possible
// extent (it grows downward on demand), not its currently mapped size,
// since a stack-growth fault by definition targets an address not yet
// mapped.
func (as *Vspace_t) region(va int) (RegionKind, *region_t) {
	for k, r := range as.regions {
		kind := RegionKind(k)
		if kind == RegionStack {
			if r.size == 0 && r.base == 0 {
				continue
			}
			if va < r.base && va >= r.base-MaxStackBytes {
				return kind, r
			}
			continue
		}
		if r.size == 0 {
			continue
		}
		if va >= r.base && va < r.base+r.size {
			return kind, r
		}
	}
	return 0, nil
}

// AddMap allocates and maps size bytes (rounded up to whole pages)
// starting at base within the named region, eagerly backing every page
// with a fresh frame (add_map). Returns the number of bytes mapped.
func (as *Vspace_t) AddMap(kind RegionKind, base, size int, writable bool) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	r := as.regions[kind]
	mapped := 0
	for off := 0; off < size; off += PGSIZE {
		va := pground(base) + off
		f, ok := as.phys.Alloc()
		if !ok {
			break
		}
		as.phys.MarkUser(f, va)
		r.pages[va] = &vpageInfo{present: true, writable: writable, frame: f}
		mapped += PGSIZE
	}
	return mapped
}

// LoadCode maps the code region and copies data into it. The inode
// read itself happens in package proc, which hands the bytes here.
func (as *Vspace_t) LoadCode(data []byte) {
	as.mu.Lock()
	r := as.regions[RegionCode]
	r.base = UserMin
	size := len(data)
	as.mu.Unlock()
	n := as.AddMap(RegionCode, r.base, size, true)
	as.mu.Lock()
	defer as.mu.Unlock()
	r.size = roundup(n, PGSIZE)
	for off := 0; off < n; off += PGSIZE {
		va := r.base + off
		f := r.pages[va].frame
		end := off + PGSIZE
		if end > size {
			end = size
		}
		copy(as.phys.Page(f), data[off:end])
	}
	// data region starts right after code
	as.regions[RegionData].base = r.base + r.size
	// heap starts right after data
	as.regions[RegionHeap].base = as.regions[RegionData].base
}

func roundup(v, a int) int { return (v + a - 1) &^ (a - 1) }

// Sbrk extends (or, if n is negative, shrinks) the heap region by n
// bytes and returns the old break. New pages are not eagerly backed by
// frames; they are populated on first touch by PageFault.
func (as *Vspace_t) Sbrk(n int) (int, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	h := as.regions[RegionHeap]
	old := h.base + h.size
	if n < 0 && -n > h.size {
		return 0, -defs.EINVAL
	}
	h.size += n
	return old, 0
}

// Pgfault resolves a page fault at fa for process tid. iswrite
// distinguishes a write fault from a read fault.
func (as *Vspace_t) Pgfault(tid defs.Tid_t, fa int, iswrite bool) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.pgfaultLocked(fa, iswrite)
}

func (as *Vspace_t) pgfaultLocked(fa int, iswrite bool) defs.Err_t {
	va := pground(fa)
	kind, r := as.region(fa)
	if r == nil {
		return -defs.EFAULT
	}

	vpi, have := r.pages[va]

	// Rule 1: not-present fault on a swapped page -> swap in.
	if have && vpi.swapped {
		return as.swapIn(va, vpi)
	}

	// Rule 2: not-present write within the stack guard -> grow stack.
	if kind == RegionStack && !have && iswrite {
		stack := as.regions[RegionStack]
		base := stack.base - stack.size
		if va < base && va >= base-StackGuardPages*PGSIZE {
			grown := stack.base - stack.size - va
			n := as.growLocked(RegionStack, va, grown)
			if n != grown {
				return -defs.ENOMEM
			}
			return 0
		}
	}

	// Rule 3: write-protection fault on a CoW page -> copy.
	if have && vpi.present && vpi.isCow {
		if !iswrite {
			return 0 // benign re-fault, page is already readable
		}
		return as.cowCopy(vpi)
	}

	if have && vpi.present {
		// concurrent fault already resolved this page
		return 0
	}

	// Anonymous demand paging: first touch of a reserved-but-unbacked
	// page (heap growth via sbrk; also covers lazily-populated data/bss
	// pages). The stack only grows through the explicit guard-zone rule
	// above; anywhere else below it is a real fault.
	if !have && r.writable && kind != RegionStack {
		f, ok := as.phys.Alloc()
		if !ok {
			return -defs.ENOMEM
		}
		as.phys.MarkUser(f, va)
		r.pages[va] = &vpageInfo{present: true, writable: true, frame: f}
		return 0
	}

	return -defs.EFAULT
}

func (as *Vspace_t) growLocked(kind RegionKind, base, size int) int {
	r := as.regions[kind]
	mapped := 0
	for off := 0; off < size; off += PGSIZE {
		va := pground(base) + off
		f, ok := as.phys.Alloc()
		if !ok {
			break
		}
		as.phys.MarkUser(f, va)
		r.pages[va] = &vpageInfo{present: true, writable: true, frame: f}
		mapped += PGSIZE
	}
	r.size += mapped
	return mapped
}

// cowCopy implements ppage_copy: if the frame is shared (ref > 1),
// allocate a private copy; if it is already exclusively owned, simply
// flip the mapping writable.
func (as *Vspace_t) cowCopy(vpi *vpageInfo) defs.Err_t {
	if as.phys.Refcnt(vpi.frame) == 1 {
		vpi.writable = true
		vpi.isCow = false
		return 0
	}
	newFrame, ok := as.phys.Copy(vpi.frame)
	if !ok {
		return -defs.ENOMEM
	}
	as.phys.Free(vpi.frame)
	vpi.frame = newFrame
	vpi.writable = true
	vpi.isCow = false
	return 0
}

// swapIn implements swappage_copy (original_source/kernel/kalloc.c):
// allocate a fresh frame, read the slot's contents into it, and if
// other processes reference the same slot, fix up their mappings to
// point at the new frame instead (update_cow_references).
func (as *Vspace_t) swapIn(va int, vpi *vpageInfo) defs.Err_t {
	idx := vpi.swapIdx
	f, ok := as.phys.AllocNoZero()
	if !ok {
		return -defs.ENOMEM
	}
	as.swap.Read(idx, as.phys.Page(f))
	as.phys.MarkUser(f, va)
	ref := as.swap.Ref(idx)
	as.phys.RefSet(f, ref)
	vpi.present = true
	vpi.swapped = false
	vpi.frame = f
	vpi.swapIdx = mem.NoSwap
	if ref > 1 {
		vpi.isCow = true
		vpi.writable = false
		if cowSwapUpdater != nil {
			cowSwapUpdater(idx, va, f)
		}
	}
	// Every sharer recorded against idx has now been migrated onto f's
	// shared reference count in one step; the slot is fully drained.
	as.swap.Release(idx)
	return 0
}

// MarkSwapped implements mark_swapped for this address space: every
// present page naming frame f is rewritten to reference swap slot idx
// instead, provided the page's own address is va. Returns how many pages
// were updated.
func (as *Vspace_t) MarkSwapped(f mem.Frame, idx mem.SwapIdx, va int) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	n := 0
	for _, r := range as.regions {
		for pva, vpi := range r.pages {
			if vpi.present && vpi.frame == f && pva == va {
				vpi.present = false
				vpi.swapped = true
				vpi.swapIdx = idx
				n++
			}
		}
	}
	return n
}

// UpdateCowSwapped implements update_cow_references for this address
// space: every vpage_info still naming swap slot idx at va is
// redirected to the now-resident frame. The frame's reference count
// already accounts for every sharer (it was set from the swap slot's
// ref count at swap-in time), so this only rewrites mappings, it never
// bumps the frame's ref count itself.
func (as *Vspace_t) UpdateCowSwapped(idx mem.SwapIdx, va int, f mem.Frame) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	n := 0
	for _, r := range as.regions {
		for pva, vpi := range r.pages {
			if vpi.swapped && vpi.swapIdx == idx && pva == va {
				vpi.swapped = false
				vpi.present = true
				vpi.frame = f
				vpi.swapIdx = mem.NoSwap
				vpi.isCow = true
				vpi.writable = false
				n++
			}
		}
	}
	return n
}

// Clone performs the CoW fork clone: every present page is shared
// read-only between parent and child; swapped pages are shared by
// reference with swap_ref++.
func (as *Vspace_t) Clone() *Vspace_t {
	as.mu.Lock()
	defer as.mu.Unlock()
	dst := New(as.phys, as.swap)
	for k, r := range as.regions {
		kind := RegionKind(k)
		dr := dst.regions[kind]
		dr.base, dr.size, dr.writable = r.base, r.size, r.writable
		for va, vpi := range r.pages {
			nv := *vpi
			if vpi.present {
				as.phys.Refup(vpi.frame)
				vpi.isCow = true
				vpi.writable = false
				nv.isCow = true
				nv.writable = false
			} else if vpi.swapped {
				as.swap.Refup(vpi.swapIdx)
			}
			dr.pages[va] = &nv
		}
	}
	return dst
}

// Free releases every frame and swap slot this address space holds.
func (as *Vspace_t) Free() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, r := range as.regions {
		for _, vpi := range r.pages {
			if vpi.present {
				as.phys.Free(vpi.frame)
			} else if vpi.swapped {
				as.swap.Free(vpi.swapIdx)
			}
		}
	}
}

// translate resolves va to the frame backing it and the byte offset
// within that frame, faulting the page in (as a write if write is set) if
// necessary. Grounded on the vm package's Userdmap8_inner.
func (as *Vspace_t) translate(va int, write bool) ([]byte, defs.Err_t) {
	as.mu.Lock()
	off := va & (PGSIZE - 1)
	_, r := as.region(va)
	if r == nil {
		as.mu.Unlock()
		return nil, -defs.EFAULT
	}
	pva := pground(va)
	vpi, have := r.pages[pva]
	needFault := !have || !vpi.present || (write && (!vpi.writable || vpi.isCow))
	if needFault {
		if err := as.pgfaultLocked(va, write); err != 0 {
			as.mu.Unlock()
			return nil, err
		}
		vpi = r.pages[pva]
	}
	f := vpi.frame
	as.mu.Unlock()
	return as.phys.Page(f)[off:], 0
}

// ReadByte reads one byte of user memory at va, faulting it in if
// necessary.
func (as *Vspace_t) ReadByte(va int) (byte, defs.Err_t) {
	b, err := as.translate(va, false)
	if err != 0 {
		return 0, err
	}
	return b[0], 0
}

// WriteByte writes one byte of user memory at va, resolving any
// copy-on-write or demand-paging fault first.
func (as *Vspace_t) WriteByte(va int, v byte) defs.Err_t {
	b, err := as.translate(va, true)
	if err != 0 {
		return err
	}
	b[0] = v
	return 0
}

// CopyIn copies dst's length worth of bytes from user memory starting
// at va (User2k).
func (as *Vspace_t) CopyIn(dst []byte, va int) defs.Err_t {
	for i := range dst {
		b, err := as.translate(va+i, false)
		if err != 0 {
			return err
		}
		dst[i] = b[0]
	}
	return 0
}

// CopyOut copies src into user memory starting at va (K2user).
func (as *Vspace_t) CopyOut(va int, src []byte) defs.Err_t {
	for i, c := range src {
		b, err := as.translate(va+i, true)
		if err != 0 {
			return err
		}
		b[0] = c
	}
	return 0
}

// StackTop returns the current top (highest address, exclusive) of the
// stack region.
func (as *Vspace_t) StackTop() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.regions[RegionStack].base
}

// HeapBreak returns the current top of the heap region.
func (as *Vspace_t) HeapBreak() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	h := as.regions[RegionHeap]
	return h.base + h.size
}

// CodeBase returns the entry address of the code region.
func (as *Vspace_t) CodeBase() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.regions[RegionCode].base
}

// EnsureStack reserves the initial user stack page(s) below UserTop.
func (as *Vspace_t) EnsureStack(size int) {
	as.mu.Lock()
	base := as.regions[RegionStack].base - size
	as.mu.Unlock()
	as.AddMap(RegionStack, base, size, true)
	as.mu.Lock()
	as.regions[RegionStack].size += size
	as.mu.Unlock()
}
