package mem

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/limits"
)

// SwapIdx identifies a fixed-size swap slot.
type SwapIdx int

const NoSwap SwapIdx = -1

// blocksPerSlot is the number of BSIZE blocks a single 4KiB page occupies
// in the swap region. A page is swapped out through the block cache as
// 8 consecutive disk blocks when blocks are counted at 512-byte
// granularity; this module's blocks are BSIZE=4096, so one page
// occupies exactly one block. See DESIGN.md for the block-size
// reconciliation.
const blocksPerSlot = PGSIZE / limits.BSIZE

type swapSlot struct {
	used bool
	ref  int32
	va   int
}

// Swap_t is the swap manager, grounded on
// original_source/kernel/kalloc.c's swap_map_entry/evictpage/swapread/
// swapwrite and fs.c's swapread/swapwrite helpers.
type Swap_t struct {
	mu    sync.Mutex
	slots []swapSlot
	disk  disk.Disk
	start int // first disk block of the swap region
}

// NewSwap constructs a swap manager over disk starting at block start,
// with n fixed-size slots.
func NewSwap(d disk.Disk, start, n int) *Swap_t {
	return &Swap_t{slots: make([]swapSlot, n), disk: d, start: start}
}

// Alloc finds a free swap slot and marks it used with the given initial
// reference count (mirroring the evicted frame's ref count, so a shared
// CoW page that gets evicted keeps one slot shared by every mapping) and
// the owning virtual address va for bookkeeping.
func (s *Swap_t) Alloc(va int, ref int32) (SwapIdx, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if !s.slots[i].used {
			s.slots[i] = swapSlot{used: true, ref: ref, va: va}
			return SwapIdx(i), true
		}
	}
	return NoSwap, false
}

// Refup increments a swap slot's reference count (another CoW sharer
// was also evicted under the same slot).
func (s *Swap_t) Refup(idx SwapIdx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[idx]
	if !sl.used || sl.ref <= 0 {
		panic("refup of unused swap slot")
	}
	sl.ref++
}

// Free decrements a swap slot's reference count, releasing the slot when
// it reaches zero on swap-in or process teardown.
func (s *Swap_t) Free(idx SwapIdx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[idx]
	if !sl.used || sl.ref <= 0 {
		panic("double free of swap slot")
	}
	sl.ref--
	if sl.ref == 0 {
		*sl = swapSlot{}
	}
}

// Release fully frees slot idx regardless of its reference count, used
// when every sharer has been migrated to a shared in-memory frame at
// once, on swap-in of a page with ref > 1 (the update_cow_references
// path).
func (s *Swap_t) Release(idx SwapIdx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[idx]
	if !sl.used {
		panic("release of unused swap slot")
	}
	*sl = swapSlot{}
}

// Ref reports the current reference count of idx.
func (s *Swap_t) Ref(idx SwapIdx) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.slots[idx].ref)
}

// Used reports whether idx is currently allocated.
func (s *Swap_t) Used(idx SwapIdx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[idx].used
}

// Write transfers page to swap slot idx (write_slot).
func (s *Swap_t) Write(idx SwapIdx, page []byte) {
	blk := s.start + int(idx)*blocksPerSlot
	s.disk.WriteBlock(blk, page)
}

// Read transfers swap slot idx's page contents into dst (read_slot).
func (s *Swap_t) Read(idx SwapIdx, dst []byte) {
	blk := s.start + int(idx)*blocksPerSlot
	s.disk.ReadBlock(blk, dst)
}
