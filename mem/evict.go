package mem

import "github.com/rdailey98/xv6-operating-system/klog"

// SwapEvictor is the default Evictor: random-sampling victim selection
// plus relocation to the swap manager, grounded on
// original_source/kernel/kalloc.c's evictpage/get_random_user_page.
//
// MarkSwapped must be wired by package proc at boot, since only proc can
// walk every process's address space. It is called with the evicted
// frame, the swap slot it now lives in, and the virtual address the
// core map recorded for the frame; it returns how many vpage_infos it
// updated, which Evict ignores.
type SwapEvictor struct {
	Swap        *Swap_t
	MarkSwapped func(frame Frame, idx SwapIdx, va int) int
}

// Evict implements Evictor.
func (e *SwapEvictor) Evict(phys *Physmem_t) (Frame, bool) {
	victim, ok := phys.VictimCandidate()
	if !ok {
		klog.Warnf("mem: no evictable user frame found under allocation pressure")
		return NoFrame, false
	}
	va, _ := phys.Owner(victim)
	ref := int32(phys.Refcnt(victim))
	idx, ok := e.Swap.Alloc(va, ref)
	if !ok {
		klog.Warnf("mem: swap exhausted, cannot evict frame")
		return NoFrame, false
	}
	e.Swap.Write(idx, phys.Page(victim))
	if e.MarkSwapped != nil {
		e.MarkSwapped(victim, idx, va)
	}
	phys.ClearAvailability(victim)
	return victim, true
}
