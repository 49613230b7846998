package vm

import (
	"testing"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/mem"
)

func freshVspace() *Vspace_t {
	phys := mem.New()
	swap := mem.NewSwap(disk.NewMemDisk(mem.PGSIZE), 0, 8)
	as := New(phys, swap)
	as.LoadCode([]byte("codecodecode"))
	as.EnsureStack(PGSIZE)
	return as
}

func TestForkSharesReadOnlyThenCOWSplitsOnWrite(t *testing.T) {
	parent := freshVspace()
	parent.Sbrk(PGSIZE)
	heapVA := parent.regions[RegionHeap].base
	if err := parent.WriteByte(heapVA, 'A'); err != 0 {
		t.Fatalf("seed write: %v", err)
	}

	child := parent.Clone()

	pb, _ := parent.ReadByte(heapVA)
	cb, _ := child.ReadByte(heapVA)
	if pb != 'A' || cb != 'A' {
		t.Fatalf("clone did not share initial content: parent=%c child=%c", pb, cb)
	}

	if err := child.WriteByte(heapVA, 'B'); err != 0 {
		t.Fatalf("child write: %v", err)
	}
	pb2, _ := parent.ReadByte(heapVA)
	cb2, _ := child.ReadByte(heapVA)
	if pb2 != 'A' {
		t.Fatalf("parent page mutated by child's CoW write: got %c", pb2)
	}
	if cb2 != 'B' {
		t.Fatalf("child write did not take effect: got %c", cb2)
	}
}

func TestHeapGrowthFaultsInAZeroPage(t *testing.T) {
	as := freshVspace()
	old, err := as.Sbrk(PGSIZE)
	if err != 0 {
		t.Fatalf("Sbrk: %v", err)
	}
	b, err := as.ReadByte(old)
	if err != 0 {
		t.Fatalf("read newly-sbrk'd page: %v", err)
	}
	if b != 0 {
		t.Fatalf("new anon page not zeroed: %v", b)
	}
	if err := as.WriteByte(old, 'X'); err != 0 {
		t.Fatalf("write newly-sbrk'd page: %v", err)
	}
}

func TestStackGrowsOnFaultWithinGuard(t *testing.T) {
	as := freshVspace()
	top := as.StackTop()
	base := top - as.regions[RegionStack].size
	// one page below the current stack base, still inside the guard
	fa := base - PGSIZE + 1
	if err := as.WriteByte(fa, 'Z'); err != 0 {
		t.Fatalf("stack growth fault: %v", err)
	}
}

func TestFaultFarBeyondGuardIsRejected(t *testing.T) {
	as := freshVspace()
	top := as.StackTop()
	base := top - as.regions[RegionStack].size
	fa := base - (StackGuardPages+5)*PGSIZE
	if err := as.WriteByte(fa, 'Z'); err == 0 {
		t.Fatal("expected fault beyond the guard region to fail")
	}
}

// evictOnce runs exactly the sequence mem.SwapEvictor.Evict performs
// (mem/evict.go), but against a caller-chosen victim instead of
// Physmem_t.VictimCandidate's random sample. get_random_user_page's
// uniform draw over the whole core map is fine for the real allocator,
// where any evictable frame will do, but it makes a test that wants to
// evict one specific page nondeterministic: with only one evictable
// frame among hundreds of candidates, the 100-try sampling loop can
// exhaust its retries and report no victim found. Driving the same
// evict-relocate-markswapped sequence directly keeps the test's outcome
// independent of the core map's size.
func evictOnce(phys *mem.Physmem_t, swap *mem.Swap_t, victim mem.Frame, markSwapped func(mem.Frame, mem.SwapIdx, int) int) {
	va, _ := phys.Owner(victim)
	ref := int32(phys.Refcnt(victim))
	idx, ok := swap.Alloc(va, ref)
	if !ok {
		panic("evictOnce: swap exhausted")
	}
	swap.Write(idx, phys.Page(victim))
	if markSwapped != nil {
		markSwapped(victim, idx, va)
	}
	phys.ClearAvailability(victim)
}

func TestEvictionRoundTripPreservesContent(t *testing.T) {
	phys := mem.New()
	d := disk.NewMemDisk(mem.PGSIZE)
	swap := mem.NewSwap(d, 0, 64)
	as := New(phys, swap)
	as.LoadCode([]byte("code"))
	as.EnsureStack(PGSIZE)
	as.Sbrk(PGSIZE)
	heapVA := as.regions[RegionHeap].base
	as.WriteByte(heapVA, 'Q')

	heapFrame := as.regions[RegionHeap].pages[pground(heapVA)].frame
	evictOnce(phys, swap, heapFrame, as.MarkSwapped)

	b, err := as.ReadByte(heapVA)
	if err != 0 {
		t.Fatalf("read after eviction: %v", err)
	}
	if b != 'Q' {
		t.Fatalf("content not preserved across eviction: got %v", b)
	}
}
