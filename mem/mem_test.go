package mem

import "testing"

func TestAllocRefupFreeLifecycle(t *testing.T) {
	p := New()
	f, ok := p.Alloc()
	if !ok {
		t.Fatal("Alloc failed on fresh core map")
	}
	if p.Refcnt(f) != 1 {
		t.Fatalf("fresh frame ref = %d, want 1", p.Refcnt(f))
	}
	p.Refup(f)
	if p.Refcnt(f) != 2 {
		t.Fatalf("after Refup ref = %d, want 2", p.Refcnt(f))
	}
	p.Free(f)
	if p.Refcnt(f) != 1 {
		t.Fatalf("after one Free ref = %d, want 1", p.Refcnt(f))
	}
	p.Free(f)
}

func TestDoubleFreePanics(t *testing.T) {
	p := New()
	f, _ := p.Alloc()
	p.Free(f)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	p.Free(f)
}

func TestFrameZeroNeverAllocated(t *testing.T) {
	p := New()
	for i := 0; i < len(p.meta)-1; i++ {
		f, ok := p.Alloc()
		if !ok {
			t.Fatalf("Alloc failed with no evictor at iteration %d", i)
		}
		if f == 0 {
			t.Fatal("frame 0 was handed out")
		}
	}
}

type stubEvictor struct {
	called bool
	victim Frame
}

func (s *stubEvictor) Evict(p *Physmem_t) (Frame, bool) {
	s.called = true
	p.ClearAvailability(s.victim)
	return s.victim, true
}

func TestAllocFallsBackToEvictorWhenExhausted(t *testing.T) {
	p := New()
	var last Frame
	for {
		f, ok := p.Alloc()
		if !ok {
			break
		}
		last = f
	}
	ev := &stubEvictor{victim: last}
	p.SetEvictor(ev)
	if _, ok := p.Alloc(); !ok {
		t.Fatal("Alloc should succeed via evictor")
	}
	if !ev.called {
		t.Fatal("evictor was never invoked")
	}
}

func TestCopyProducesIndependentFrame(t *testing.T) {
	p := New()
	src, _ := p.Alloc()
	copy(p.Page(src), []byte("hello"))
	dst, ok := p.Copy(src)
	if !ok {
		t.Fatal("Copy failed")
	}
	if dst == src {
		t.Fatal("Copy returned the same frame")
	}
	if string(p.Page(dst)[:5]) != "hello" {
		t.Fatalf("copy content mismatch: %q", p.Page(dst)[:5])
	}
	p.Page(dst)[0] = 'H'
	if p.Page(src)[0] == 'H' {
		t.Fatal("writing the copy mutated the source frame")
	}
}
