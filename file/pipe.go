package file

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// PipeBufSize is the pipe's fixed ring-buffer capacity, grounded on
// original_source/inc/file.h's PIPESIZE.
const PipeBufSize = 512

// pipe_t is the shared ring buffer behind a pipe's two ends (the
// invariant head <= tail <= head+bufsize always holds). Both ends
// block on one condition variable rather than xv6's two separate wait
// channels, since a single Go sync.Cond already wakes every blocked
// reader and writer to re-check its own predicate.
type pipe_t struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buf         [PipeBufSize]byte
	head, tail  int // tail writes, head reads; tail-head bytes buffered
	readOpen    bool
	writeOpen   bool
}

// NewPipe returns the read end and write end of a fresh pipe.
func NewPipe() (Fdops_i, Fdops_i) {
	p := &pipe_t{readOpen: true, writeOpen: true}
	p.cond = sync.NewCond(&p.mu)
	return &pipeEnd_t{p: p, write: false}, &pipeEnd_t{p: p, write: true}
}

type pipeEnd_t struct {
	p     *pipe_t
	write bool
}

func (e *pipeEnd_t) Read(dst []byte) (int, defs.Err_t) {
	if e.write {
		return 0, -defs.EINVAL
	}
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.head == p.tail && p.writeOpen {
		p.cond.Wait()
	}
	if p.head == p.tail && !p.writeOpen {
		return 0, 0 // EOF
	}
	n := 0
	for n < len(dst) && p.head < p.tail {
		dst[n] = p.buf[p.head%PipeBufSize]
		p.head++
		n++
	}
	p.cond.Broadcast()
	return n, 0
}

func (e *pipeEnd_t) Write(src []byte) (int, defs.Err_t) {
	if !e.write {
		return 0, -defs.EINVAL
	}
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	written := 0
	for written < len(src) {
		if !p.readOpen {
			p.cond.Broadcast()
			return written, -defs.EPIPE
		}
		for p.tail-p.head == PipeBufSize && p.readOpen {
			p.cond.Wait()
		}
		if !p.readOpen {
			continue
		}
		for written < len(src) && p.tail-p.head < PipeBufSize {
			p.buf[p.tail%PipeBufSize] = src[written]
			p.tail++
			written++
		}
		p.cond.Broadcast()
	}
	return written, 0
}

func (e *pipeEnd_t) Close() defs.Err_t {
	p := e.p
	p.mu.Lock()
	if e.write {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	p.cond.Broadcast()
	p.mu.Unlock()
	return 0
}

func (e *pipeEnd_t) Fstat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Type: defs.I_DEV}, 0
}
