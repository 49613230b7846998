// Package proc implements the process table, fork/exec/exit/wait, and
// sleep/wakeup rendezvous. Grounded on original_source/kernel/proc.c
// (allocproc, fork, exit, wait, sleep, wakeup) and the package-boundary
// idiom of registering a callback instead of importing the caller
// (vm.Cpumap). This is the only package that may walk every process's
// address space, so it is also where the mem.Evictor and vm CoW-swap-
// update callbacks are wired.
package proc

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/file"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/klog"
	"github.com/rdailey98/xv6-operating-system/limits"
	"github.com/rdailey98/xv6-operating-system/mem"
	"github.com/rdailey98/xv6-operating-system/vm"
)

type State int

const (
	UNUSED State = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

// Proc_t is one process. There is no register file or trap frame here:
// a process's "program" is Go code that the test driver or cmd/miniker
// runs (typically as a goroutine), calling the kernel on the process's
// behalf; Fork and Exec do not take or start a function.
type Proc_t struct {
	mu     sync.Mutex
	Pid    int
	parent *Proc_t
	state  State
	Vspace *vm.Vspace_t
	Fds    [16]*file.Fd_t
	Cwd    int // always the root inode number; the filesystem is flat

	Args       []string
	killed     bool
	exitStatus int
	children   []*Proc_t
}

// Table_t is the fixed-size process table.
type Table_t struct {
	mu    sync.Mutex
	procs map[int]*Proc_t
	next  int

	phys  *mem.Physmem_t
	swap  *mem.Swap_t
	fsys  *fs.Fs_t
	files *file.Table_t
	wait  *rendezvous_t
}

// New constructs the process table and wires it as the memory
// subsystem's eviction policy and the vm package's cross-process CoW
// swap-in fixup, since only this layer can enumerate every process's
// address space.
func New(phys *mem.Physmem_t, swap *mem.Swap_t, fsys *fs.Fs_t, files *file.Table_t) *Table_t {
	t := &Table_t{
		procs: make(map[int]*Proc_t, limits.Syslimit.NProc),
		phys:  phys, swap: swap, fsys: fsys, files: files,
		wait: newRendezvous(),
	}
	phys.SetEvictor(&mem.SwapEvictor{Swap: swap, MarkSwapped: t.markSwapped})
	vm.SetCowSwapUpdater(t.updateCowSwapped)
	return t
}

func (t *Table_t) markSwapped(f mem.Frame, idx mem.SwapIdx, va int) int {
	t.mu.Lock()
	procs := make([]*Proc_t, 0, len(t.procs))
	for _, p := range t.procs {
		procs = append(procs, p)
	}
	t.mu.Unlock()
	n := 0
	for _, p := range procs {
		n += p.Vspace.MarkSwapped(f, idx, va)
	}
	return n
}

func (t *Table_t) updateCowSwapped(idx mem.SwapIdx, va int, f mem.Frame) int {
	t.mu.Lock()
	procs := make([]*Proc_t, 0, len(t.procs))
	for _, p := range t.procs {
		procs = append(procs, p)
	}
	t.mu.Unlock()
	n := 0
	for _, p := range procs {
		n += p.Vspace.UpdateCowSwapped(idx, va, f)
	}
	return n
}

// allocproc finds a free pid and embryo-initializes a Proc_t.
func (t *Table_t) allocproc() (*Proc_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) >= limits.Syslimit.NProc {
		return nil, -defs.ENOMEM
	}
	t.next++
	p := &Proc_t{Pid: t.next, state: EMBRYO, Cwd: 1}
	t.procs[p.Pid] = p
	return p, 0
}

// UserInit creates the first process, with an empty address space
// apart from one mapped stack page (original_source's userinit).
func (t *Table_t) UserInit() *Proc_t {
	p, err := t.allocproc()
	if err != 0 {
		panic("cannot create init process")
	}
	p.Vspace = vm.New(t.phys, t.swap)
	p.Vspace.EnsureStack(vm.PGSIZE)
	p.state = RUNNABLE
	return p
}

// Fork clones the parent's address space CoW and its descriptor table,
// grounded on original_source/kernel/proc.c's fork.
func (t *Table_t) Fork(parent *Proc_t) (*Proc_t, defs.Err_t) {
	child, err := t.allocproc()
	if err != 0 {
		return nil, err
	}
	parent.mu.Lock()
	child.Vspace = parent.Vspace.Clone()
	for i, fd := range parent.Fds {
		if fd != nil {
			child.Fds[i] = file.Copyfd(fd)
		}
	}
	child.parent = parent
	parent.children = append(parent.children, child)
	parent.mu.Unlock()

	child.mu.Lock()
	child.state = RUNNABLE
	child.mu.Unlock()
	return child, 0
}

// Exec replaces p's address space with a freshly loaded program image
// read from ip, resetting the heap and stack, grounded on
// original_source/kernel/exec.c. args becomes the new argv a driver
// goroutine can read back via p.Args, since there is no real register
// file to marshal them into.
func (t *Table_t) Exec(p *Proc_t, ip *fs.Inode_t, args []string) defs.Err_t {
	_, size, _ := t.fsys.Stat(ip)
	code := make([]byte, size)
	if _, err := t.fsys.Readi(ip, code, 0); err != 0 {
		return err
	}

	old := p.Vspace
	nv := vm.New(t.phys, t.swap)
	nv.LoadCode(code)
	nv.EnsureStack(vm.PGSIZE)

	p.mu.Lock()
	p.Vspace = nv
	p.Args = args
	p.mu.Unlock()

	if old != nil {
		old.Free()
	}
	return 0
}

// Exit tears down p: frees its address space, closes its descriptors,
// reparents its children to the table's first process, and wakes any
// parent blocked in Wait (original_source's exit).
func (t *Table_t) Exit(p *Proc_t, status int) {
	p.mu.Lock()
	for i, fd := range p.Fds {
		if fd != nil {
			fd.Fops.Close()
			p.Fds[i] = nil
		}
	}
	p.Vspace.Free()
	p.exitStatus = status
	p.state = ZOMBIE
	parent := p.parent
	kids := p.children
	p.children = nil
	p.mu.Unlock()

	t.mu.Lock()
	var init *Proc_t
	for _, q := range t.procs {
		if q.Pid == 1 {
			init = q
			break
		}
	}
	t.mu.Unlock()
	if init != nil {
		for _, k := range kids {
			k.mu.Lock()
			k.parent = init
			k.mu.Unlock()
		}
		init.mu.Lock()
		init.children = append(init.children, kids...)
		init.mu.Unlock()
	}
	_ = parent
	t.wait.Wake()
}

// Wait blocks until one of parent's children becomes a zombie, reaps
// it, and returns its pid and exit status (original_source's wait).
func (t *Table_t) Wait(parent *Proc_t) (int, int, defs.Err_t) {
	var zombie *Proc_t
	t.wait.Sleep(func() bool {
		parent.mu.Lock()
		defer parent.mu.Unlock()
		if len(parent.children) == 0 {
			return true // handled below as ECHILD
		}
		for _, c := range parent.children {
			c.mu.Lock()
			isZombie := c.state == ZOMBIE
			c.mu.Unlock()
			if isZombie {
				zombie = c
				return true
			}
		}
		return false
	})

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if zombie == nil {
		return 0, 0, -defs.ECHILD
	}
	for i, c := range parent.children {
		if c == zombie {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	t.mu.Lock()
	delete(t.procs, zombie.Pid)
	t.mu.Unlock()
	return zombie.Pid, zombie.exitStatus, 0
}

// Kill marks p for termination; a process observes this the next time
// it checks p.Killed(), mirroring original_source's cooperative kill.
func (t *Table_t) Kill(pid int) defs.Err_t {
	t.mu.Lock()
	p, ok := t.procs[pid]
	t.mu.Unlock()
	if !ok {
		return -defs.ESRCH
	}
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	klog.Infof("proc %d: killed", pid)
	t.wait.Wake()
	return 0
}

// Killed reports whether p has been asked to terminate.
func (p *Proc_t) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Get looks up a process by pid.
func (t *Table_t) Get(pid int) (*Proc_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}
