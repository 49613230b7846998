// Package sys is the syscall/trap dispatch layer. Since
// boot/trap-assembly/MMU are out of scope, this package replaces the
// hardware trap gate with explicit Go API entry points that a test or
// cmd/miniker calls directly on behalf of a simulated process,
// grounded on original_source/kernel/trap.c's syscall and page-fault
// dispatch.
package sys

import (
	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/file"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/klog"
	"github.com/rdailey98/xv6-operating-system/limits"
	"github.com/rdailey98/xv6-operating-system/mem"
	"github.com/rdailey98/xv6-operating-system/proc"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// Kernel_t bundles every subsystem and is the single object a driver
// program needs to exercise the whole simulated kernel.
type Kernel_t struct {
	Phys  *mem.Physmem_t
	Swap  *mem.Swap_t
	Disk  disk.Disk
	Fs    *fs.Fs_t
	Files *file.Table_t
	Procs *proc.Table_t
}

// Boot brings up a fresh kernel over an already-formatted disk image
// (equivalent to xv6's main() after mem_init/iinit/fileinit).
func Boot(d disk.Disk, swapDisk disk.Disk, swapStart int) (*Kernel_t, error) {
	fsys, err := fs.Boot(d)
	if err != nil {
		return nil, err
	}
	phys := mem.New()
	swap := mem.NewSwap(swapDisk, swapStart, limits.Syslimit.SwapPages)
	files := file.NewTable()
	procs := proc.New(phys, swap, fsys, files)
	klog.Infof("kernel booted")
	return &Kernel_t{Phys: phys, Swap: swap, Disk: d, Fs: fsys, Files: files, Procs: procs}, nil
}

// Fork implements the fork syscall.
func (k *Kernel_t) Fork(p *proc.Proc_t) (*proc.Proc_t, defs.Err_t) {
	return k.Procs.Fork(p)
}

// Exec implements the exec syscall: resolve path in the root directory,
// load it as the process's new program image.
func (k *Kernel_t) Exec(p *proc.Proc_t, path string, args []string) defs.Err_t {
	root := k.Fs.Root()
	defer k.Fs.Iput(root)
	ino, err := k.Fs.Lookup(root, fileName(path))
	if err != 0 {
		return err
	}
	ip := k.Fs.Iget(ino)
	defer k.Fs.Iput(ip)
	return k.Procs.Exec(p, ip, args)
}

// Exit implements the exit syscall.
func (k *Kernel_t) Exit(p *proc.Proc_t, status int) {
	k.Procs.Exit(p, status)
}

// Wait implements the wait syscall.
func (k *Kernel_t) Wait(p *proc.Proc_t) (int, int, defs.Err_t) {
	return k.Procs.Wait(p)
}

// Kill implements the kill syscall.
func (k *Kernel_t) Kill(pid int) defs.Err_t {
	return k.Procs.Kill(pid)
}

// Sbrk implements the sbrk syscall.
func (k *Kernel_t) Sbrk(p *proc.Proc_t, n int) (int, defs.Err_t) {
	return p.Vspace.Sbrk(n)
}

// Open implements the open syscall. Creating (O_CREAT) a device node is
// not modeled separately: device files are named implicitly by the
// D_CONSOLE/D_DEVNULL/D_PROF well-known paths handled below.
func (k *Kernel_t) Open(p *proc.Proc_t, path string, flags int) (int, defs.Err_t) {
	var ops file.Fdops_i
	switch path {
	case "/console":
		d, err := file.OpenDevice(defs.D_CONSOLE)
		if err != 0 {
			return -1, err
		}
		ops = d
	case "/dev/null":
		d, err := file.OpenDevice(defs.D_DEVNULL)
		if err != 0 {
			return -1, err
		}
		ops = d
	case "/dev/prof":
		d, err := file.OpenDevice(defs.D_PROF)
		if err != 0 {
			return -1, err
		}
		ops = d
	default:
		name := fileName(path)
		root := k.Fs.Root()
		defer k.Fs.Iput(root)
		ino, err := k.Fs.Lookup(root, name)
		if err == -defs.ENOENT && flags&defs.O_CREAT != 0 {
			ip, aerr := k.Fs.AddFile(root, name, defs.I_FILE)
			if aerr != 0 {
				return -1, aerr
			}
			ops = file.OpenInode(k.Fs, ip)
		} else if err != 0 {
			return -1, err
		} else {
			ip := k.Fs.Iget(ino)
			ops = file.OpenInode(k.Fs, ip)
		}
	}

	fd, aerr := k.Files.Alloc(ops, flags)
	if aerr != 0 {
		return -1, aerr
	}
	return k.installFd(p, fd)
}

func (k *Kernel_t) installFd(p *proc.Proc_t, fd *file.Fd_t) (int, defs.Err_t) {
	for i, cur := range p.Fds {
		if cur == nil {
			p.Fds[i] = fd
			return i, 0
		}
	}
	return -1, -defs.EMFILE
}

// Close implements the close syscall.
func (k *Kernel_t) Close(p *proc.Proc_t, fdno int) defs.Err_t {
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return -defs.EBADF
	}
	err := p.Fds[fdno].Fops.Close()
	p.Fds[fdno] = nil
	return err
}

// Read implements the read syscall.
func (k *Kernel_t) Read(p *proc.Proc_t, fdno int, n int) ([]byte, defs.Err_t) {
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return nil, -defs.EBADF
	}
	buf := make([]byte, n)
	got, err := p.Fds[fdno].Fops.Read(buf)
	if err != 0 {
		return nil, err
	}
	return buf[:got], 0
}

// Write implements the write syscall.
func (k *Kernel_t) Write(p *proc.Proc_t, fdno int, buf []byte) (int, defs.Err_t) {
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return 0, -defs.EBADF
	}
	return p.Fds[fdno].Fops.Write(buf)
}

// Dup implements the dup syscall.
func (k *Kernel_t) Dup(p *proc.Proc_t, fdno int) (int, defs.Err_t) {
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return -1, -defs.EBADF
	}
	return k.installFd(p, file.Copyfd(p.Fds[fdno]))
}

// Pipe implements the pipe syscall, installing both ends into p's fd
// table.
func (k *Kernel_t) Pipe(p *proc.Proc_t) (int, int, defs.Err_t) {
	r, w := file.NewPipe()
	rfd, err := k.Files.Alloc(r, defs.O_RDONLY)
	if err != 0 {
		return -1, -1, err
	}
	wfd, err := k.Files.Alloc(w, defs.O_WRONLY)
	if err != 0 {
		rfd.Fops.Close()
		return -1, -1, err
	}
	ri, _ := k.installFd(p, rfd)
	wi, _ := k.installFd(p, wfd)
	return ri, wi, 0
}

// fileName strips the leading slash every path in this flat-root
// file system carries (there are no subdirectories to walk), leaving
// the bare name stored in the root directory's dirents.
func fileName(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

// Stat implements the stat syscall.
func (k *Kernel_t) Stat(p *proc.Proc_t, fdno int) (stat.Stat_t, defs.Err_t) {
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return stat.Stat_t{}, -defs.EBADF
	}
	return p.Fds[fdno].Fops.Fstat()
}

// PageFault resolves a page fault taken while p was running, killing p
// if the fault is unresolvable.
func (k *Kernel_t) PageFault(p *proc.Proc_t, fa int, write bool) {
	if err := p.Vspace.Pgfault(defs.Tid_t(p.Pid), fa, write); err != 0 {
		k.Procs.Kill(p.Pid)
	}
}

// CrashN arms the underlying disk to panic after n more writes,
// simulating a crash for the log's recovery tests.
func (k *Kernel_t) CrashN(n int) {
	if md, ok := k.Disk.(*disk.MemDisk); ok {
		md.CrashAfter = md.Writes() + n
	}
}
