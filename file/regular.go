package file

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// regularFile_t backs a descriptor opened on an inode, grounded on
// original_source/kernel/file.c's fileread/filewrite. Multiple
// descriptors (from dup or fork) may share one regularFile_t; ref
// counts how many and off is the shared read/write cursor, matching
// xv6's struct file semantics (dup'd descriptors share an offset,
// descriptors from independent opens do not).
type regularFile_t struct {
	mu  sync.Mutex
	ref int
	ip  *fs.Inode_t
	fsp *fs.Fs_t
	off int
}

// OpenInode wraps an inode already resolved by the caller (open) as a
// readable/writable Fdops_i.
func OpenInode(fsp *fs.Fs_t, ip *fs.Inode_t) Fdops_i {
	return &regularFile_t{ref: 1, ip: ip, fsp: fsp}
}

func (f *regularFile_t) Read(dst []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.fsp.Readi(f.ip, dst, f.off)
	if err != 0 {
		return 0, err
	}
	f.off += n
	return n, 0
}

func (f *regularFile_t) Write(src []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.fsp.Writei(f.ip, src, f.off)
	if err != 0 {
		return n, err
	}
	f.off += n
	return n, 0
}

func (f *regularFile_t) Close() defs.Err_t {
	f.mu.Lock()
	f.ref--
	done := f.ref == 0
	f.mu.Unlock()
	if done {
		f.fsp.Iput(f.ip)
	}
	return 0
}

func (f *regularFile_t) Fstat() (stat.Stat_t, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, size, devid := f.fsp.Stat(f.ip)
	return stat.Stat_t{Ino: uint(f.ip.Ino), Type: t, Size: uint(size), Rdev: uint(devid)}, 0
}
