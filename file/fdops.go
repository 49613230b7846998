// Package file implements the open-file layer: a global open-file
// table shared by every process, pipes, and device files, unified
// behind one Fdops_i interface. Grounded on the fd package (Fd_t,
// Fdops_i) and fs device dispatch, and on
// original_source/kernel/file.c (filealloc/fileclose/filedup/fileread/
// filewrite).
package file

import (
	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// Fdops_i is implemented by every kind of open file: a regular inode, a
// pipe end, or a device.
type Fdops_i interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
	Close() defs.Err_t
	Fstat() (stat.Stat_t, defs.Err_t)
}

// Fd_t is one process's file-descriptor slot: an Fdops_i plus the open
// mode it was opened with.
type Fd_t struct {
	Fops  Fdops_i
	Perms int
}

// Copyfd duplicates a descriptor, bumping the shared table entry's
// reference count (dup/fork fd-table copy).
func Copyfd(fd *Fd_t) *Fd_t {
	if rc, ok := fd.Fops.(*tableRef); ok {
		rc.Ref()
	}
	return &Fd_t{Fops: fd.Fops, Perms: fd.Perms}
}
