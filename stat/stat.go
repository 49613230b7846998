// Package stat defines the structure returned by the fstat syscall.
package stat

import "github.com/rdailey98/xv6-operating-system/defs"

// Stat_t mirrors a file's metadata, grounded on the stat package's
// Stat_t.
type Stat_t struct {
	Dev  uint
	Ino  uint
	Type defs.Itype_t
	Size uint
	Rdev uint
}
