package fs

import (
	"encoding/binary"
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/limits"
)

// extent_t names one of an inode's six fixed extents, each spanning up
// to 32 consecutive blocks. Len is in blocks; Len == 0 means the extent
// is unused.
type extent_t struct {
	Start uint32
	Len   uint32
}

// dinode_t is the on-disk inode, grounded on original_source/inc/fs.h's
// dinode layout: i16 type, i16 devid, u32 size, six extents, and a pad
// so dinodes pack contiguously into a block with no remainder. Devid
// names the device number for I_DEV inodes and is zero otherwise;
// Readi does not dispatch on it (it reads an I_DEV inode's extents like
// any other file's), and Stat reports it to callers.
type dinode_t struct {
	Type    defs.Itype_t
	Devid   int16
	Size    uint32
	Extents [NExtents]extent_t
}

const dinodeSize = 2 + 2 + 4 + NExtents*8 + 8 // = 64: fs.h's 6-byte pad plus 2 bytes of alignment

func (d *dinode_t) marshal(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(d.Type))
	binary.LittleEndian.PutUint16(b[2:4], uint16(d.Devid))
	binary.LittleEndian.PutUint32(b[4:8], d.Size)
	off := 8
	for _, e := range d.Extents {
		binary.LittleEndian.PutUint32(b[off:off+4], e.Start)
		binary.LittleEndian.PutUint32(b[off+4:off+8], e.Len)
		off += 8
	}
}

func (d *dinode_t) unmarshal(b []byte) {
	d.Type = defs.Itype_t(binary.LittleEndian.Uint16(b[0:2]))
	d.Devid = int16(binary.LittleEndian.Uint16(b[2:4]))
	d.Size = binary.LittleEndian.Uint32(b[4:8])
	off := 8
	for i := range d.Extents {
		d.Extents[i].Start = binary.LittleEndian.Uint32(b[off : off+4])
		d.Extents[i].Len = binary.LittleEndian.Uint32(b[off+4 : off+8])
		off += 8
	}
}

// Inode_t is the in-memory inode cache entry, grounded on
// original_source/kernel/fs.c's icache. Every live reference to inode
// number Ino shares exactly one Inode_t, guaranteeing readers/writers
// observe a single consistent view and that refcount bookkeeping never
// splits across copies.
type Inode_t struct {
	sync.Mutex
	Ino  int
	ref  int
	dirty bool
	dinode_t
}

// icache_t is the inode cache, grounded on icache's "keep a cache of
// in-use inodes in memory to provide vnode synchronization". Its map is
// pre-sized to limits.Syslimit.NInode entries but is not capped there:
// Iget, AllocFile and AddFile add entries without checking a limit, and
// nothing panics when more than NInode inodes are cached.
// Loads of an inode not yet cached are collapsed via singleflight so
// concurrent first-touches from multiple goroutines issue one disk read.
type icache_t struct {
	mu    sync.Mutex
	byIno map[int]*Inode_t
}

func newICache() *icache_t {
	return &icache_t{byIno: make(map[int]*Inode_t, limits.Syslimit.NInode)}
}
