package fs

import (
	"encoding/binary"
	"fmt"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/klog"
	"github.com/rdailey98/xv6-operating-system/limits"
	"golang.org/x/sync/singleflight"
)

// Fs_t is the top-level file system, grounded on ufs.Ufs_t but trimmed
// to a flat-root-directory, extent-based layout. There is exactly one
// directory, the root, named "/"; every other path is a single
// component directly under it.
type Fs_t struct {
	d         disk.Disk
	layout    superlayout_t
	cache     *bcache_t
	log       *log_t
	icache    *icache_t
	inodefile *Inode_t // inode 0, always resident; holds every packed dinode
	bmap      *bitmap_t
	sf        singleflight.Group
}

// Format lays out a brand-new file system on d (mkfs) and creates the
// inode file (inum 0) and the empty root directory (inum 1), grounded
// on original_source/kernel/fs.c's init_inodefile plus mkfs's initial
// layout.
func Format(d disk.Disk, totalBlocks int) *Fs_t {
	l := layoutFor(totalBlocks)
	writeSuper(d, l)

	fs := &Fs_t{d: d, layout: l, icache: newICache()}
	fs.cache = newBcache(d)
	fs.log = newLog(d, fs.cache, l.LogStart, l.LogLen)
	fs.bmap = &bitmap_t{cache: fs.cache, log: fs.log, start: l.BmapStart, nbits: l.DataLen}

	fs.log.writeHeader(nil)

	fs.log.Begin()
	// The inode file claims the first extent of the data region itself,
	// so its first block always lands at layout.InodeStart: mkfs's one
	// piece of bootstrap knowledge, needed so Boot can find inode 0
	// before any inode is readable through the generic path.
	start, ok := fs.bmap.allocRange(ExtentBlocks)
	if !ok || start != 0 {
		panic("fs: inode file's first extent did not land at InodeStart")
	}
	fs.inodefile = &Inode_t{Ino: 0, ref: 1}
	fs.inodefile.Type = defs.I_FILE
	fs.inodefile.Extents[0] = extent_t{Start: uint32(l.InodeStart), Len: ExtentBlocks}
	fs.inodefile.Size = dinodeSize // its own dinode occupies the first slot
	fs.writeDinode(fs.inodefile)

	root, err := fs.allocInode(defs.I_DIR)
	if err != 0 || root.Ino != l.RootIno {
		panic("fs: root did not land on the expected inode number")
	}
	fs.icache.byIno[root.Ino] = root
	fs.log.Commit()
	d.Sync()
	return fs
}

// Boot opens an existing file system image, replaying any interrupted
// transaction found in the log, then bootstraps the inode file from its
// known fixed location before serving requests.
func Boot(d disk.Disk) (*Fs_t, error) {
	hdr := make([]byte, limits.BSIZE)
	d.ReadBlock(0, hdr)
	l := readSuper(hdr)
	if l.Size == 0 {
		return nil, fmt.Errorf("fs: no superblock on disk")
	}

	fs := &Fs_t{d: d, layout: l, icache: newICache()}
	fs.cache = newBcache(d)
	fs.log = newLog(d, fs.cache, l.LogStart, l.LogLen)
	if n := fs.log.Recover(); n > 0 {
		klog.Warnf("fs: replayed %d block(s) from an interrupted transaction", n)
	}
	fs.bmap = &bitmap_t{cache: fs.cache, log: fs.log, start: l.BmapStart, nbits: l.DataLen}

	blk := fs.cache.bread(l.InodeStart)
	var d0 dinode_t
	d0.unmarshal(blk.data[:dinodeSize])
	fs.inodefile = &Inode_t{Ino: 0, ref: 1, dinode_t: d0}
	return fs, nil
}

func writeSuper(d disk.Disk, l superlayout_t) {
	b := make([]byte, limits.BSIZE)
	fields := []int{l.Size, l.LogStart, l.LogLen,
		l.BmapStart, l.BmapLen, l.InodeStart, l.DataLen, l.RootIno}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], uint32(f))
	}
	d.WriteBlock(0, b)
}

func readSuper(b []byte) superlayout_t {
	var l superlayout_t
	fields := []*int{&l.Size, &l.LogStart, &l.LogLen,
		&l.BmapStart, &l.BmapLen, &l.InodeStart, &l.DataLen, &l.RootIno}
	for i, f := range fields {
		*f = int(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return l
}

// readDinode/writeDinode move one inode between the inode file and an
// in-memory Inode_t, rewriting the whole dinode on every mutation,
// matching original_source/kernel/fs.c's writei: every dinode except
// inode 0's own is read and written through readi/writei on the inode
// file at offset inum*dinodeSize (INODEOFF). Inode 0's own dinode would
// otherwise recurse into itself, so it is read/written directly at its
// known fixed block instead (read_dinode's "ip != &icache.inodefile"
// guard).
func (fs *Fs_t) readDinode(ino int) dinode_t {
	if ino == 0 {
		blk := fs.cache.bread(fs.layout.InodeStart)
		var d dinode_t
		d.unmarshal(blk.data[:dinodeSize])
		return d
	}
	buf := make([]byte, dinodeSize)
	fs.inodefile.Lock()
	fs.readiLocked(fs.inodefile, buf, ino*dinodeSize)
	fs.inodefile.Unlock()
	var d dinode_t
	d.unmarshal(buf)
	return d
}

func (fs *Fs_t) writeDinode(ip *Inode_t) {
	if ip.Ino == 0 {
		blk := fs.cache.bread(fs.layout.InodeStart)
		ip.dinode_t.marshal(blk.data[:dinodeSize])
		fs.cache.bwrite(blk)
		fs.log.Write(blk)
		return
	}
	buf := make([]byte, dinodeSize)
	ip.dinode_t.marshal(buf)
	fs.inodefile.Lock()
	fs.writeiLocked(fs.inodefile, buf, ip.Ino*dinodeSize)
	fs.inodefile.Unlock()
}

// allocInode appends a fresh zero-length dinode of the given type to
// the inode file and returns its in-memory inode, grounded on
// original_source/kernel/fs.c's addfile: the caller must already hold
// an open log transaction. Inode numbers are never reused since frees
// are not supported.
func (fs *Fs_t) allocInode(t defs.Itype_t) (*Inode_t, defs.Err_t) {
	ino := int(fs.inodefile.Size) / dinodeSize
	ip := &Inode_t{Ino: ino, ref: 1}
	ip.Type = t
	fs.writeDinode(ip)
	return ip, 0
}

// Iget returns the shared Inode_t for ino, loading it from disk on
// first reference. Concurrent first-touches collapse onto a single
// disk read via singleflight, preserving the icache's one-copy-per-
// inode invariant.
func (fs *Fs_t) Iget(ino int) *Inode_t {
	fs.icache.mu.Lock()
	if ip, ok := fs.icache.byIno[ino]; ok {
		ip.ref++
		fs.icache.mu.Unlock()
		return ip
	}
	fs.icache.mu.Unlock()

	v, _, _ := fs.sf.Do(fmt.Sprintf("ino:%d", ino), func() (interface{}, error) {
		fs.icache.mu.Lock()
		if ip, ok := fs.icache.byIno[ino]; ok {
			ip.ref++
			fs.icache.mu.Unlock()
			return ip, nil
		}
		fs.icache.mu.Unlock()

		d := fs.readDinode(ino)
		ip := &Inode_t{Ino: ino, ref: 1, dinode_t: d}
		fs.icache.mu.Lock()
		fs.icache.byIno[ino] = ip
		fs.icache.mu.Unlock()
		return ip, nil
	})
	return v.(*Inode_t)
}

// Iput drops a reference to ip, evicting it from the cache once no
// caller still holds it (irelease).
func (fs *Fs_t) Iput(ip *Inode_t) {
	fs.icache.mu.Lock()
	defer fs.icache.mu.Unlock()
	ip.ref--
	if ip.ref == 0 {
		delete(fs.icache.byIno, ip.Ino)
	}
}

// blockForOffset locates the extent and within-extent block index that
// holds file offset blkIdx, allocating a new extent on demand.
func (fs *Fs_t) blockForOffset(ip *Inode_t, blkIdx int, alloc bool) (int, defs.Err_t) {
	extentIdx := blkIdx / ExtentBlocks
	within := blkIdx % ExtentBlocks
	if extentIdx >= NExtents {
		return 0, -defs.ENOSPC
	}
	e := &ip.Extents[extentIdx]
	if e.Len == 0 {
		if !alloc {
			return 0, -defs.EINVAL
		}
		start, ok := fs.bmap.allocRange(ExtentBlocks)
		if !ok {
			return 0, -defs.ENOSPC
		}
		e.Start = uint32(fs.layout.InodeStart + start)
		e.Len = ExtentBlocks
	}
	if within >= int(e.Len) {
		return 0, -defs.ENOSPC
	}
	return int(e.Start) + within, 0
}

// readiLocked is Readi's body for a caller that already holds ip's lock.
func (fs *Fs_t) readiLocked(ip *Inode_t, dst []byte, off int) (int, defs.Err_t) {
	if off >= int(ip.Size) {
		return 0, 0
	}
	n := len(dst)
	if off+n > int(ip.Size) {
		n = int(ip.Size) - off
	}
	read := 0
	for read < n {
		blkIdx := (off + read) / limits.BSIZE
		within := (off + read) % limits.BSIZE
		pblk, err := fs.blockForOffset(ip, blkIdx, false)
		if err != 0 {
			return read, err
		}
		blk := fs.cache.bread(pblk)
		m := limits.BSIZE - within
		if m > n-read {
			m = n - read
		}
		copy(dst[read:read+m], blk.data[within:within+m])
		read += m
	}
	return read, 0
}

// Readi reads up to len(dst) bytes from ip at off (readi).
func (fs *Fs_t) Readi(ip *Inode_t, dst []byte, off int) (int, defs.Err_t) {
	ip.Lock()
	defer ip.Unlock()
	return fs.readiLocked(ip, dst, off)
}

// writeiLocked is Writei's body for a caller that already holds ip's
// lock and an open log transaction; used so multi-step operations like
// AddFile can batch an inode write and a dirent write into a single
// transaction.
func (fs *Fs_t) writeiLocked(ip *Inode_t, src []byte, off int) (int, defs.Err_t) {
	if off+len(src) > MaxFileSize {
		return 0, -defs.ENOSPC
	}
	written := 0
	for written < len(src) {
		blkIdx := (off + written) / limits.BSIZE
		within := (off + written) % limits.BSIZE
		pblk, err := fs.blockForOffset(ip, blkIdx, true)
		if err != 0 {
			return written, err
		}
		blk := fs.cache.bread(pblk)
		m := limits.BSIZE - within
		if m > len(src)-written {
			m = len(src) - written
		}
		copy(blk.data[within:within+m], src[written:written+m])
		fs.cache.bwrite(blk)
		fs.log.Write(blk)
		written += m
	}
	if off+written > int(ip.Size) {
		ip.Size = uint32(off + written)
	}
	fs.writeDinode(ip)
	return written, 0
}

// Writei writes src into ip at off, allocating extents as needed and
// persisting the dinode on every call (writei). A write that begins
// outside a running transaction opens and commits one internally, so a
// single Writei call is atomic.
func (fs *Fs_t) Writei(ip *Inode_t, src []byte, off int) (int, defs.Err_t) {
	ip.Lock()
	defer ip.Unlock()
	fs.log.Begin()
	defer fs.log.Commit()
	return fs.writeiLocked(ip, src, off)
}
