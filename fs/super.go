// Package fs implements an extent-based file system: block cache,
// bitmap allocator, inode cache, directory layer, and a single-writer
// physical redo log. Grounded on the fs package (Bdev_block_t,
// Superblock_t, log.go) and on original_source/kernel/fs.c (readsb,
// icache, balloc, readi/writei, begin_tx/log_write/commit_tx).
package fs

import "github.com/rdailey98/xv6-operating-system/limits"

const (
	// NExtents is the fixed number of extents every inode carries.
	NExtents = 6
	// ExtentBlocks is how many blocks a single extent spans.
	ExtentBlocks = 32
	// MaxFileBlocks bounds a file's size in blocks.
	MaxFileBlocks = NExtents * ExtentBlocks
	// MaxFileSize is MaxFileBlocks worth of bytes.
	MaxFileSize = MaxFileBlocks * limits.BSIZE
)

// superlayout_t is the fixed on-disk layout written by cmd/mkfs and read
// at boot, grounded on original_source/inc/fs.h's struct superblock
// (size, nblocks, bmapstart, inodestart, swapstart, logstart). There is
// no separate inode region or inode bitmap: inode number 0 names the
// inode file, a regular file whose data is every inode's packed dinode
// (INODEOFF(inum) = inum*64), and it grows by ordinary append the same
// way any other file does. InodeStart is the one fixed point needed to
// bootstrap it at boot: the block holding inode 0's own dinode, which
// coincides with the first block of its first extent.
type superlayout_t struct {
	Size       int // total blocks in the filesystem image
	LogStart   int
	LogLen     int
	BmapStart  int // data bitmap, covers DataLen blocks starting at InodeStart
	BmapLen    int
	InodeStart int
	DataLen    int
	RootIno    int
}

// layoutFor computes a superlayout_t for an image of size totalBlocks:
// log, then the free bitmap, then a single unified data region in which
// the inode file claims its first extent before any regular file data
// is allocated.
func layoutFor(totalBlocks int) superlayout_t {
	l := superlayout_t{Size: totalBlocks}
	l.LogStart = 1 // block 0 is the superblock itself
	l.LogLen = limits.Syslimit.LogBlocks
	l.BmapStart = l.LogStart + l.LogLen
	// enough bitmap blocks for one bit per image block, which covers
	// DataLen (always smaller than totalBlocks)
	l.BmapLen = (totalBlocks + limits.BSIZE*8 - 1) / (limits.BSIZE * 8)
	l.InodeStart = l.BmapStart + l.BmapLen
	l.DataLen = totalBlocks - l.InodeStart
	l.RootIno = 1
	return l
}
