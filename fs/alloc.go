package fs

import "github.com/rdailey98/xv6-operating-system/limits"

// bitmap_t is the free-block bitmap, grounded on
// original_source/kernel/fs.c's balloc. Each bit's storage lives in the
// block cache and is subject to the log like any other metadata write.
// There is no corresponding free: per the on-disk format, once a block
// is claimed (by a file's extent or by the inode file's own growth) it
// stays claimed, matching the decision that file deletion is out of
// scope.
type bitmap_t struct {
	cache *bcache_t
	log   *log_t
	start int
	nbits int
}

func (b *bitmap_t) blockAndBit(i int) (int, int) {
	bitsPerBlock := limits.BSIZE * 8
	return b.start + i/bitsPerBlock, i % bitsPerBlock
}

// allocRange finds n consecutive free bits (used to satisfy one
// extent's 32-block span in a single allocation) and marks them used.
func (b *bitmap_t) allocRange(n int) (int, bool) {
	run := 0
	start := -1
	for i := 0; i < b.nbits; i++ {
		if b.isFree(i) {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				for j := start; j < start+n; j++ {
					b.mark(j, true)
				}
				return start, true
			}
		} else {
			run = 0
		}
	}
	return -1, false
}

func (b *bitmap_t) isFree(i int) bool {
	blkno, bit := b.blockAndBit(i)
	blk := b.cache.bread(blkno)
	byteIdx, bitIdx := bit/8, uint(bit%8)
	return blk.data[byteIdx]&(1<<bitIdx) == 0
}

func (b *bitmap_t) mark(i int, used bool) {
	blkno, bit := b.blockAndBit(i)
	blk := b.cache.bread(blkno)
	byteIdx, bitIdx := bit/8, uint(bit%8)
	if used {
		blk.data[byteIdx] |= 1 << bitIdx
	} else {
		blk.data[byteIdx] &^= 1 << bitIdx
	}
	b.cache.bwrite(blk)
	b.log.Write(blk)
}
