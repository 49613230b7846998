package fs

import (
	"container/list"
	"sync"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/limits"
)

// block_t is one cached block, grounded on the fs package's
// Bdev_block_t.
type block_t struct {
	sync.Mutex
	blkno int
	data  []byte
	dirty bool
}

// bcache_t is a fixed-capacity LRU block cache sitting in front of the
// disk, grounded on the fs package's BlkList_t (a container/list
// wrapper used for the block cache's LRU order).
type bcache_t struct {
	mu      sync.Mutex
	d       disk.Disk
	cap     int
	order   *list.List // front = most recently used
	byBlkno map[int]*list.Element
	pinned  map[int]int // blkno -> refcount; pinned blocks are never evicted
}

type bcacheEntry struct {
	blk *block_t
}

func newBcache(d disk.Disk) *bcache_t {
	return &bcache_t{
		d:       d,
		cap:     limits.Syslimit.NBlockCache,
		order:   list.New(),
		byBlkno: make(map[int]*list.Element),
		pinned:  make(map[int]int),
	}
}

// bread returns the cached block for blkno, reading through to disk on
// a miss and evicting the least-recently-used unpinned block (see
// evictOne) if the cache is full.
func (c *bcache_t) bread(blkno int) *block_t {
	c.mu.Lock()
	if el, ok := c.byBlkno[blkno]; ok {
		c.order.MoveToFront(el)
		blk := el.Value.(*bcacheEntry).blk
		c.mu.Unlock()
		return blk
	}
	if c.order.Len() >= c.cap {
		c.evictOne()
	}
	blk := &block_t{blkno: blkno, data: make([]byte, limits.BSIZE)}
	c.d.ReadBlock(blkno, blk.data)
	el := c.order.PushFront(&bcacheEntry{blk: blk})
	c.byBlkno[blkno] = el
	c.mu.Unlock()
	return blk
}

// bwrite marks blk dirty; it is flushed to disk by the log at commit
// time, never synchronously here.
func (c *bcache_t) bwrite(blk *block_t) {
	blk.dirty = true
}

// pin marks blkno as belonging to the log's in-flight transaction: it
// must not be installed to its home location or evicted before the
// transaction commits, since the only copy safe to write there is the
// one in the log's staging area.
func (c *bcache_t) pin(blkno int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[blkno]++
}

// unpin releases a transaction's hold on blkno, taken by commit_tx once
// the block has been installed.
func (c *bcache_t) unpin(blkno int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned[blkno] <= 1 {
		delete(c.pinned, blkno)
	} else {
		c.pinned[blkno]--
	}
}

// evictOne drops the least-recently-used unpinned block, scanning back
// from the LRU tail past any block still pinned by the log's in-flight
// transaction (bget's free-buffer scan). A dirty block is written to
// its home location before being dropped; pinning guarantees that
// write never races the log's own commit-time install.
func (c *bcache_t) evictOne() {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		blk := el.Value.(*bcacheEntry).blk
		if c.pinned[blk.blkno] > 0 {
			continue
		}
		if blk.dirty {
			c.d.WriteBlock(blk.blkno, blk.data)
		}
		c.order.Remove(el)
		delete(c.byBlkno, blk.blkno)
		return
	}
	panic("fs: block cache exhausted by pinned transaction blocks")
}

// flushAll writes each cached block named in blknos to its home
// location, dirty or not, and marks it clean; used by commit_tx.
func (c *bcache_t) flushAll(blknos []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bn := range blknos {
		if el, ok := c.byBlkno[bn]; ok {
			blk := el.Value.(*bcacheEntry).blk
			c.d.WriteBlock(blk.blkno, blk.data)
			blk.dirty = false
		}
	}
}
