package fs

import (
	"encoding/binary"
	"sync"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/limits"
)

// log_t is the single-writer physical redo log, grounded on
// original_source/kernel/fs.c's begin_tx/log_write/commit_tx. Only
// one transaction is in flight at a time; a transaction's written
// blocks are staged in the log region and only copied to their home
// locations once the transaction's commit record has reached disk, so
// a crash at any point leaves the filesystem in either the pre- or the
// post-transaction state.
type log_t struct {
	mu        sync.Mutex
	cond      *sync.Cond
	active    bool
	blknos    []int // home blocks touched by the current transaction, in order
	committed map[int]int // home blkno -> index into blknos, for dedup

	d     disk.Disk
	cache *bcache_t
	start int
	size  int // blocks available for staged data (excludes the header block)
}

func newLog(d disk.Disk, cache *bcache_t, start, size int) *log_t {
	l := &log_t{
		d: d, cache: cache, start: start, size: size - 1,
		committed: make(map[int]int),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Begin starts a transaction, blocking while another is in progress
// (begin_tx).
func (l *log_t) Begin() {
	l.mu.Lock()
	for l.active {
		l.cond.Wait()
	}
	l.active = true
	l.blknos = l.blknos[:0]
	for k := range l.committed {
		delete(l.committed, k)
	}
	l.mu.Unlock()
}

// Write records that blk belongs to the current transaction (log_write).
// The caller has already mutated blk's in-memory contents and called
// bwrite; Write ensures it is replayed from the log on crash recovery
// and pins it in the cache so it cannot be evicted to its home location
// ahead of the transaction's own commit-time install.
func (l *log_t) Write(blk *block_t) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.committed[blk.blkno]; !ok {
		if len(l.blknos) >= l.size {
			panic("transaction too large for log")
		}
		l.committed[blk.blkno] = len(l.blknos)
		l.blknos = append(l.blknos, blk.blkno)
		l.cache.pin(blk.blkno)
	}
}

// Commit stages every written block into the log region, writes a
// commit header, fsyncs, installs the blocks into their home locations,
// fsyncs again, then clears the header (commit_tx). Each fsync is a
// crash-consistency boundary.
func (l *log_t) Commit() {
	l.mu.Lock()
	blknos := append([]int(nil), l.blknos...)
	l.mu.Unlock()

	if len(blknos) > 0 {
		for i, bn := range blknos {
			blk := l.cache.bread(bn)
			l.d.WriteBlock(l.start+1+i, blk.data)
		}
		l.writeHeader(blknos)
		l.d.Sync()

		l.cache.flushAll(blknos)
		l.d.Sync()

		l.writeHeader(nil)
		l.d.Sync()

		for _, bn := range blknos {
			l.cache.unpin(bn)
		}
	}

	l.mu.Lock()
	l.active = false
	l.cond.Signal()
	l.mu.Unlock()
}

func (l *log_t) writeHeader(blknos []int) {
	buf := make([]byte, limits.BSIZE)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(blknos)))
	off := 4
	for _, bn := range blknos {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(bn))
		off += 4
	}
	l.d.WriteBlock(l.start, buf)
}

// Recover replays an interrupted transaction found at boot (the crash-
// safety half of commit_tx: if the header names n blocks, the data was
// already durably staged before the crash, so finishing the copy is
// always correct regardless of where the crash landed).
func (l *log_t) Recover() int {
	hdr := make([]byte, limits.BSIZE)
	l.d.ReadBlock(l.start, hdr)
	n := int(binary.LittleEndian.Uint32(hdr[0:4]))
	if n == 0 {
		return 0
	}
	blknos := make([]int, n)
	off := 4
	for i := range blknos {
		blknos[i] = int(binary.LittleEndian.Uint32(hdr[off : off+4]))
		off += 4
	}
	buf := make([]byte, limits.BSIZE)
	for i, bn := range blknos {
		l.d.ReadBlock(l.start+1+i, buf)
		l.d.WriteBlock(bn, buf)
	}
	l.d.Sync()
	l.writeHeader(nil)
	l.d.Sync()
	return n
}
