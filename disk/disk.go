// Package disk implements a block device exposing read(block)/
// write(block). Grounded on ufs/driver.go's ahci_disk_t, which
// simulates a disk by opening a regular file with os.OpenFile and
// seeking to block*BSIZE before each transfer; this module additionally
// uses golang.org/x/sys/unix's Pread/Pwrite to avoid the seek-then-
// read/write race that a plain os.File would otherwise need a mutex to
// serialize.
package disk

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Disk is the block device contract the file system and swap manager are
// built against. Implementations transfer whole blocks; block size is
// fixed by the caller (limits.BSIZE in this module, 4096 bytes).
type Disk interface {
	ReadBlock(blkno int, buf []byte)
	WriteBlock(blkno int, buf []byte)
	Sync()
}

// FileDisk backs a Disk with a regular OS file, grounded on
// ufs/driver.go's ahci_disk_t but using positioned I/O instead of a
// seek+read/write pair under a lock.
type FileDisk struct {
	fd        int
	blockSize int
}

// OpenFile opens (or creates) path as a file-backed disk image with the
// given block size.
func OpenFile(path string, blockSize int) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDisk{fd: fd, blockSize: blockSize}, nil
}

func (d *FileDisk) ReadBlock(blkno int, buf []byte) {
	if len(buf) != d.blockSize {
		panic("read: bad buffer size")
	}
	off := int64(blkno) * int64(d.blockSize)
	n, err := unix.Pread(d.fd, buf, off)
	if err != nil {
		panic(err)
	}
	if n != d.blockSize {
		// an image that hasn't been written this far yet reads as zeroes
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
}

func (d *FileDisk) WriteBlock(blkno int, buf []byte) {
	if len(buf) != d.blockSize {
		panic("write: bad buffer size")
	}
	off := int64(blkno) * int64(d.blockSize)
	n, err := unix.Pwrite(d.fd, buf, off)
	if err != nil {
		panic(err)
	}
	if n != d.blockSize {
		panic("short write")
	}
}

func (d *FileDisk) Sync() {
	if err := unix.Fsync(d.fd); err != nil {
		panic(err)
	}
}

// Close releases the underlying file descriptor.
func (d *FileDisk) Close() error {
	return unix.Close(d.fd)
}

// MemDisk is an in-memory Disk, used by tests that want to simulate
// crashes at arbitrary write boundaries without touching the filesystem.
type MemDisk struct {
	mu        sync.Mutex
	blockSize int
	blocks    map[int][]byte

	// CrashAfter, when >0, lets the first CrashAfter WriteBlock calls
	// (counted since the disk was created) land and panics on every call
	// after that, simulating a crash mid-transaction for log crash-safety
	// tests.
	CrashAfter int
	writes     int

	// CrashAfterBlock, when >=0, arms a crash the instant a write to that
	// block number completes: the *next* WriteBlock call panics instead of
	// landing. This lets a test crash at a precise point in a multi-write
	// sequence (e.g. right after a log's commit header reaches disk but
	// before any home-block install) without having to count total writes.
	// The crash fires once: the panicking call disarms it, so a test can
	// reboot on the same disk afterwards.
	CrashAfterBlock int
	armed           bool
}

// NewMemDisk constructs an empty in-memory disk.
func NewMemDisk(blockSize int) *MemDisk {
	return &MemDisk{blockSize: blockSize, blocks: make(map[int][]byte), CrashAfterBlock: -1}
}

// Writes reports the number of WriteBlock calls that have landed so far.
func (d *MemDisk) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *MemDisk) ReadBlock(blkno int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(buf) != d.blockSize {
		panic("read: bad buffer size")
	}
	if b, ok := d.blocks[blkno]; ok {
		copy(buf, b)
	} else {
		for i := range buf {
			buf[i] = 0
		}
	}
}

func (d *MemDisk) WriteBlock(blkno int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(buf) != d.blockSize {
		panic("write: bad buffer size")
	}
	if d.armed {
		d.armed = false
		d.CrashAfterBlock = -1
		panic("simulated crash")
	}
	d.writes++
	if d.CrashAfter > 0 && d.writes > d.CrashAfter {
		panic("simulated crash")
	}
	cp := make([]byte, d.blockSize)
	copy(cp, buf)
	d.blocks[blkno] = cp
	if d.CrashAfterBlock >= 0 && blkno == d.CrashAfterBlock {
		d.armed = true
	}
}

func (d *MemDisk) Sync() {}
