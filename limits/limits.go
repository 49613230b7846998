// Package limits carries the system-wide sizing constants the kernel is
// compiled against (Syslimit_t). This teaching kernel has no runtime
// configuration surface: these are the fixed table sizes used
// throughout the kernel (process table, file table, inode cache, swap).
package limits

// BSIZE is the size of a filesystem/swap block in bytes.
const BSIZE = 4096

// Syslimit_t holds the fixed sizes of the kernel's tables.
type Syslimit_t struct {
	// NProc is the size of the process table.
	NProc int
	// NOFile is the number of fd slots per process.
	NOFile int
	// NFile is the size of the global open-file table.
	NFile int
	// NInode is the initial capacity of the in-memory inode cache (not
	// a hard limit).
	NInode int
	// SwapPages is the number of one-page swap slots on disk (one
	// BSIZE block each).
	SwapPages int
	// LogBlocks is the size, in blocks, of the file system's redo log
	// region (one of which is reserved for the commit header).
	LogBlocks int
	// NBlockCache is the number of buffers held by the block cache.
	NBlockCache int
	// NPhysPages is the number of simulated physical page frames.
	NPhysPages int
	// MaxExtents is the number of extents per inode.
	MaxExtents int
	// ExtentBlocks is the block count allocated per extent.
	ExtentBlocks int
}

// Syslimit is the default, compile-time configuration of the kernel.
var Syslimit = &Syslimit_t{
	NProc:        64,
	NOFile:       16,
	NFile:        256,
	NInode:       50,
	SwapPages:    64,
	LogBlocks:    32,
	NBlockCache:  128,
	NPhysPages:   512,
	MaxExtents:   6,
	ExtentBlocks: 32,
}
