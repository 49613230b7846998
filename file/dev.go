package file

import (
	"fmt"
	"os"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// consoleDev_t implements defs.D_CONSOLE: reads/writes pass straight
// through to the host process's stdio.
type consoleDev_t struct{}

func (consoleDev_t) Read(dst []byte) (int, defs.Err_t) {
	n, err := os.Stdin.Read(dst)
	if err != nil {
		return n, 0 // EOF reads as zero bytes, not an error
	}
	return n, 0
}

func (consoleDev_t) Write(src []byte) (int, defs.Err_t) {
	n, err := fmt.Print(string(src))
	if err != nil {
		return n, -defs.EINVAL
	}
	return n, 0
}

func (consoleDev_t) Close() defs.Err_t { return 0 }

func (consoleDev_t) Fstat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Type: defs.I_DEV, Rdev: uint(defs.D_CONSOLE)}, 0
}

// nullDev_t implements defs.D_DEVNULL.
type nullDev_t struct{}

func (nullDev_t) Read(dst []byte) (int, defs.Err_t)  { return 0, 0 }
func (nullDev_t) Write(src []byte) (int, defs.Err_t) { return len(src), 0 }
func (nullDev_t) Close() defs.Err_t                  { return 0 }
func (nullDev_t) Fstat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Type: defs.I_DEV, Rdev: uint(defs.D_DEVNULL)}, 0
}

// OpenDevice returns the Fdops_i for a device number (mknod-time
// dispatch).
func OpenDevice(dev int) (Fdops_i, defs.Err_t) {
	switch dev {
	case defs.D_CONSOLE:
		return consoleDev_t{}, 0
	case defs.D_DEVNULL:
		return nullDev_t{}, 0
	case defs.D_PROF:
		return newProfDev(), 0
	default:
		return nil, -defs.EINVAL
	}
}
