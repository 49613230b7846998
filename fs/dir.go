package fs

import (
	"encoding/binary"

	"github.com/rdailey98/xv6-operating-system/defs"
	"golang.org/x/text/unicode/norm"
)

// dirNameLen is the maximum byte length of a directory entry name,
// grounded on original_source/inc/fs.h's DIRSIZ.
const dirNameLen = 14

// direntSize matches original_source/inc/fs.h's struct dirent: a u16
// inum followed by a fixed name field, 16 bytes total.
const direntSize = 2 + dirNameLen

// dirent_t is one entry of the flat root directory.
type dirent_t struct {
	Ino  uint16
	Name [dirNameLen]byte
}

func (d *dirent_t) marshal(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], d.Ino)
	copy(b[2:direntSize], d.Name[:])
}

func (d *dirent_t) unmarshal(b []byte) {
	d.Ino = binary.LittleEndian.Uint16(b[0:2])
	copy(d.Name[:], b[2:direntSize])
}

func (d *dirent_t) name() string {
	n := 0
	for n < dirNameLen && d.Name[n] != 0 {
		n++
	}
	return string(d.Name[:n])
}

// normalizeName applies NFC normalization so that visually identical
// names composed differently on the caller's side collide in the
// directory rather than coexisting as distinct entries.
func normalizeName(name string) (string, defs.Err_t) {
	if len(name) == 0 {
		return "", -defs.EINVAL
	}
	n := norm.NFC.String(name)
	if len(n) > dirNameLen {
		return "", -defs.ENAMETOOLONG
	}
	return n, 0
}

func setDirentName(d *dirent_t, name string) {
	for i := range d.Name {
		d.Name[i] = 0
	}
	copy(d.Name[:], name)
}
