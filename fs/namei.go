package fs

import (
	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/limits"
)

// Root returns the (shared, ref-counted) root directory inode.
func (fs *Fs_t) Root() *Inode_t {
	return fs.Iget(fs.layout.RootIno)
}

// direntsInDir reads the root's data as a slice of populated dirents.
func (fs *Fs_t) direntsInDir(dir *Inode_t) []dirent_t {
	n := int(dir.Size) / direntSize
	out := make([]dirent_t, 0, n)
	buf := make([]byte, direntSize)
	for i := 0; i < n; i++ {
		if _, err := fs.Readi(dir, buf, i*direntSize); err != 0 {
			break
		}
		var de dirent_t
		de.unmarshal(buf)
		if de.Ino != 0 {
			out = append(out, de)
		}
	}
	return out
}

// Lookup resolves name to an inode number within dir (namex, restricted
// to the flat root directory).
func (fs *Fs_t) Lookup(dir *Inode_t, name string) (int, defs.Err_t) {
	name, err := normalizeName(name)
	if err != 0 {
		return 0, err
	}
	for _, de := range fs.direntsInDir(dir) {
		if de.name() == name {
			return int(de.Ino), 0
		}
	}
	return 0, -defs.ENOENT
}

// linkLocked appends a dirent naming ino within dir, assuming the
// caller already holds an open log transaction. Returns EEXIST if name
// is already taken.
func (fs *Fs_t) linkLocked(dir *Inode_t, name string, ino int) defs.Err_t {
	n := int(dir.Size) / direntSize
	buf := make([]byte, direntSize)
	for i := 0; i < n; i++ {
		if _, err := fs.Readi(dir, buf, i*direntSize); err != 0 {
			return err
		}
		var de dirent_t
		de.unmarshal(buf)
		if de.Ino != 0 && de.name() == name {
			return -defs.EEXIST
		}
	}
	de := dirent_t{Ino: uint16(ino)}
	setDirentName(&de, name)
	de.marshal(buf)

	dir.Lock()
	defer dir.Unlock()
	_, werr := fs.writeiLocked(dir, buf, n*direntSize)
	return werr
}

// Link appends a dirent naming ino within dir (addfile's directory
// half). Returns EEXIST if name is already taken.
func (fs *Fs_t) Link(dir *Inode_t, name string, ino int) defs.Err_t {
	name, err := normalizeName(name)
	if err != 0 {
		return err
	}
	fs.log.Begin()
	defer fs.log.Commit()
	return fs.linkLocked(dir, name, ino)
}

// AllocFile creates a fresh, zero-length file inode of the given type,
// appending its dinode to the inode file (addfile's inode half; the
// caller is responsible for linking it into a directory).
func (fs *Fs_t) AllocFile(t defs.Itype_t) (*Inode_t, defs.Err_t) {
	fs.log.Begin()
	defer fs.log.Commit()
	ip, err := fs.allocInode(t)
	if err != 0 {
		return nil, err
	}
	fs.icache.mu.Lock()
	fs.icache.byIno[ip.Ino] = ip
	fs.icache.mu.Unlock()
	return ip, 0
}

// AddFile creates a file inode and links it into dir under name inside
// a single log transaction, grounded on original_source/kernel/fs.c's
// addfile: appending the dinode and appending the dirent are one
// atomic unit, so a crash between the two steps can never leak an
// allocated inode with no name pointing at it.
func (fs *Fs_t) AddFile(dir *Inode_t, name string, t defs.Itype_t) (*Inode_t, defs.Err_t) {
	name, err := normalizeName(name)
	if err != 0 {
		return nil, err
	}
	fs.log.Begin()
	defer fs.log.Commit()

	ip, aerr := fs.allocInode(t)
	if aerr != 0 {
		return nil, aerr
	}
	if lerr := fs.linkLocked(dir, name, ip.Ino); lerr != 0 {
		return nil, lerr
	}
	fs.icache.mu.Lock()
	fs.icache.byIno[ip.Ino] = ip
	fs.icache.mu.Unlock()
	return ip, 0
}

// Stat fills a stat_t-shaped summary for ip.
func (fs *Fs_t) Stat(ip *Inode_t) (defs.Itype_t, int, int) {
	ip.Lock()
	defer ip.Unlock()
	return ip.Type, int(ip.Size), int(ip.Devid)
}

// bytesPerBlock is the block size in bytes, for code in this package
// that needs to size I/O buffers or offsets.
const bytesPerBlock = limits.BSIZE
