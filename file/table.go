package file

import (
	"sync"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/limits"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// entry_t is one slot of the global open-file table: every descriptor
// that names a regular file, pipe end, or device funnels through here,
// so the table's live-entry count is the single place the NFILE limit
// is enforced and the one place the "sum of ref counts" invariant can
// be checked.
type entry_t struct {
	ops Fdops_i
	ref int
}

// Table_t is the fixed-size global open-file table, grounded on
// original_source/kernel/file.c's static struct file ftable[NFILE].
type Table_t struct {
	mu      sync.Mutex
	entries []*entry_t
}

// NewTable constructs an empty table sized per limits.Syslimit.NFile.
func NewTable() *Table_t {
	return &Table_t{entries: make([]*entry_t, 0, limits.Syslimit.NFile)}
}

// Alloc installs ops as a new table entry with ref count 1 and returns
// an *Fd_t bound to it (filealloc).
func (t *Table_t) Alloc(ops Fdops_i, perms int) (*Fd_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= limits.Syslimit.NFile {
		return nil, -defs.ENOMEM
	}
	e := &entry_t{ops: ops, ref: 1}
	t.entries = append(t.entries, e)
	return &Fd_t{Fops: &tableRef{e: e, t: t}, Perms: perms}, 0
}

// Count reports the number of live table entries, for tests asserting
// the table never leaks slots across open/close cycles.
func (t *Table_t) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// RefSum reports the sum of every live entry's reference count: this
// must equal the number of Fd_t slots pointing into the table across
// every process.
func (t *Table_t) RefSum() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	sum := 0
	for _, e := range t.entries {
		sum += e.ref
	}
	return sum
}

func (t *Table_t) remove(e *entry_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// tableRef is the Fdops_i stored in a process's Fd_t; it forwards I/O
// to the shared entry and only calls through to the real Close once the
// entry's reference count reaches zero (fileclose).
type tableRef struct {
	e *entry_t
	t *Table_t
}

func (r *tableRef) Ref() {
	r.t.mu.Lock()
	r.e.ref++
	r.t.mu.Unlock()
}

func (r *tableRef) Read(dst []byte) (int, defs.Err_t)  { return r.e.ops.Read(dst) }
func (r *tableRef) Write(src []byte) (int, defs.Err_t) { return r.e.ops.Write(src) }

func (r *tableRef) Close() defs.Err_t {
	r.t.mu.Lock()
	r.e.ref--
	done := r.e.ref == 0
	r.t.mu.Unlock()
	if !done {
		return 0
	}
	err := r.e.ops.Close()
	r.t.remove(r.e)
	return err
}

func (r *tableRef) Fstat() (stat.Stat_t, defs.Err_t) {
	return r.e.ops.Fstat()
}
