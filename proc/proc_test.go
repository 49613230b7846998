package proc

import (
	"testing"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/file"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/mem"
)

func freshTable(t *testing.T) *Table_t {
	t.Helper()
	d := disk.NewMemDisk(4096)
	fsys := fs.Format(d, 2048)
	phys := mem.New()
	swap := mem.NewSwap(disk.NewMemDisk(4096), 0, 32)
	files := file.NewTable()
	return New(phys, swap, fsys, files)
}

func TestForkChildGetsDistinctPid(t *testing.T) {
	tbl := freshTable(t)
	parent := tbl.UserInit()
	old, serr := parent.Vspace.Sbrk(4096)
	if serr != 0 {
		t.Fatalf("Sbrk: %v", serr)
	}
	if err := parent.Vspace.WriteByte(old, 1); err != 0 {
		t.Fatalf("seed write: %v", err)
	}

	child, err := tbl.Fork(parent)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	if child.Pid == parent.Pid {
		t.Fatal("child got parent's pid")
	}
}

func TestExitThenWaitReapsChild(t *testing.T) {
	tbl := freshTable(t)
	parent := tbl.UserInit()
	child, err := tbl.Fork(parent)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	go func() {
		tbl.Exit(child, 7)
	}()

	pid, status, werr := tbl.Wait(parent)
	if werr != 0 {
		t.Fatalf("Wait: %v", werr)
	}
	if pid != child.Pid || status != 7 {
		t.Fatalf("Wait returned pid=%d status=%d, want pid=%d status=7", pid, status, child.Pid)
	}

	if _, ok := tbl.Get(child.Pid); ok {
		t.Fatal("reaped child still present in table")
	}
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	tbl := freshTable(t)
	parent := tbl.UserInit()
	_, _, err := tbl.Wait(parent)
	if err == 0 {
		t.Fatal("expected ECHILD with no children")
	}
}
