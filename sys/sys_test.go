package sys

import (
	"testing"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/proc"
)

func freshKernel(t *testing.T) (*Kernel_t, *proc.Proc_t) {
	t.Helper()
	d := disk.NewMemDisk(4096)
	fs.Format(d, 2048)
	k, err := Boot(d, disk.NewMemDisk(4096), 0)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	p := k.Procs.UserInit()
	return k, p
}

func TestOpenCreateWriteCloseReadRoundTrip(t *testing.T) {
	k, p := freshKernel(t)

	fd, err := k.Open(p, "/greeting", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("Open create: %v", err)
	}
	if _, err := k.Write(p, fd, []byte("hi there")); err != 0 {
		t.Fatalf("Write: %v", err)
	}
	if err := k.Close(p, fd); err != 0 {
		t.Fatalf("Close: %v", err)
	}

	fd2, err := k.Open(p, "/greeting", defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("Open read: %v", err)
	}
	buf, err := k.Read(p, fd2, 64)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hi there" {
		t.Fatalf("got %q", buf)
	}
}

func TestPipeRoundTrip(t *testing.T) {
	k, p := freshKernel(t)
	r, w, err := k.Pipe(p)
	if err != 0 {
		t.Fatalf("Pipe: %v", err)
	}
	done := make(chan struct{})
	go func() {
		k.Write(p, w, []byte("ping"))
		k.Close(p, w)
		close(done)
	}()
	buf, err := k.Read(p, r, 16)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	<-done
	if string(buf) != "ping" {
		t.Fatalf("got %q", buf)
	}
}

func TestExecAbsolutePath(t *testing.T) {
	k, p := freshKernel(t)
	fd, err := k.Open(p, "/prog", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("Open create: %v", err)
	}
	if _, err := k.Write(p, fd, []byte("x")); err != 0 {
		t.Fatalf("Write: %v", err)
	}
	if err := k.Close(p, fd); err != 0 {
		t.Fatalf("Close: %v", err)
	}
	if err := k.Exec(p, "/prog", nil); err != 0 {
		t.Fatalf("Exec of an absolute path should resolve the same bare name Open stored: %v", err)
	}
}

func TestForkExitWaitViaKernel(t *testing.T) {
	k, p := freshKernel(t)
	child, err := k.Fork(p)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	go k.Exit(child, 3)
	pid, status, werr := k.Wait(p)
	if werr != 0 || pid != child.Pid || status != 3 {
		t.Fatalf("Wait: pid=%d status=%d err=%v", pid, status, werr)
	}
}
