package file

import (
	"sync"
	"testing"
	"time"
)

func TestPipeBlocksUntilDataAvailable(t *testing.T) {
	r, w := NewPipe()
	done := make(chan struct{})
	var got []byte
	go func() {
		buf := make([]byte, 5)
		n, err := r.Read(buf)
		if err != 0 {
			t.Errorf("pipe read error: %v", err)
		}
		got = buf[:n]
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("read returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := w.Write([]byte("hello")); err != 0 {
		t.Fatalf("write: %v", err)
	}
	<-done
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestPipeEOFAfterWriterCloses(t *testing.T) {
	r, w := NewPipe()
	w.Close()
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	if n != 0 || err != 0 {
		t.Fatalf("expected EOF (0, nil), got n=%d err=%v", n, err)
	}
}

func TestPipeWriteAfterReaderClosesReturnsEPIPE(t *testing.T) {
	r, w := NewPipe()
	r.Close()
	_, err := w.Write([]byte("x"))
	if err == 0 {
		t.Fatalf("expected EPIPE writing to a pipe with no reader")
	}
}

func TestTableRefSumMatchesOutstandingDescriptors(t *testing.T) {
	tbl := NewTable()
	fd1, err := tbl.Alloc(nullDev_t{}, 0)
	if err != 0 {
		t.Fatalf("alloc: %v", err)
	}
	fd2 := Copyfd(fd1)
	if got := tbl.RefSum(); got != 2 {
		t.Fatalf("RefSum = %d, want 2", got)
	}
	fd1.Fops.Close()
	if got := tbl.RefSum(); got != 1 {
		t.Fatalf("RefSum after one close = %d, want 1", got)
	}
	fd2.Fops.Close()
	if got := tbl.Count(); got != 0 {
		t.Fatalf("table entry leaked: Count = %d", got)
	}
}

func TestPipeTransfersFullBufferToConcurrentReader(t *testing.T) {
	r, w := NewPipe()
	var wg sync.WaitGroup
	payload := make([]byte, PipeBufSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Write(payload)
		w.Close()
	}()

	buf := make([]byte, PipeBufSize)
	total := 0
	for total < len(payload) {
		n, err := r.Read(buf[total:])
		if err != 0 {
			t.Fatalf("read: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	wg.Wait()
	if total != len(payload) {
		t.Fatalf("read %d bytes, want %d", total, len(payload))
	}
}
