// Command miniker is a small driver that boots the simulated kernel
// against a file system image and runs a scripted sequence of syscalls
// from two cooperating processes, exercising fork, exec-free file I/O,
// exit and wait end to end.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/fs"
	"github.com/rdailey98/xv6-operating-system/sys"
)

func main() {
	imgPath := flag.String("img", "fs.img", "file system image path")
	swapPath := flag.String("swap", "swap.img", "swap image path")
	flag.Parse()

	if _, err := os.Stat(*imgPath); os.IsNotExist(err) {
		d, err := disk.OpenFile(*imgPath, 4096)
		if err != nil {
			log.Fatal(err)
		}
		fs.Format(d, 65536)
		d.Sync()
		d.Close()
	}

	d, err := disk.OpenFile(*imgPath, 4096)
	if err != nil {
		log.Fatal(err)
	}
	sd, err := disk.OpenFile(*swapPath, 4096)
	if err != nil {
		log.Fatal(err)
	}

	k, err := sys.Boot(d, sd, 0)
	if err != nil {
		log.Fatal(err)
	}

	parent := k.Procs.UserInit()

	fd, err := k.Open(parent, "/hello", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		log.Fatalf("open: %v", err)
	}
	if _, err := k.Write(parent, fd, []byte("hello from miniker\n")); err != 0 {
		log.Fatalf("write: %v", err)
	}
	k.Close(parent, fd)

	child, err := k.Fork(parent)
	if err != 0 {
		log.Fatalf("fork: %v", err)
	}

	done := make(chan struct{})
	go func() {
		rfd, err := k.Open(child, "/hello", defs.O_RDONLY)
		if err != 0 {
			log.Fatalf("child open: %v", err)
		}
		buf, err := k.Read(child, rfd, 64)
		if err != 0 {
			log.Fatalf("child read: %v", err)
		}
		fmt.Print(string(buf))
		k.Close(child, rfd)
		k.Exit(child, 0)
		close(done)
	}()
	<-done

	if _, _, err := k.Wait(parent); err != 0 {
		log.Fatalf("wait: %v", err)
	}

	d.Sync()
	d.Close()
	sd.Close()
}
