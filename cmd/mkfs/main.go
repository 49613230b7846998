// Command mkfs formats a fresh file system image with the extent-based
// layout package fs expects.
package main

import (
	"flag"
	"log"

	"github.com/rdailey98/xv6-operating-system/disk"
	"github.com/rdailey98/xv6-operating-system/fs"
)

func main() {
	path := flag.String("o", "fs.img", "output image path")
	blocks := flag.Int("blocks", 65536, "total blocks in the image")
	flag.Parse()

	d, err := disk.OpenFile(*path, 4096)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	defer d.Close()

	// The inode file grows by append, so there is no inode count to
	// reserve up front; it is bounded only by MaxFileSize/dinodeSize.
	fs.Format(d, *blocks)
	d.Sync()
	log.Printf("mkfs: wrote %s (%d blocks)", *path, *blocks)
}
