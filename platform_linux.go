//go:build linux

package orbitsketch

import (
	"os"

	"golang.org/x/sys/unix"
)

// MADV_POPULATE_WRITE was added in Linux 5.14.
const madvPopulateWrite = 23

// fallocateFile sizes a table file to size bytes with its blocks reserved,
// so a full disk fails here rather than as SIGBUS on a later counter write.
// Filesystems without fallocate (NFS, some FUSE mounts) get a sparse file.
func fallocateFile(file *os.File, size int64) error {
	fd := int(file.Fd())
	_ = unix.Fallocate(fd, 0, 0, size)
	return unix.Ftruncate(fd, size)
}

// fadviseSequential tells the kernel a spill partition is about to be read
// front to back. Advisory only.
func fadviseSequential(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_SEQUENTIAL)
}

// prefaultRegion populates the pages of a writable mapping. Kernels older
// than 5.14 answer EINVAL and the table stays lazily paged.
func prefaultRegion(data []byte) {
	if len(data) > 0 {
		_ = unix.Madvise(data, madvPopulateWrite)
	}
}
