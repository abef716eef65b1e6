//go:build darwin

package orbitsketch

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile sizes a table file to size bytes, reserving its blocks with
// F_PREALLOCATE where the filesystem allows it.
func fallocateFile(file *os.File, size int64) error {
	store := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	_ = unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &store)
	return unix.Ftruncate(int(file.Fd()), size)
}
