package orbitsketch

import (
	"errors"
	"fmt"
	"math"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	sketcherrors "github.com/tamirms/orbitsketch/errors"
	"golang.org/x/sys/unix"
)

// counterSize is the on-disk and in-memory size of one sketch counter.
const counterSize = int(unsafe.Sizeof(uint32(0)))

// tableFile backs a sketch's counter table with a memory-mapped scratch
// file, so that very wide sketches are paged by the kernel instead of
// living on the Go heap.
type tableFile struct {
	file *os.File
	mmap mmap.MMap
	path string // empty for O_TMPFILE files, which vanish on close
}

// newTableFile creates a zero-filled, pre-allocated scratch file in dir
// holding n counters, maps it read-write and returns the counter view.
// With prefault set, the mapping is populated before returning.
func newTableFile(dir string, n int, prefault bool) (*tableFile, []uint32, error) {
	if n <= 0 || n > math.MaxInt/counterSize {
		return nil, nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "create table file",
			"table of %d counters cannot be mapped", n)
	}
	size := int64(n) * int64(counterSize)

	tf := &tableFile{}
	if err := tf.createTempFile(dir); err != nil {
		return nil, nil, sketcherrors.New(sketcherrors.IOError, "create table file", err)
	}

	// Pre-allocate disk blocks (prevents SIGBUS on disk full)
	if err := fallocateFile(tf.file, size); err != nil {
		primaryErr := sketcherrors.New(sketcherrors.IOError, "pre-allocate table file", err)
		return nil, nil, errors.Join(primaryErr, tf.close())
	}

	mm, err := mmap.MapRegion(tf.file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := sketcherrors.New(sketcherrors.IOError, "mmap table file", err)
		return nil, nil, errors.Join(primaryErr, tf.close())
	}
	tf.mmap = mm

	if prefault {
		prefaultRegion(mm)
	}
	// Sketch rows are probed at hash-determined columns.
	_ = unix.Madvise(mm, unix.MADV_RANDOM)

	// mmap regions are page aligned, so the uint32 view is aligned too.
	counters := unsafe.Slice((*uint32)(unsafe.Pointer(&mm[0])), n)
	return tf, counters, nil
}

// createTempFile creates the table's scratch file in dir.
func (tf *tableFile) createTempFile(dir string) error {
	f, path, err := createScratchFile(dir, "orbitsketch-table-*.tmp")
	if err != nil {
		return err
	}
	tf.file, tf.path = f, path
	return nil
}

// createScratchFile tries O_TMPFILE first (Linux 3.11+) so the file needs no
// unlink, then falls back to a temp file named by pattern. path is empty for
// O_TMPFILE files.
func createScratchFile(dir, pattern string) (f *os.File, path string, err error) {
	if dir == "" {
		dir = os.TempDir()
	}

	f, err = openTmpFile(dir)
	if err == nil {
		return f, "", nil
	}

	f, err = os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

// removeScratchFile closes f and removes path if the file was named.
func removeScratchFile(f *os.File, path string) error {
	err := f.Close()
	if path != "" {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// openTmpFile attempts to create an O_TMPFILE anonymous temp file.
// Returns an error if O_TMPFILE is not supported.
func openTmpFile(dir string) (*os.File, error) {
	const oTmpFile = 0o20000000 //nolint:revive // Linux O_TMPFILE flag

	fd, err := unix.Open(dir, unix.O_RDWR|oTmpFile, 0600)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), ""), nil
}

// close unmaps, closes and removes the scratch file. Idempotent.
func (tf *tableFile) close() error {
	var errs []error

	// Unmap first (required before close on some platforms)
	if tf.mmap != nil {
		if err := tf.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		tf.mmap = nil
	}

	if tf.file != nil {
		if err := tf.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close table file: %w", err))
		}
		tf.file = nil
	}

	if tf.path != "" {
		if err := os.Remove(tf.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove table file: %w", err))
		}
		tf.path = ""
	}

	if err := errors.Join(errs...); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "release table file", err)
	}
	return nil
}
