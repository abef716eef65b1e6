package orbitsketch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	sketcherrors "github.com/tamirms/orbitsketch/errors"
	intbits "github.com/tamirms/orbitsketch/internal/bits"
	"go.uber.org/zap"
)

const (
	// DefaultSpillPartitions is the partition count used when WithSpill is
	// given a non-positive count. Pass 2 holds one partition in memory at a
	// time, so more partitions mean a smaller peak.
	DefaultSpillPartitions = 64

	// maxSpillPartitions bounds the number of simultaneously open files.
	maxSpillPartitions = 4096

	spillWriteBuffer = 32 << 10
)

// spillNodePairs is the disk-backed NodePairSet. Pass 1 appends every
// occurrence to one of n partition files, routed by a hash of the node pair,
// so all occurrences of a pair land in the same file in arrival order.
// Each then loads one partition at a time, keeps the first occurrence of
// every pair and visits them sorted.
//
// All partition files live in a directory created for this set and
// removed by Close.
type spillNodePairs struct {
	dir        string
	partitions []*spillPartition
	logger     *zap.Logger

	occurrences int
	distinct    int
	counted     bool
	flushed     bool
}

type spillPartition struct {
	path    string
	file    *os.File
	w       *bufio.Writer
	records int
}

// newSpillNodePairs creates n partition files in a fresh directory under
// parent (os.TempDir() if empty). The directory name carries the process id.
func newSpillNodePairs(parent string, n int, logger *zap.Logger) (*spillNodePairs, error) {
	if n <= 0 {
		n = DefaultSpillPartitions
	}
	if n > maxSpillPartitions {
		return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "create spill set",
			"%d partitions exceeds maximum %d", n, maxSpillPartitions)
	}
	if parent == "" {
		parent = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := os.MkdirTemp(parent, fmt.Sprintf("orbitsketch-%d-*", os.Getpid()))
	if err != nil {
		return nil, sketcherrors.New(sketcherrors.IOError, "create spill directory", err)
	}

	s := &spillNodePairs{
		dir:        dir,
		partitions: make([]*spillPartition, n),
		logger:     logger,
	}
	for i := range s.partitions {
		path := filepath.Join(dir, fmt.Sprintf("nodepairs-%04d.part", i))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			primaryErr := sketcherrors.New(sketcherrors.IOError, "create spill partition", err)
			return nil, errors.Join(primaryErr, s.Close())
		}
		s.partitions[i] = &spillPartition{
			path: path,
			file: f,
			w:    bufio.NewWriterSize(f, spillWriteBuffer),
		}
	}
	logger.Debug("spill set created", zap.String("dir", dir), zap.Int("partitions", n))
	return s, nil
}

func (s *spillNodePairs) Add(pair string, connected byte) error {
	if s.flushed {
		return sketcherrors.Newf(sketcherrors.IOError, "spill node pair", "set already read back")
	}
	p := s.partitions[intbits.Partition(xxhash.Sum64String(pair), len(s.partitions))]

	// Record format: "<pair> <c>\n". Node pairs never contain whitespace.
	if _, err := p.w.WriteString(pair); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "spill node pair", err)
	}
	if err := p.w.WriteByte(' '); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "spill node pair", err)
	}
	if err := p.w.WriteByte('0' + connected); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "spill node pair", err)
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "spill node pair", err)
	}
	p.records++
	s.occurrences++
	return nil
}

// flush writes out every partition's buffer. Add must not be called afterwards.
func (s *spillNodePairs) flush() error {
	if s.flushed {
		return nil
	}
	s.flushed = true
	for _, p := range s.partitions {
		if err := p.w.Flush(); err != nil {
			return sketcherrors.New(sketcherrors.IOError, "flush spill partition", err)
		}
	}
	s.logger.Debug("spill set flushed", zap.Int("occurrences", s.occurrences))
	return nil
}

func (s *spillNodePairs) Each(fn func(pair string, connected byte) error) error {
	if err := s.flush(); err != nil {
		return err
	}
	s.distinct = 0
	for i, p := range s.partitions {
		n, err := s.eachInPartition(p, fn)
		s.distinct += n
		if err != nil {
			return err
		}
		s.logger.Debug("spill partition replayed",
			zap.Int("partition", i), zap.Int("records", p.records), zap.Int("distinct", n))
	}
	s.counted = true
	return nil
}

// eachInPartition maps one partition file, deduplicates it keeping the
// first occurrence of each pair, and visits the pairs in byte order.
func (s *spillNodePairs) eachInPartition(p *spillPartition, fn func(string, byte) error) (int, error) {
	if p.records == 0 {
		return 0, nil
	}
	stat, err := p.file.Stat()
	if err != nil {
		return 0, sketcherrors.New(sketcherrors.IOError, "stat spill partition", err)
	}
	fadviseSequential(int(p.file.Fd()), 0, stat.Size())

	mm, err := mmap.Map(p.file, mmap.RDONLY, 0)
	if err != nil {
		return 0, sketcherrors.New(sketcherrors.IOError, "mmap spill partition", err)
	}

	first := make(map[string]byte, p.records)
	data := []byte(mm)
	for len(data) > 0 {
		end := bytes.IndexByte(data, '\n')
		if end < 0 {
			end = len(data)
		}
		rec := data[:end]
		data = data[min(end+1, len(data)):]

		sp := bytes.LastIndexByte(rec, ' ')
		if sp <= 0 || sp != len(rec)-2 {
			return 0, errors.Join(
				sketcherrors.Newf(sketcherrors.IOError, "read spill partition", "corrupt record %q in %s", rec, p.path),
				mm.Unmap())
		}
		if _, ok := first[string(rec[:sp])]; !ok {
			first[string(rec[:sp])] = rec[sp+1] - '0'
		}
	}
	if err := mm.Unmap(); err != nil {
		return 0, sketcherrors.New(sketcherrors.IOError, "munmap spill partition", err)
	}

	pairs := make([]string, 0, len(first))
	for pair := range first {
		pairs = append(pairs, pair)
	}
	slices.Sort(pairs)
	for _, pair := range pairs {
		if err := fn(pair, first[pair]); err != nil {
			return len(pairs), err
		}
	}
	return len(pairs), nil
}

func (s *spillNodePairs) Len() int {
	if !s.counted {
		return -1
	}
	return s.distinct
}

// Close closes every partition and removes the spill directory. Idempotent.
func (s *spillNodePairs) Close() error {
	var errs []error
	for _, p := range s.partitions {
		if p == nil || p.file == nil {
			continue
		}
		if err := p.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.path, err))
		}
		p.file = nil
	}
	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil {
			errs = append(errs, fmt.Errorf("remove spill directory: %w", err))
		}
		s.dir = ""
	}
	if err := errors.Join(errs...); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "release spill set", err)
	}
	return nil
}
