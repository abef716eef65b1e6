package orbitsketch

import (
	"math"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
	"github.com/tamirms/orbitsketch/hashfamily"
)

// primeWidths is the ladder of moduli used by WithPrimeWidth. Most steps are
// the first prime above E·10^k, the width produced by ε = 10^-k; the others
// sit just above powers of two.
var primeWidths = []int{
	32729,
	271927,
	2718409,
	33554467,
	271828199,
	4294967311,
	34359738421,
	271828182863,
}

// maxTableCells bounds depth·width. 2^34 counters take 64 GiB.
const maxTableCells = min(1<<34, math.MaxInt)

// Sketch is a count-min sketch over string keys: depth rows of width
// saturating uint32 counters, row i hashed with the i-th function of a
// hashfamily.Family.
//
// A Sketch has a single-writer phase (Insert) followed by a read-only phase
// (Query). Query has no side effects, so concurrent queries are safe once
// inserts have stopped. Insert is not safe for concurrent use.
type Sketch struct {
	errorRate  float64
	confidence float64
	depth      int
	width      int
	family     *hashfamily.Family

	// table is row-major: row i occupies table[i*width : (i+1)*width].
	table      []uint32
	insertions uint64

	// backing is non-nil when the table lives in a mapped scratch file.
	backing *tableFile
}

// SketchOption configures NewSketch.
type SketchOption func(*sketchConfig)

type sketchConfig struct {
	algorithms []hashfamily.Algorithm
	primeWidth bool
	tableFile  bool
	tableDir   string
	prefault   bool
}

// WithAlgorithms sets the hash function used for each row, in row order.
// The list must be at least as long as the depth implied by the confidence.
func WithAlgorithms(algos ...hashfamily.Algorithm) SketchOption {
	return func(c *sketchConfig) {
		c.algorithms = append([]hashfamily.Algorithm(nil), algos...)
	}
}

// WithPrimeWidth rounds the width up to the smallest prime of a fixed ladder,
// which spreads the weak string hashes more evenly than an arbitrary width.
// Widths above the ladder are kept as computed.
func WithPrimeWidth() SketchOption {
	return func(c *sketchConfig) {
		c.primeWidth = true
	}
}

// WithTableFile keeps the counter table in a pre-allocated, memory-mapped
// scratch file in dir (os.TempDir() if empty). Close releases it.
func WithTableFile(dir string) SketchOption {
	return func(c *sketchConfig) {
		c.tableFile = true
		c.tableDir = dir
	}
}

// WithPrefault populates every page of a WithTableFile table up front, so
// pass 1 does not take a page fault on each first touch. It has no effect
// on heap tables.
func WithPrefault() SketchOption {
	return func(c *sketchConfig) {
		c.prefault = true
	}
}

// Dimensions returns the sketch geometry for an error rate ε in (0,1) and a
// confidence γ in (0,100] percent:
//
//	depth = ceil(ln(1 / (1 - γ/100)))
//	width = ceil(E / ε)
//
// γ = 100 implies infinite depth and is rejected like any other geometry that
// is not a positive finite integer.
func Dimensions(errorRate, confidence float64) (depth, width int, err error) {
	const op = "sketch dimensions"
	if !(errorRate > 0 && errorRate < 1) {
		return 0, 0, sketcherrors.Newf(sketcherrors.InvalidParameters, op, "error rate %v not in (0,1)", errorRate)
	}
	if !(confidence > 0 && confidence <= 100) {
		return 0, 0, sketcherrors.Newf(sketcherrors.InvalidParameters, op, "confidence %v not in (0,100]", confidence)
	}

	d := math.Ceil(math.Log(1 / (1 - confidence/100)))
	w := math.Ceil(math.E / errorRate)
	if math.IsInf(d, 0) || math.IsNaN(d) || d < 1 {
		return 0, 0, sketcherrors.Newf(sketcherrors.InvalidParameters, op, "confidence %v yields depth %v", confidence, d)
	}
	if math.IsInf(w, 0) || w < 1 || w > float64(math.MaxInt/2) {
		return 0, 0, sketcherrors.Newf(sketcherrors.InvalidParameters, op, "error rate %v yields width %v", errorRate, w)
	}
	return int(d), int(w), nil
}

// NewSketch builds an empty sketch for the given error rate and confidence.
// Any count it returns exceeds the true count by at most errorRate·N with
// probability confidence/100, where N is the number of insertions.
func NewSketch(errorRate, confidence float64, opts ...SketchOption) (*Sketch, error) {
	cfg := &sketchConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	depth, width, err := Dimensions(errorRate, confidence)
	if err != nil {
		return nil, err
	}
	if cfg.primeWidth {
		width = primeWidthFor(width)
	}

	family, err := hashfamily.New(depth, cfg.algorithms...)
	if err != nil {
		return nil, err
	}

	if width > maxTableCells/depth {
		return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new sketch",
			"table of %d×%d counters exceeds the limit of %d", depth, width, maxTableCells)
	}
	cells := depth * width

	s := &Sketch{
		errorRate:  errorRate,
		confidence: confidence,
		depth:      depth,
		width:      width,
		family:     family,
	}
	if cfg.tableFile {
		tf, counters, err := newTableFile(cfg.tableDir, cells, cfg.prefault)
		if err != nil {
			return nil, err
		}
		s.backing = tf
		s.table = counters
	} else {
		s.table = make([]uint32, cells)
	}
	return s, nil
}

// primeWidthFor returns the smallest ladder prime >= width, or width itself
// when it is beyond the ladder.
func primeWidthFor(width int) int {
	for _, p := range primeWidths {
		if p >= width {
			return p
		}
	}
	return width
}

// Insert counts one occurrence of key.
func (s *Sketch) Insert(key []byte) {
	for row := range s.depth {
		col := s.family.Sum(row, key) % uint64(s.width)
		s.increment(row, col)
	}
	s.insertions++
}

// InsertString is Insert for a string key.
func (s *Sketch) InsertString(key string) {
	for row := range s.depth {
		col := s.family.SumString(row, key) % uint64(s.width)
		s.increment(row, col)
	}
	s.insertions++
}

// increment bumps one counter, saturating at math.MaxUint32.
func (s *Sketch) increment(row int, col uint64) {
	i := row*s.width + int(col)
	if s.table[i] != math.MaxUint32 {
		s.table[i]++
	}
}

// Query returns the estimated count of key: the minimum over all rows. It
// never underestimates the number of times key was inserted.
func (s *Sketch) Query(key []byte) uint32 {
	est := uint32(math.MaxUint32)
	for row := range s.depth {
		col := s.family.Sum(row, key) % uint64(s.width)
		est = min(est, s.table[row*s.width+int(col)])
	}
	return est
}

// QueryString is Query for a string key.
func (s *Sketch) QueryString(key string) uint32 {
	est := uint32(math.MaxUint32)
	for row := range s.depth {
		col := s.family.SumString(row, key) % uint64(s.width)
		est = min(est, s.table[row*s.width+int(col)])
	}
	return est
}

// Insertions returns N, the number of Insert calls so far.
func (s *Sketch) Insertions() uint64 { return s.insertions }

// NoiseRange returns floor(ε·N): the overcount the sketch may add to any
// estimate at its configured confidence.
func (s *Sketch) NoiseRange() uint64 {
	return uint64(math.Floor(s.errorRate * float64(s.insertions)))
}

// Depth returns the number of rows.
func (s *Sketch) Depth() int { return s.depth }

// Width returns the number of counters per row.
func (s *Sketch) Width() int { return s.width }

// ErrorRate returns ε.
func (s *Sketch) ErrorRate() float64 { return s.errorRate }

// Confidence returns γ in percent.
func (s *Sketch) Confidence() float64 { return s.confidence }

// Algorithms returns the hash function of each row.
func (s *Sketch) Algorithms() []hashfamily.Algorithm { return s.family.Algorithms() }

// MemoryBytes returns the size of the counter table.
func (s *Sketch) MemoryBytes() int64 {
	return int64(len(s.table)) * int64(counterSize)
}

// Close releases the mapped table file, if any. The sketch must not be used
// afterwards. Close on a heap-backed sketch is a no-op.
func (s *Sketch) Close() error {
	s.table = nil
	if s.backing == nil {
		return nil
	}
	err := s.backing.close()
	s.backing = nil
	return err
}
