package orbitsketch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strconv"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const (
	// contextCheckInterval is how often pass 1 checks for cancellation.
	contextCheckInterval = 10000

	// reportBatchSize is the number of node pairs probed per pass-2 batch.
	reportBatchSize = 1024
)

// OrbitEstimate is one reported orbit pair of a node pair.
type OrbitEstimate struct {
	OrbitPair string
	Estimate  uint64
}

// ReportEntry is the report for one node pair. Entries with no orbit pairs
// are never produced.
type ReportEntry struct {
	NodePair  string
	Connected byte
	Orbits    []OrbitEstimate
}

// Summary describes a pipeline run. NodePairs is -1 until pass 2 has
// enumerated every node pair.
type Summary struct {
	Records         uint64
	Skipped         int
	NodePairs       int
	OrbitPairs      int
	ReportedPairs   int
	ReportedEntries int

	ErrorRate  float64
	Confidence float64
	Depth      int
	Width      int
	NoiseRange uint64

	// Mean and standard deviation of the reported estimates.
	EstimateMean   float64
	EstimateStdDev float64
}

// Pipeline counts motif observations in a Sketch (pass 1) and then reports,
// per node pair, the orbit pairs whose estimates clear the noise floor
// (pass 2). Passes run once, in order.
//
// Usage:
//
//	p, err := orbitsketch.NewPipeline(orbitsketch.WithLabel(4))
//	if err != nil { return err }
//	defer p.Close()
//
//	if err := p.Ingest(ctx, os.Stdin); err != nil { return err }
//	return p.WriteReport(ctx, os.Stdout)
type Pipeline struct {
	cfg    *runConfig
	sketch *Sketch
	nodes  NodePairSet
	orbits *orbitPairSet

	keyBuf     []byte
	skipped    int
	reporting  bool
	enumerated bool
	closed     bool

	// running moments of reported estimates
	estCount int
	estMean  float64
	estM2    float64
	reported int
	entries  int
}

// NewPipeline validates the configuration and allocates the sketch and the
// deduplication sets. Parameter errors surface here, before any input is read.
func NewPipeline(opts ...RunOption) (*Pipeline, error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.label <= 0 {
		return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new pipeline", "label %d must be positive", cfg.label)
	}
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if _, ok := policyNames[cfg.policy]; !ok {
		return nil, sketcherrors.Newf(sketcherrors.InvalidParameters, "new pipeline", "unknown report policy %d", cfg.policy)
	}

	sketch, err := NewSketch(cfg.errorRate, cfg.confidence, cfg.sketchOpts...)
	if err != nil {
		return nil, err
	}

	var nodes NodePairSet
	if cfg.spill {
		nodes, err = newSpillNodePairs(cfg.spillDir, cfg.spillPartitions, cfg.logger)
		if err != nil {
			return nil, errors.Join(err, sketch.Close())
		}
	} else {
		nodes = newMemoryNodePairs()
	}

	return &Pipeline{
		cfg:    cfg,
		sketch: sketch,
		nodes:  nodes,
		orbits: newOrbitPairSet(),
		keyBuf: make([]byte, 0, 64),
	}, nil
}

// Sketch returns the pipeline's sketch.
func (p *Pipeline) Sketch() *Sketch { return p.sketch }

// Observe counts one observation.
func (p *Pipeline) Observe(obs Observation) error {
	if p.closed || p.reporting {
		return sketcherrors.Newf(sketcherrors.InvalidParameters, "observe", "pipeline no longer accepts observations")
	}
	p.keyBuf = append(p.keyBuf[:0], obs.NodePair...)
	p.keyBuf = append(p.keyBuf, ':')
	p.keyBuf = append(p.keyBuf, obs.OrbitPair...)
	p.sketch.Insert(p.keyBuf)

	if err := p.nodes.Add(obs.NodePair, obs.Connected); err != nil {
		return err
	}
	p.orbits.add(obs.OrbitPair)
	return nil
}

// Ingest runs pass 1 over every record of in.
func (p *Pipeline) Ingest(ctx context.Context, in io.Reader) error {
	parser := NewParser(in)
	next := parser.Observation
	if p.cfg.lenient {
		lp := Lenient(parser, func(err error) {
			p.skipped++
			p.cfg.logger.Debug("skipping malformed line", zap.Error(err))
		})
		next = lp.Observation
	}

	counter := 0
	for {
		obs, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := p.Observe(obs); err != nil {
			return err
		}

		counter++
		if counter >= contextCheckInterval {
			counter = 0
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	p.cfg.logger.Info("pass 1 complete",
		zap.Uint64("records", p.sketch.Insertions()),
		zap.Int("label", p.cfg.label),
		zap.Float64("error_rate", p.sketch.ErrorRate()),
		zap.Uint64("range", p.sketch.NoiseRange()),
		zap.Int("skipped", p.skipped),
	)
	return nil
}

// Report runs pass 2: every observed node pair is probed against every
// observed orbit pair, and fn receives one entry per node pair with at
// least one orbit pair accepted by the report policy.
//
// With more than one worker the probes of each batch run concurrently;
// entries are still delivered in order.
func (p *Pipeline) Report(ctx context.Context, fn func(ReportEntry) error) error {
	if p.closed {
		return sketcherrors.Newf(sketcherrors.InvalidParameters, "report", "pipeline is closed")
	}
	p.reporting = true
	p.reported, p.entries = 0, 0
	p.estCount, p.estMean, p.estM2 = 0, 0, 0

	orbits := p.orbits.sorted()
	noise := p.sketch.NoiseRange()

	batch := make([]ReportEntry, 0, reportBatchSize)
	flush := func() error {
		if err := p.probeBatch(ctx, batch, orbits, noise); err != nil {
			return err
		}
		for i := range batch {
			if len(batch[i].Orbits) == 0 {
				continue
			}
			p.reported++
			p.entries += len(batch[i].Orbits)
			if err := fn(batch[i]); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	err := p.nodes.Each(func(pair string, connected byte) error {
		batch = append(batch, ReportEntry{NodePair: pair, Connected: connected})
		if len(batch) == reportBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.enumerated = true
	if len(batch) > 0 {
		return flush()
	}
	return nil
}

// probeBatch fills in the Orbits of every entry of batch.
func (p *Pipeline) probeBatch(ctx context.Context, batch []ReportEntry, orbits []orbitPair, noise uint64) error {
	if p.cfg.workers <= 1 || len(batch) < 2 {
		p.probe(batch, orbits, noise)
		p.foldEstimates(batch)
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(batch) + p.cfg.workers - 1) / p.cfg.workers
	for start := 0; start < len(batch); start += chunk {
		part := batch[start:min(start+chunk, len(batch))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.probe(part, orbits, noise)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.foldEstimates(batch)
	return nil
}

// probe queries the sketch for every (node pair, orbit pair) of entries.
// It only reads the sketch, so disjoint entries may be probed concurrently.
func (p *Pipeline) probe(entries []ReportEntry, orbits []orbitPair, noise uint64) {
	key := make([]byte, 0, 64)
	for i := range entries {
		e := &entries[i]
		e.Orbits = nil
		for _, op := range orbits {
			key = append(key[:0], e.NodePair...)
			key = append(key, ':')
			key = append(key, op.text...)
			if est, ok := p.cfg.policy.apply(p.sketch.Query(key), noise); ok {
				e.Orbits = append(e.Orbits, OrbitEstimate{OrbitPair: op.text, Estimate: est})
			}
		}
	}
}

// foldEstimates merges the batch's estimate moments into the running ones
// (Chan et al. parallel variance).
func (p *Pipeline) foldEstimates(batch []ReportEntry) {
	var vals []float64
	for i := range batch {
		for _, o := range batch[i].Orbits {
			vals = append(vals, float64(o.Estimate))
		}
	}
	n := len(vals)
	if n == 0 {
		return
	}
	mean, variance := stat.MeanVariance(vals, nil)
	m2 := 0.0
	if n > 1 {
		m2 = variance * float64(n-1)
	}

	total := p.estCount + n
	delta := mean - p.estMean
	p.estMean += delta * float64(n) / float64(total)
	p.estM2 += m2 + delta*delta*float64(p.estCount)*float64(n)/float64(total)
	p.estCount = total
}

// WriteReport runs pass 2 and writes one line per reported node pair:
//
//	<u>:<v> <c>\t<k>:<o>:<p> <estimate>\t...
//
// The report is staged in a scratch file (under the spill directory when
// spilling) and copied to out only once pass 2 has finished, so a cancelled
// or failed pass 2 writes nothing to out. A failure while copying can still
// leave a prefix of the report in out.
func (p *Pipeline) WriteReport(ctx context.Context, out io.Writer) (err error) {
	stage, path, err := createScratchFile(p.cfg.spillDir, "orbitsketch-report-*.tmp")
	if err != nil {
		return sketcherrors.New(sketcherrors.IOError, "create report stage", err)
	}
	defer func() {
		if rmErr := removeScratchFile(stage, path); rmErr != nil {
			err = errors.Join(err, sketcherrors.New(sketcherrors.IOError, "remove report stage", rmErr))
		}
	}()

	w := bufio.NewWriterSize(stage, readBufferSize)
	line := make([]byte, 0, 256)
	label := strconv.Itoa(p.cfg.label)

	err = p.Report(ctx, func(e ReportEntry) error {
		line = appendReportLine(line[:0], e, label)
		if _, err := w.Write(line); err != nil {
			return sketcherrors.New(sketcherrors.IOError, "stage report", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "stage report", err)
	}
	if _, err := stage.Seek(0, io.SeekStart); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "rewind report stage", err)
	}
	if _, err := io.Copy(out, stage); err != nil {
		return sketcherrors.New(sketcherrors.IOError, "write report", err)
	}

	sum := p.Summary()
	p.cfg.logger.Info("pass 2 complete",
		zap.Int("node_pairs", sum.NodePairs),
		zap.Int("orbit_pairs", sum.OrbitPairs),
		zap.Int("reported_pairs", sum.ReportedPairs),
		zap.Int("reported_entries", sum.ReportedEntries),
		zap.Float64("estimate_mean", sum.EstimateMean),
	)
	return nil
}

func appendReportLine(dst []byte, e ReportEntry, label string) []byte {
	dst = append(dst, e.NodePair...)
	dst = append(dst, ' ', '0'+e.Connected)
	for _, o := range e.Orbits {
		dst = append(dst, '\t')
		dst = append(dst, label...)
		dst = append(dst, ':')
		dst = append(dst, o.OrbitPair...)
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, o.Estimate, 10)
	}
	return append(dst, '\n')
}

// Summary returns the statistics of the run so far.
func (p *Pipeline) Summary() Summary {
	s := Summary{
		Records:         p.sketch.Insertions(),
		Skipped:         p.skipped,
		NodePairs:       -1,
		OrbitPairs:      p.orbits.len(),
		ReportedPairs:   p.reported,
		ReportedEntries: p.entries,
		ErrorRate:       p.sketch.ErrorRate(),
		Confidence:      p.sketch.Confidence(),
		Depth:           p.sketch.Depth(),
		Width:           p.sketch.Width(),
		NoiseRange:      p.sketch.NoiseRange(),
		EstimateMean:    p.estMean,
	}
	if p.enumerated {
		s.NodePairs = p.nodes.Len()
	}
	if p.estCount > 1 {
		s.EstimateStdDev = math.Sqrt(p.estM2 / float64(p.estCount-1))
	}
	return s
}

// Close releases the sketch and any scratch storage. It is safe to call
// more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(p.nodes.Close(), p.sketch.Close())
}

// Run ingests in, writes the report to out and releases every resource
// before returning, whether or not the run succeeded. Nothing is written to
// out if pass 1 or pass 2 fails; see WriteReport.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts ...RunOption) (sum Summary, err error) {
	p, err := NewPipeline(opts...)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		err = errors.Join(err, p.Close())
	}()

	if err := p.Ingest(ctx, in); err != nil {
		return p.Summary(), err
	}
	if err := p.WriteReport(ctx, out); err != nil {
		return p.Summary(), err
	}
	return p.Summary(), nil
}
