package orbitsketch

import (
	"fmt"
	"strings"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
	"go.uber.org/zap"
)

const (
	// DefaultErrorRate is ε when none is configured.
	DefaultErrorRate = 1e-5
	// DefaultConfidence is γ (percent) when none is configured.
	DefaultConfidence = 99.0
)

// ReportPolicy decides which sketch estimates are reported and what value
// is printed for them. range is floor(ε·N) after pass 1.
type ReportPolicy uint8

const (
	// PolicyCorrected reports estimates above range, printing estimate - range.
	PolicyCorrected ReportPolicy = iota
	// PolicyAboveRange reports estimates above range, printing the raw estimate.
	PolicyAboveRange
	// PolicyRaw reports every nonzero estimate unchanged.
	PolicyRaw
)

var policyNames = map[ReportPolicy]string{
	PolicyCorrected:  "corrected",
	PolicyAboveRange: "above-range",
	PolicyRaw:        "raw",
}

func (p ReportPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParseReportPolicy resolves a name as printed by ReportPolicy.String.
func ParseReportPolicy(name string) (ReportPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, sketcherrors.Newf(sketcherrors.InvalidParameters, "parse report policy", "unknown policy %q", name)
}

// apply returns the value to report for a raw estimate, and whether to
// report it at all.
func (p ReportPolicy) apply(raw uint32, noise uint64) (uint64, bool) {
	est := uint64(raw)
	switch p {
	case PolicyRaw:
		return est, est > 0
	case PolicyAboveRange:
		return est, est > noise
	default:
		if est <= noise {
			return 0, false
		}
		return est - noise, true
	}
}

// RunOption is a functional option for configuring a Pipeline.
type RunOption func(*runConfig)

type runConfig struct {
	label      int
	errorRate  float64
	confidence float64
	policy     ReportPolicy
	workers    int
	lenient    bool
	logger     *zap.Logger
	sketchOpts []SketchOption

	spill           bool
	spillDir        string
	spillPartitions int
}

func defaultRunConfig() *runConfig {
	return &runConfig{
		errorRate:  DefaultErrorRate,
		confidence: DefaultConfidence,
		policy:     PolicyCorrected,
		workers:    1,
		logger:     zap.NewNop(),
	}
}

// WithLabel sets the label (the motif size k) printed in front of every
// orbit pair in the report. It does not affect counting. Required.
func WithLabel(k int) RunOption {
	return func(c *runConfig) {
		c.label = k
	}
}

// WithErrorRate sets ε.
func WithErrorRate(e float64) RunOption {
	return func(c *runConfig) {
		c.errorRate = e
	}
}

// WithConfidence sets γ in percent.
func WithConfidence(gamma float64) RunOption {
	return func(c *runConfig) {
		c.confidence = gamma
	}
}

// WithPolicy sets the report policy. Default is PolicyCorrected.
func WithPolicy(p ReportPolicy) RunOption {
	return func(c *runConfig) {
		c.policy = p
	}
}

// WithWorkers sets the number of goroutines probing the sketch in pass 2.
// Pass 1 is always single-threaded.
func WithWorkers(n int) RunOption {
	return func(c *runConfig) {
		c.workers = n
	}
}

// WithSpill deduplicates node pairs through partition files in a scratch
// directory under dir instead of in memory. partitions <= 0 selects
// DefaultSpillPartitions. The scratch directory is removed by Close.
func WithSpill(dir string, partitions int) RunOption {
	return func(c *runConfig) {
		c.spill = true
		c.spillDir = dir
		c.spillPartitions = partitions
	}
}

// WithLenientParsing skips malformed lines, logging each at debug level,
// instead of failing the run.
func WithLenientParsing() RunOption {
	return func(c *runConfig) {
		c.lenient = true
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSketchOptions passes options through to NewSketch.
func WithSketchOptions(opts ...SketchOption) RunOption {
	return func(c *runConfig) {
		c.sketchOpts = append(c.sketchOpts, opts...)
	}
}
