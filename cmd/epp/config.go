package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tamirms/orbitsketch"
	"github.com/tamirms/orbitsketch/hashfamily"
)

// envPrefix prefixes every environment variable the CLI reads.
const envPrefix = "EPP_"

// maxExponent is the largest -e whose default-confidence table fits the
// sketch's cell limit.
const maxExponent = 9

type SketchConfig struct {
	Exponent   int     `toml:"exponent"`
	Confidence float64 `toml:"confidence"`
	Hashes     string  `toml:"hashes"`
	Prime      bool    `toml:"prime"`
	TableFile  string  `toml:"table_file"`
	Prefault   bool    `toml:"prefault"`
}

type SpillConfig struct {
	Dir        string `toml:"dir"`
	Partitions int    `toml:"partitions"`
}

type LogConfig struct {
	Verbose bool   `toml:"verbose"`
	Dir     string `toml:"dir"`
}

// Config is the resolved CLI configuration. Values come from, in increasing
// precedence, defaults, the TOML file, EPP_* environment variables and flags.
type Config struct {
	K       int          `toml:"k"`
	Policy  string       `toml:"policy"`
	Workers int          `toml:"workers"`
	Lenient bool         `toml:"lenient"`
	Sketch  SketchConfig `toml:"sketch"`
	Spill   SpillConfig  `toml:"spill"`
	Log     LogConfig    `toml:"log"`
}

func defaultConfig() *Config {
	return &Config{
		Policy:  orbitsketch.PolicyCorrected.String(),
		Workers: 1,
		Sketch: SketchConfig{
			Exponent:   5,
			Confidence: orbitsketch.DefaultConfidence,
		},
		Log: LogConfig{Dir: "epp_logs"},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg with every EPP_* variable lookup finds.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, v := range []struct {
		name string
		set  func(string) error
	}{
		{"K", intSetter(&cfg.K)},
		{"EXPONENT", intSetter(&cfg.Sketch.Exponent)},
		{"CONFIDENCE", floatSetter(&cfg.Sketch.Confidence)},
		{"HASHES", stringSetter(&cfg.Sketch.Hashes)},
		{"PRIME", boolSetter(&cfg.Sketch.Prime)},
		{"TABLE_FILE", stringSetter(&cfg.Sketch.TableFile)},
		{"PREFAULT", boolSetter(&cfg.Sketch.Prefault)},
		{"POLICY", stringSetter(&cfg.Policy)},
		{"WORKERS", intSetter(&cfg.Workers)},
		{"LENIENT", boolSetter(&cfg.Lenient)},
		{"SPILL", stringSetter(&cfg.Spill.Dir)},
		{"PARTITIONS", intSetter(&cfg.Spill.Partitions)},
		{"VERBOSE", boolSetter(&cfg.Log.Verbose)},
		{"LOG_DIR", stringSetter(&cfg.Log.Dir)},
	} {
		val, ok := lookup(envPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(strings.TrimSpace(val)); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, v.name, err)
		}
	}
	return nil
}

func intSetter(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatSetter(dst *float64) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(s string) error {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

// cliFlags holds the parsed command line. Only flags the user actually set
// override the config.
type cliFlags struct {
	fs *flag.FlagSet

	configPath string
	k          int
	exponent   int
	confidence float64
	policy     string
	workers    int
	spill      string
	partitions int
	hashes     string
	prime      bool
	tableFile  string
	prefault   bool
	lenient    bool
	verbose    bool
}

func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{fs: flag.NewFlagSet("epp", flag.ContinueOnError)}
	fs := f.fs
	fs.StringVar(&f.configPath, "config", "", "TOML config file")
	fs.IntVar(&f.k, "k", 0, "motif size k, printed as the label of every orbit pair (required)")
	fs.IntVar(&f.exponent, "e", 5, "error rate exponent: ε = 10^-e")
	fs.Float64Var(&f.confidence, "c", orbitsketch.DefaultConfidence, "confidence γ in percent")
	fs.StringVar(&f.policy, "policy", orbitsketch.PolicyCorrected.String(), "report policy: corrected, above-range or raw")
	fs.IntVar(&f.workers, "workers", 1, "goroutines probing the sketch in pass 2")
	fs.StringVar(&f.spill, "spill", "", "deduplicate node pairs on disk under this directory")
	fs.IntVar(&f.partitions, "partitions", orbitsketch.DefaultSpillPartitions, "spill partition files")
	fs.StringVar(&f.hashes, "hashes", "", "comma-separated hash order, e.g. xxh3,murmur3,xxhash")
	fs.BoolVar(&f.prime, "prime", false, "round the sketch width up to a prime")
	fs.StringVar(&f.tableFile, "table-file", "", "keep the sketch table in a mapped file under this directory")
	fs.BoolVar(&f.prefault, "prefault", false, "populate the mapped table before pass 1")
	fs.BoolVar(&f.lenient, "lenient", false, "skip malformed lines instead of failing")
	fs.BoolVar(&f.verbose, "v", false, "write logs to the log directory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply overrides cfg with every flag set on the command line.
func (f *cliFlags) apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "k":
			cfg.K = f.k
		case "e":
			cfg.Sketch.Exponent = f.exponent
		case "c":
			cfg.Sketch.Confidence = f.confidence
		case "policy":
			cfg.Policy = f.policy
		case "workers":
			cfg.Workers = f.workers
		case "spill":
			cfg.Spill.Dir = f.spill
		case "partitions":
			cfg.Spill.Partitions = f.partitions
		case "hashes":
			cfg.Sketch.Hashes = f.hashes
		case "prime":
			cfg.Sketch.Prime = f.prime
		case "table-file":
			cfg.Sketch.TableFile = f.tableFile
		case "prefault":
			cfg.Sketch.Prefault = f.prefault
		case "lenient":
			cfg.Lenient = f.lenient
		case "v":
			cfg.Log.Verbose = f.verbose
		}
	})
}

// ErrorRate returns ε = 10^-exponent.
func (cfg *Config) ErrorRate() float64 {
	return math.Pow(10, -float64(cfg.Sketch.Exponent))
}

// RunOptions translates cfg into pipeline options.
func (cfg *Config) RunOptions() ([]orbitsketch.RunOption, error) {
	if cfg.K <= 0 {
		return nil, fmt.Errorf("-k must be a positive motif size, got %d", cfg.K)
	}
	if cfg.Sketch.Exponent < 1 || cfg.Sketch.Exponent > maxExponent {
		return nil, fmt.Errorf("-e must be between 1 and %d, got %d", maxExponent, cfg.Sketch.Exponent)
	}
	policy, err := orbitsketch.ParseReportPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	opts := []orbitsketch.RunOption{
		orbitsketch.WithLabel(cfg.K),
		orbitsketch.WithErrorRate(cfg.ErrorRate()),
		orbitsketch.WithConfidence(cfg.Sketch.Confidence),
		orbitsketch.WithPolicy(policy),
		orbitsketch.WithWorkers(cfg.Workers),
	}
	if cfg.Lenient {
		opts = append(opts, orbitsketch.WithLenientParsing())
	}
	if cfg.Spill.Dir != "" {
		opts = append(opts, orbitsketch.WithSpill(cfg.Spill.Dir, cfg.Spill.Partitions))
	}

	var sketchOpts []orbitsketch.SketchOption
	if cfg.Sketch.Hashes != "" {
		order, err := hashfamily.ParseOrder(cfg.Sketch.Hashes)
		if err != nil {
			return nil, err
		}
		sketchOpts = append(sketchOpts, orbitsketch.WithAlgorithms(order...))
	}
	if cfg.Sketch.Prime {
		sketchOpts = append(sketchOpts, orbitsketch.WithPrimeWidth())
	}
	if cfg.Sketch.TableFile != "" {
		sketchOpts = append(sketchOpts, orbitsketch.WithTableFile(cfg.Sketch.TableFile))
		if cfg.Sketch.Prefault {
			sketchOpts = append(sketchOpts, orbitsketch.WithPrefault())
		}
	}
	if len(sketchOpts) > 0 {
		opts = append(opts, orbitsketch.WithSketchOptions(sketchOpts...))
	}
	return opts, nil
}
