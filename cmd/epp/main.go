// Epp reads motif records from a motif enumerator on stdin and prints, per
// candidate node pair, the orbit pairs whose estimated frequency clears the
// count-min sketch noise floor.
//
// Usage:
//
//	blant -mp -k 4 ... | epp -k 4 -e 5 > predictions.txt
//
// Flags:
//
//	-k           Motif size, printed in front of every orbit pair (required)
//	-e           Error rate exponent, ε = 10^-e (default: 5)
//	-c           Confidence in percent (default: 99)
//	-policy      corrected, above-range or raw (default: corrected)
//	-workers     Goroutines probing the sketch in pass 2 (default: 1)
//	-spill       Deduplicate node pairs in partition files under this directory
//	-partitions  Number of spill partition files (default: 64)
//	-hashes      Comma-separated hash order (default: built-in order)
//	-prime       Round the sketch width up to a prime
//	-table-file  Keep the sketch table in a mapped file under this directory
//	-prefault    Populate the mapped table before pass 1
//	-lenient     Skip malformed lines instead of failing
//	-v           Write info.log and debug.log to the log directory (default: ./epp_logs)
//	-config      TOML config file
//
// Every setting can also come from the config file or an EPP_<NAME>
// environment variable (a .env file in the working directory is honored).
// Flags win over the environment, which wins over the file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tamirms/orbitsketch"
	sketcherrors "github.com/tamirms/orbitsketch/errors"
)

// Exit codes by failure kind.
const (
	exitUsage     = 2
	exitIO        = 3
	exitMalformed = 4
	exitParams    = 5
	exitOther     = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		return exitUsage
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, err := Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		return exitUsage
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		return exitUsage
	}
	flags.apply(cfg)

	opts, err := cfg.RunOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		flags.fs.Usage()
		return exitUsage
	}

	logger, closeLog, err := newLogger(cfg.Log.Verbose, cfg.Log.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		return exitOther
	}
	defer func() { _ = closeLog() }()

	runID := uuid.New()
	logger = logger.With(zap.String("run_id", runID.String()))
	opts = append(opts, orbitsketch.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sum, err := orbitsketch.Run(ctx, os.Stdin, os.Stdout, opts...)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		return exitCode(err)
	}

	logger.Info("run complete",
		zap.Int("k", cfg.K),
		zap.Uint64("records", sum.Records),
		zap.Int("node_pairs", sum.NodePairs),
		zap.Int("orbit_pairs", sum.OrbitPairs),
		zap.Int("reported_pairs", sum.ReportedPairs),
		zap.Int("depth", sum.Depth),
		zap.Int("width", sum.Width),
		zap.Uint64("range", sum.NoiseRange),
		zap.Float64("estimate_stddev", sum.EstimateStdDev),
		zap.Duration("elapsed", time.Since(start)),
	)
	return 0
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitOther
	}
	kind, ok := sketcherrors.KindOf(err)
	if !ok {
		return exitOther
	}
	switch kind {
	case sketcherrors.IOError:
		return exitIO
	case sketcherrors.MalformedInput:
		return exitMalformed
	case sketcherrors.InvalidParameters, sketcherrors.UnsupportedDepth:
		return exitParams
	default:
		return exitOther
	}
}
