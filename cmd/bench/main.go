// Bench is a benchmarking tool for measuring orbitsketch pipeline throughput,
// sketch accuracy and memory usage on a synthetic motif stream.
//
// Usage:
//
//	go run ./cmd/bench -records 5000000 -pairs 200000 -e 5 -workers 4
//
// Flags:
//
//	-records    Number of motif records to generate (default: 5,000,000)
//	-pairs      Number of distinct node pairs (default: 200,000)
//	-orbits     Number of distinct orbits per endpoint (default: 12)
//	-e          Error rate exponent, ε = 10^-e (default: 5)
//	-workers    Goroutines probing the sketch in pass 2 (default: 1)
//	-spill      Deduplicate node pairs on disk (default: false)
//	-table-file Keep the sketch table in a mapped scratch file (default: false)
//	-hashes     Comma-separated hash order (default: built-in order)
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	mrand "math/rand/v2"
	"os"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tamirms/orbitsketch"
	"github.com/tamirms/orbitsketch/hashfamily"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// generate writes records motif lines over pairs node pairs. Node pair ranks
// follow a Zipf law, like real prediction streams where a few candidate
// pairs appear in most motifs.
func generate(rng *mrand.Rand, records, pairs, orbits int) ([]byte, map[string]uint32) {
	zipf := mrand.NewZipf(rng, 1.1, 1, uint64(pairs-1))
	exact := make(map[string]uint32)
	var buf bytes.Buffer
	buf.Grow(records * 72)
	for range records {
		r := zipf.Uint64()
		u, v := r*7919%1_000_000, r*104729%1_000_000
		o := rng.IntN(orbits)
		p := o + rng.IntN(orbits-o)
		c := (u ^ v) & 1
		line := fmt.Sprintf("P ENSG%011d:ENSG%011d %d %d:%d 12:12 ENSG%011d:ENSG%011d\n", u, v, c, o, p, u, v)
		buf.WriteString(line)
		exact[fmt.Sprintf("ENSG%011d:ENSG%011d:%d:%d", u, v, o, p)]++
	}
	return buf.Bytes(), exact
}

func main() {
	recordsFlag := flag.Int("records", 5_000_000, "number of motif records")
	pairsFlag := flag.Int("pairs", 200_000, "number of distinct node pairs")
	orbitsFlag := flag.Int("orbits", 12, "number of distinct orbits per endpoint")
	expFlag := flag.Int("e", 5, "error rate exponent: ε = 10^-e")
	workersFlag := flag.Int("workers", 1, "goroutines probing the sketch in pass 2")
	spillFlag := flag.Bool("spill", false, "deduplicate node pairs on disk")
	tableFileFlag := flag.Bool("table-file", false, "keep the sketch table in a mapped scratch file")
	hashesFlag := flag.String("hashes", "", "comma-separated hash order")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (pipeline only)")
	memprofile := flag.String("memprofile", "", "write memory profile to file (pipeline only)")
	flag.Parse()

	if *pairsFlag < 2 || *orbitsFlag < 1 {
		fmt.Println("-pairs must be at least 2 and -orbits at least 1")
		return
	}
	errorRate := math.Pow(10, -float64(*expFlag))

	fmt.Println("Generating records...")
	genStart := time.Now()
	rng := mrand.New(mrand.NewPCG(0x1234, 0x5678))
	input, exact := generate(rng, *recordsFlag, *pairsFlag, *orbitsFlag)
	genDuration := time.Since(genStart)

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	opts := []orbitsketch.RunOption{
		orbitsketch.WithLabel(4),
		orbitsketch.WithErrorRate(errorRate),
		orbitsketch.WithWorkers(*workersFlag),
	}
	if *spillFlag {
		opts = append(opts, orbitsketch.WithSpill(tmpDir, 0))
	}
	var sketchOpts []orbitsketch.SketchOption
	if *tableFileFlag {
		sketchOpts = append(sketchOpts, orbitsketch.WithTableFile(tmpDir))
	}
	if *hashesFlag != "" {
		order, err := hashfamily.ParseOrder(*hashesFlag)
		if err != nil {
			fmt.Printf("Bad -hashes: %v\n", err)
			return
		}
		sketchOpts = append(sketchOpts, orbitsketch.WithAlgorithms(order...))
	}
	opts = append(opts, orbitsketch.WithSketchOptions(sketchOpts...))

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	baselineRSS := getMaxRSS()

	// 10ms sampling for peak memory (both heap and RSS).
	// Uses runtime/metrics instead of ReadMemStats to avoid stop-the-world pauses.
	var peakAlloc atomic.Uint64
	var peakRSS atomic.Uint64
	peakAlloc.Store(baseline.Alloc)
	peakRSS.Store(baselineRSS)
	done := make(chan struct{})
	go func() {
		samples := []metrics.Sample{
			{Name: "/memory/classes/heap/objects:bytes"},
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				heapBytes := samples[0].Value.Uint64()
				for {
					old := peakAlloc.Load()
					if heapBytes <= old || peakAlloc.CompareAndSwap(old, heapBytes) {
						break
					}
				}
				rss := getMaxRSS()
				for {
					old := peakRSS.Load()
					if rss <= old || peakRSS.CompareAndSwap(old, rss) {
						break
					}
				}
			}
		}
	}()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
	}

	fmt.Println("Running pipeline...")
	ctx := context.Background()
	p, err := orbitsketch.NewPipeline(opts...)
	if err != nil {
		fmt.Printf("NewPipeline failed: %v\n", err)
		return
	}
	defer func() { _ = p.Close() }()

	ingestStart := time.Now()
	if err := p.Ingest(ctx, bytes.NewReader(input)); err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		return
	}
	ingestDuration := time.Since(ingestStart)

	reportStart := time.Now()
	if err := p.WriteReport(ctx, io.Discard); err != nil {
		fmt.Printf("Report failed: %v\n", err)
		return
	}
	reportDuration := time.Since(reportStart)

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Printf("could not create memory profile: %v\n", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Printf("could not write memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}

	close(done)

	var final runtime.MemStats
	runtime.ReadMemStats(&final)
	if final.Alloc > peakAlloc.Load() {
		peakAlloc.Store(final.Alloc)
	}
	if rss := getMaxRSS(); rss > peakRSS.Load() {
		peakRSS.Store(rss)
	}
	peakHeapMem := peakAlloc.Load() - baseline.Alloc
	peakRSSMem := peakRSS.Load() - baselineRSS

	// Accuracy: overestimate of every observed key relative to ε·N.
	sketch := p.Sketch()
	noise := sketch.NoiseRange()
	var overBound, exactHits int
	var maxOver uint32
	for key, n := range exact {
		est := sketch.QueryString(key)
		over := est - n
		if est == n {
			exactHits++
		}
		if uint64(over) > noise {
			overBound++
		}
		maxOver = max(maxOver, over)
	}
	sum := p.Summary()

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦══════════════════╗\n")
	fmt.Printf("║ Geometry            ║ %5d × %-9d ║\n", sum.Depth, sum.Width)
	fmt.Printf("╠═════════════════════╬══════════════════╣\n")
	fmt.Printf("║ Records             ║ %12d     ║\n", sum.Records)
	fmt.Printf("║ Distinct keys       ║ %12d     ║\n", len(exact))
	fmt.Printf("║ Node pairs          ║ %12d     ║\n", sum.NodePairs)
	fmt.Printf("║ Orbit pairs         ║ %12d     ║\n", sum.OrbitPairs)
	fmt.Printf("║ Reported pairs      ║ %12d     ║\n", sum.ReportedPairs)
	fmt.Printf("║ Range floor(εN)     ║ %12d     ║\n", noise)
	fmt.Printf("║ Exact estimates     ║ %11.2f%%     ║\n", 100*float64(exactHits)/float64(len(exact)))
	fmt.Printf("║ Keys above εN       ║ %11.4f%%     ║\n", 100*float64(overBound)/float64(len(exact)))
	fmt.Printf("║ Max overestimate    ║ %12d     ║\n", maxOver)
	fmt.Printf("║ Generate time       ║ %8.2f sec     ║\n", genDuration.Seconds())
	fmt.Printf("║ Pass 1 time         ║ %8.2f sec     ║\n", ingestDuration.Seconds())
	fmt.Printf("║ Pass 1 throughput   ║ %8.2f M/sec   ║\n", float64(sum.Records)/ingestDuration.Seconds()/1_000_000)
	fmt.Printf("║ Pass 2 time         ║ %8.2f sec     ║\n", reportDuration.Seconds())
	fmt.Printf("║ Pass 2 probes/sec   ║ %8.2f M/sec   ║\n", float64(sum.NodePairs*sum.OrbitPairs)/reportDuration.Seconds()/1_000_000)
	fmt.Printf("║ Sketch table        ║ %8.1f MB      ║\n", float64(sketch.MemoryBytes())/1_000_000)
	fmt.Printf("║ Peak heap memory    ║ %8.1f MB      ║\n", float64(peakHeapMem)/1_000_000)
	fmt.Printf("║ Peak RSS memory     ║ %8.1f MB      ║\n", float64(peakRSSMem)/1_000_000)
	fmt.Printf("╚═════════════════════╩══════════════════╝\n")
}
