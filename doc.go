// Package orbitsketch estimates how often each (node pair, orbit pair)
// combination occurs in a stream of motif records, in memory bounded by a
// count-min sketch, and reports per node pair the orbit pairs that occur
// more often than sampling noise explains.
//
// Input lines come from a motif enumerator in prediction mode:
//
//	P ENSG00000114125:ENSG00000137266 0 11:11 12:12 ENSG00000114125:ENSG00000135916
//
// P is a flag, the second token is the candidate node pair u:v, the third
// says whether u and v are already connected, and the fourth is the orbit
// pair o:p the endpoints occupy in the motif. Later tokens are ignored.
//
// # Basic Usage
//
//	sum, err := orbitsketch.Run(ctx, os.Stdin, os.Stdout,
//	    orbitsketch.WithLabel(4),
//	    orbitsketch.WithErrorRate(1e-5),
//	    orbitsketch.WithConfidence(99),
//	)
//
// Run reads the whole input once (pass 1), inserting "<u>:<v>:<o>:<p>" into
// the sketch, then probes every observed node pair against every observed
// orbit pair (pass 2) and writes
//
//	<u>:<v> <c>\t<k>:<o>:<p> <estimate>\t...
//
// for node pairs with at least one estimate above floor(ε·N). The report is
// staged in a scratch file and reaches the output only if both passes succeed.
//
// # Package Structure
//
//   - Counting: sketch.go (Sketch, Dimensions), table_file.go (mmap'd table, scratch files)
//   - Hashing: hashfamily/ (ordered bank of deterministic string hashes)
//   - Parsing: parser.go (Parser, LenientParser)
//   - Pipeline: pipeline.go (Pipeline, Run), options.go (RunOption, ReportPolicy)
//   - Deduplication: dedup.go (in-memory sets), spill.go (partition files)
//   - Errors: errors/ (tagged Error with four kinds)
//   - Platform: platform_*.go (fallocate, fadvise, prefault)
package orbitsketch
