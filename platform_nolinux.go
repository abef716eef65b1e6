//go:build !linux

package orbitsketch

func fadviseSequential(fd int, offset, length int64) {}

// prefaultRegion is a no-op; the table stays lazily paged.
func prefaultRegion(data []byte) {}
