//go:build test

package rwb

const (
	// MaxCacheTries is the maximum number of probes using open addressing before taking over a slot in cache.
	MaxCacheTries = 2

	// MaxDirtyBlocks is the number of maximum dirty blocks triggering a flush.
	MaxDirtyBlocks = 2
)
