package security

import "time"

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion attacks (e.g., zip bombs, stack overflows).
type Limits struct {
	// Maximum decompressed stream size (prevent zip bombs). Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum array/dictionary nesting while parsing one object. Default: 100.
	MaxIndirectDepth int

	// Maximum number of xref sections followed through Prev/XRefStm. Default: 50.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024, // 10 MB
		MaxDecodeTime:       30 * time.Second,
	}
}

// Normalize fills zero fields from DefaultLimits.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth <= 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxDecodeTime <= 0 {
		l.MaxDecodeTime = d.MaxDecodeTime
	}
	return l
}
