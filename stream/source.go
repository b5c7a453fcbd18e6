package stream

import (
	"errors"
	"io"
	"sync"
)

// Range is a half-open byte interval [Begin, End).
type Range struct {
	Begin int64
	End   int64
}

// Source is the byte store behind a Stream. Reads of bytes that have not
// arrived yet fail with *MissingDataError instead of blocking.
type Source interface {
	Len() int64
	// Window returns the contiguous run of available bytes starting at off.
	Window(off int64) ([]byte, error)
	// EnsureRange fails with *MissingDataError if any byte in [begin, end) is unavailable.
	EnsureRange(begin, end int64) error
	IsRangeLoaded(begin, end int64) bool
	Loaded() bool
}

// Memory is a fully available Source.
type Memory []byte

func (m Memory) Len() int64 { return int64(len(m)) }

func (m Memory) Window(off int64) ([]byte, error) {
	if off < 0 {
		return nil, errors.New("negative offset")
	}
	if off >= int64(len(m)) {
		return nil, io.EOF
	}
	return m[off:], nil
}

func (m Memory) EnsureRange(begin, end int64) error { return nil }
func (m Memory) IsRangeLoaded(begin, end int64) bool { return true }
func (m Memory) Loaded() bool                        { return true }

// DefaultChunkSize matches the granularity used for range requests.
const DefaultChunkSize = 64 * 1024

// Chunked is a Source of known length whose content arrives in fixed-size
// chunks, possibly out of order. It is safe for concurrent use: data may be
// delivered from fetcher goroutines while the resolver reads.
type Chunked struct {
	mu        sync.RWMutex
	buf       []byte
	chunkSize int64
	loaded    []bool
	numLoaded int
}

// NewChunked allocates a chunked source of the given total length.
func NewChunked(length, chunkSize int64) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n := (length + chunkSize - 1) / chunkSize
	return &Chunked{
		buf:       make([]byte, length),
		chunkSize: chunkSize,
		loaded:    make([]bool, n),
	}
}

func (c *Chunked) Len() int64       { return int64(len(c.buf)) }
func (c *Chunked) ChunkSize() int64 { return c.chunkSize }
func (c *Chunked) NumChunks() int   { return len(c.loaded) }

// NumLoaded returns the number of chunks received so far.
func (c *Chunked) NumLoaded() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.numLoaded
}

func (c *Chunked) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.numLoaded == len(c.loaded)
}

// OnReceiveData stores data starting at the chunk-aligned offset begin.
// A trailing partial chunk only counts as loaded at the end of the file.
func (c *Chunked) OnReceiveData(begin int64, data []byte) error {
	if begin%c.chunkSize != 0 {
		return errors.New("chunked: data must start at a chunk boundary")
	}
	end := begin + int64(len(data))
	if begin < 0 || end > int64(len(c.buf)) {
		return errors.New("chunked: data out of range")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.buf[begin:end], data)
	first := begin / c.chunkSize
	last := end / c.chunkSize
	if end == int64(len(c.buf)) {
		last = (end + c.chunkSize - 1) / c.chunkSize
	}
	for i := first; i < last; i++ {
		if !c.loaded[i] {
			c.loaded[i] = true
			c.numLoaded++
		}
	}
	return nil
}

func (c *Chunked) Window(off int64) ([]byte, error) {
	if off < 0 {
		return nil, errors.New("negative offset")
	}
	if off >= int64(len(c.buf)) {
		return nil, io.EOF
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk := off / c.chunkSize
	if !c.loaded[chunk] {
		return nil, &MissingDataError{Begin: off, End: off + 1}
	}
	last := chunk
	for last+1 < int64(len(c.loaded)) && c.loaded[last+1] {
		last++
	}
	end := (last + 1) * c.chunkSize
	if end > int64(len(c.buf)) {
		end = int64(len(c.buf))
	}
	return c.buf[off:end], nil
}

func (c *Chunked) EnsureRange(begin, end int64) error {
	if end > int64(len(c.buf)) {
		end = int64(len(c.buf))
	}
	if begin >= end {
		return nil
	}
	if !c.IsRangeLoaded(begin, end) {
		return &MissingDataError{Begin: begin, End: end}
	}
	return nil
}

func (c *Chunked) IsRangeLoaded(begin, end int64) bool {
	if end > int64(len(c.buf)) {
		end = int64(len(c.buf))
	}
	if begin < 0 {
		begin = 0
	}
	if begin >= end {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := begin / c.chunkSize; i <= (end-1)/c.chunkSize; i++ {
		if !c.loaded[i] {
			return false
		}
	}
	return true
}

// MissingChunks lists the chunk indices in [begin, end) that have not arrived.
func (c *Chunked) MissingChunks(begin, end int64) []int {
	if end > int64(len(c.buf)) {
		end = int64(len(c.buf))
	}
	if begin < 0 {
		begin = 0
	}
	if begin >= end {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []int
	for i := begin / c.chunkSize; i <= (end-1)/c.chunkSize; i++ {
		if !c.loaded[i] {
			out = append(out, int(i))
		}
	}
	return out
}
