package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wudi/pdfxref/observability"
)

// Requester asks for byte ranges to be made available. A call returns once
// the data is present in the backing Source or the context is done.
type Requester interface {
	RequestRange(ctx context.Context, begin, end int64) error
	RequestRanges(ctx context.Context, ranges []Range) error
}

// RangeFetcher retrieves raw bytes for [begin, end) from the origin,
// typically via an HTTP range request.
type RangeFetcher interface {
	FetchRange(ctx context.Context, begin, end int64) ([]byte, error)
}

// RangeFetcherFunc adapts a function to RangeFetcher.
type RangeFetcherFunc func(ctx context.Context, begin, end int64) ([]byte, error)

func (f RangeFetcherFunc) FetchRange(ctx context.Context, begin, end int64) ([]byte, error) {
	return f(ctx, begin, end)
}

// Manager fills a Chunked source on demand. Requests are rounded out to chunk
// boundaries and adjacent missing chunks are fetched as one span.
type Manager struct {
	data    *Chunked
	fetcher RangeFetcher
	logger  observability.Logger
	tracer  observability.Tracer

	mu       sync.Mutex
	requests int
}

type ManagerOption func(*Manager)

func WithLogger(l observability.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

func NewManager(data *Chunked, fetcher RangeFetcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		data:    data,
		fetcher: fetcher,
		logger:  observability.NopLogger{},
		tracer:  observability.NopTracer(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Source returns the chunked store being filled.
func (m *Manager) Source() *Chunked { return m.data }

// Requests returns the number of fetcher round trips issued so far.
func (m *Manager) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *Manager) RequestRange(ctx context.Context, begin, end int64) error {
	return m.RequestRanges(ctx, []Range{{Begin: begin, End: end}})
}

// RequestRanges fetches every missing chunk covered by ranges.
func (m *Manager) RequestRanges(ctx context.Context, ranges []Range) error {
	seen := make(map[int]bool)
	var chunks []int
	for _, r := range ranges {
		for _, c := range m.data.MissingChunks(r.Begin, r.End) {
			if !seen[c] {
				seen[c] = true
				chunks = append(chunks, c)
			}
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	sort.Ints(chunks)
	return m.fetchChunks(ctx, chunks)
}

// RequestAll loads whatever is still missing.
func (m *Manager) RequestAll(ctx context.Context) error {
	return m.RequestRange(ctx, 0, m.data.Len())
}

func (m *Manager) fetchChunks(ctx context.Context, chunks []int) error {
	ctx, span := m.tracer.StartSpan(ctx, observability.SpanRequestRng)
	defer span.Finish()

	spans := groupChunks(chunks)
	span.SetTag("spans", len(spans))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, sp := range spans {
		begin := int64(sp[0]) * m.data.ChunkSize()
		end := int64(sp[1]) * m.data.ChunkSize()
		if end > m.data.Len() {
			end = m.data.Len()
		}
		wg.Add(1)
		go func(begin, end int64) {
			defer wg.Done()
			if err := m.fetchSpan(ctx, begin, end); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(begin, end)
	}
	wg.Wait()
	if firstErr != nil {
		span.SetError(firstErr)
	}
	return firstErr
}

func (m *Manager) fetchSpan(ctx context.Context, begin, end int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
	m.logger.Debug("request range", observability.Int64("begin", begin), observability.Int64("end", end))
	data, err := m.fetcher.FetchRange(ctx, begin, end)
	if err != nil {
		return fmt.Errorf("fetch range [%d, %d): %w", begin, end, err)
	}
	if int64(len(data)) != end-begin {
		return fmt.Errorf("fetch range [%d, %d): got %d bytes", begin, end, len(data))
	}
	return m.data.OnReceiveData(begin, data)
}

// groupChunks turns sorted chunk indices into [first, last+1) spans.
func groupChunks(chunks []int) [][2]int {
	var out [][2]int
	for _, c := range chunks {
		if n := len(out); n > 0 && out[n-1][1] == c {
			out[n-1][1] = c + 1
			continue
		}
		out = append(out, [2]int{c, c + 1})
	}
	return out
}

// ErrNoProgress is returned by Ensure when the same range is reported
// missing twice in a row after being requested.
var ErrNoProgress = errors.New("stream: requested range did not arrive")

// Ensure runs fn, and each time it fails with a missing-data fault requests
// the range and tries again. Without a requester the fault is returned as is.
func Ensure[T any](ctx context.Context, req Requester, fn func() (T, error)) (T, error) {
	var last *MissingDataError
	for {
		v, err := fn()
		md, ok := AsMissingData(err)
		if !ok || req == nil {
			return v, err
		}
		if last != nil && *last == *md {
			var zero T
			return zero, fmt.Errorf("%w: %v", ErrNoProgress, md)
		}
		if rerr := req.RequestRange(ctx, md.Begin, md.End); rerr != nil {
			var zero T
			return zero, rerr
		}
		last = md
	}
}
