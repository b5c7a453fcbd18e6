// Package xref reads the cross-reference index of a PDF and resolves
// indirect references against it.
package xref

import (
	"context"
	"fmt"
	"sort"

	"github.com/wudi/pdfxref/filters"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
)

type Config struct {
	Logger   observability.Logger
	Tracer   observability.Tracer
	Recovery recovery.Strategy
	// Password is tried as user password, then as owner password.
	Password string
	Limits   security.Limits
	// Requester serves FetchAsync. Without one the async forms return the
	// missing-data fault like their synchronous counterparts.
	Requester stream.Requester
}

// Stats counts resolver work. ObjStmDecodes grows once per object stream
// decoded, however many of its members are fetched afterwards.
type Stats struct {
	Fetches        int
	CacheHits      int
	ObjStmDecodes  int
	SectionsParsed int
}

// XRef owns the cross-reference index and the object cache of one document.
// It is not safe for concurrent use.
type XRef struct {
	stream *stream.Stream
	cfg    Config
	log    observability.Logger
	limits security.Limits
	pipe   *filters.Pipeline

	table   *table
	cache   *raw.RefCache
	pending raw.RefSet

	startXRefQueue []int64
	// sections parsed to completion; a Prev chain never revisits one
	visited map[int64]bool
	// XRefStm offsets already queued
	xrefStms map[int64]bool

	tableDec  tableDecoder
	streamDec streamDecoder

	topDict *raw.DictObj
	trailer *raw.DictObj
	root    *raw.DictObj

	handler    security.Handler
	encryptRef *raw.ObjectRef

	stats Stats
}

// New creates a resolver over the whole file s.
func New(s *stream.Stream, cfg Config) *XRef {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	limits := cfg.Limits.Normalize()
	return &XRef{
		stream:   s,
		cfg:      cfg,
		log:      cfg.Logger,
		limits:   limits,
		pipe:     filters.DefaultPipeline(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize, MaxDecodeTime: limits.MaxDecodeTime}),
		table:    newTable(),
		cache:    raw.NewRefCache(),
		pending:  raw.NewRefSet(),
		visited:  make(map[int64]bool),
		xrefStms: make(map[int64]bool),
		handler:  security.NoopHandler(),
	}
}

// SetStartXRef queues the newest cross-reference section.
func (x *XRef) SetStartXRef(offset int64) {
	x.startXRefQueue = []int64{offset}
}

// Parse builds the index. A missing-data fault leaves all progress in place
// and Parse can simply be called again once the range has arrived. Without
// recoveryMode a damaged index fails with ErrXRefParse; with it the whole
// file is scanned for objects and ErrInvalidPDF means nothing usable exists.
func (x *XRef) Parse(ctx context.Context, recoveryMode bool) (err error) {
	ctx, span := x.cfg.Tracer.StartSpan(ctx, observability.SpanParse)
	span.SetTag("recovery", recoveryMode)
	defer func() {
		if err != nil && !stream.IsMissingData(err) {
			span.SetError(err)
		}
		span.Finish()
	}()

	var trailer *raw.DictObj
	if recoveryMode {
		x.log.Info("indexing all objects")
		trailer, err = x.indexObjects(ctx)
	} else {
		trailer, err = x.readXRef(ctx, false)
	}
	if err != nil {
		return err
	}
	trailer.SetFetcher(x)
	x.trailer = trailer

	if err := x.setupEncryption(trailer); err != nil {
		return err
	}

	root, err := trailer.Get("Root")
	if err != nil {
		if stream.IsMissingData(err) {
			return err
		}
		x.log.Warn("cannot resolve Root", observability.Error("error", err))
	}
	if d, ok := raw.AsDict(root); ok && d.Has("Pages") {
		x.root = d
		return nil
	}
	if !recoveryMode {
		return fmt.Errorf("%w: no usable Root", ErrXRefParse)
	}
	return fmt.Errorf("%w: invalid Root reference", ErrInvalidPDF)
}

// readXRef drains the section queue. In recovery mode a failing section
// ends the walk without an error, since the caller is only probing.
func (x *XRef) readXRef(ctx context.Context, recoveryMode bool) (*raw.DictObj, error) {
	for len(x.startXRefQueue) > 0 {
		start := x.startXRefQueue[0]
		if x.visited[start] {
			x.log.Warn("skipping xref section already parsed", observability.Int64("offset", start))
			x.startXRefQueue = x.startXRefQueue[1:]
			continue
		}
		if x.stats.SectionsParsed >= x.limits.MaxXRefDepth {
			x.log.Warn("too many xref sections, ignoring the rest", observability.Int("limit", x.limits.MaxXRefDepth))
			x.startXRefQueue = nil
			break
		}
		dict, err := x.readSection(ctx, start)
		if err != nil {
			if stream.IsMissingData(err) {
				return nil, err
			}
			x.log.Info("error reading xref section", observability.Int64("offset", start), observability.Error("error", err))
			x.startXRefQueue = x.startXRefQueue[1:]
			x.tableDec, x.streamDec = tableDecoder{}, streamDecoder{}
			if recoveryMode {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: section at %d: %v", ErrXRefParse, start, err)
		}
		if x.topDict == nil {
			x.topDict = dict
		}
		switch prev := dict.KV["Prev"].(type) {
		case raw.NumberObj:
			if prev.IsInteger() {
				x.startXRefQueue = append(x.startXRefQueue, prev.Int())
			}
		case raw.RefObj:
			// seen in the wild: Prev written as a reference to its offset
			x.startXRefQueue = append(x.startXRefQueue, int64(prev.R.Num))
		}
		x.visited[start] = true
		x.stats.SectionsParsed++
		x.startXRefQueue = x.startXRefQueue[1:]
	}
	if x.topDict == nil && !recoveryMode {
		return nil, fmt.Errorf("%w: no cross-reference section", ErrXRefParse)
	}
	return x.topDict, nil
}

// readSection parses the table or stream at start, resuming an
// interrupted table from its checkpoint.
func (x *XRef) readSection(ctx context.Context, start int64) (*raw.DictObj, error) {
	if start < 0 || start >= x.stream.Length() {
		return nil, fmt.Errorf("%w: section offset %d out of range", ErrFormat, start)
	}
	p := parser.New(x.stream.SubStream(x.stream.Start()+start, -1), x.parserConfig(raw.ObjectRef{}))
	if x.tableDec.active() {
		return x.finishTable(p)
	}
	tok, err := p.Next()
	if err != nil {
		return nil, err
	}
	if tok.Is("xref") {
		x.tableDec.begin(p)
		return x.finishTable(p)
	}
	if !isInt(tok) {
		return nil, fmt.Errorf("%w: invalid xref header %q", ErrFormat, tok.Str)
	}
	gen, err := p.Next()
	if err != nil {
		return nil, err
	}
	kw, err := p.Next()
	if err != nil {
		return nil, err
	}
	if !isInt(gen) || !kw.Is("obj") {
		return nil, fmt.Errorf("%w: invalid xref stream header", ErrFormat)
	}
	obj, err := p.GetObject(nil)
	if err != nil {
		return nil, err
	}
	s, ok := raw.AsStream(obj)
	if !ok {
		return nil, fmt.Errorf("%w: xref stream object is %s", ErrFormat, typeName(obj))
	}
	if !x.streamDec.active() {
		if err := x.streamDec.begin(ctx, s, x.pipe); err != nil {
			return nil, err
		}
	}
	if err := x.streamDec.decode(x.table); err != nil {
		return nil, err
	}
	return s.Dict, nil
}

func (x *XRef) finishTable(p *parser.Parser) (*raw.DictObj, error) {
	dict, err := x.tableDec.decode(p, x.table)
	if err != nil {
		return nil, err
	}
	// hybrid files point at a stream holding the compressed objects
	if stm, ok := raw.AsInt(dict.KV["XRefStm"]); ok && !x.xrefStms[stm] {
		x.xrefStms[stm] = true
		x.startXRefQueue = append(x.startXRefQueue, stm)
	}
	return dict, nil
}

func (x *XRef) parserConfig(ref raw.ObjectRef) parser.Config {
	return parser.Config{
		Fetcher:         x,
		AllowStreams:    true,
		Recovery:        x.cfg.Recovery,
		MaxDepth:        x.limits.MaxIndirectDepth,
		MaxStringLength: x.limits.MaxStringLength,
		ObjectNum:       ref.Num,
		ObjectGen:       ref.Gen,
	}
}

// setupEncryption builds the decryption handler from the trailer. The
// encryption dictionary itself is never decrypted.
func (x *XRef) setupEncryption(trailer *raw.DictObj) error {
	enc, ok := trailer.Raw("Encrypt")
	if !ok || raw.IsNull(enc) {
		x.handler = security.NoopHandler()
		return nil
	}
	if ref, isRef := raw.IsRef(enc); isRef {
		x.encryptRef = &ref
	}
	dict, err := trailer.GetDict("Encrypt")
	if err != nil {
		return err
	}
	if dict == nil {
		x.log.Warn("Encrypt entry is not a dictionary, ignoring it")
		x.handler = security.NoopHandler()
		return nil
	}
	h, err := (&security.HandlerBuilder{}).WithEncryptDict(dict).WithTrailer(trailer).Build()
	if err != nil {
		return err
	}
	if err := h.Authenticate(x.cfg.Password); err != nil {
		return err
	}
	x.handler = h
	// anything fetched so far was read without decryption
	x.cache.Clear()
	if x.encryptRef != nil {
		x.cache.Put(*x.encryptRef, dict)
	}
	return nil
}

// Trailer returns the authoritative trailer, nil before Parse succeeds.
func (x *XRef) Trailer() *raw.DictObj { return x.trailer }

// Root returns the document catalog.
func (x *XRef) Root() (*raw.DictObj, error) {
	if x.root == nil {
		return nil, fmt.Errorf("%w: document has no catalog", ErrInvalidPDF)
	}
	return x.root, nil
}

// Entry returns the index record for an object number.
func (x *XRef) Entry(num int) (Entry, bool) { return x.table.get(num) }

// Objects lists the object numbers with an entry, in order.
func (x *XRef) Objects() []int {
	out := make([]int, 0, x.table.len())
	for n := range x.table.entries {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (x *XRef) Stats() Stats { return x.stats }

// Handler is the decryption handler, a no-op for unencrypted files.
func (x *XRef) Handler() security.Handler { return x.handler }

// Stream is the file the index refers to.
func (x *XRef) Stream() *stream.Stream { return x.stream }

// ClearCache drops every resolved object.
func (x *XRef) ClearCache() { x.cache.Clear() }
