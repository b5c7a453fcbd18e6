// Package document opens a PDF file: it locates the cross-reference data,
// builds the resolver and exposes the catalog and trailer metadata.
package document

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/wudi/pdfxref/catalog"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
	"github.com/wudi/pdfxref/xref"
)

const (
	headerSearchLimit = 1024
	startXRefStep     = 1024
	fingerprintBytes  = 1024
)

var (
	headerSignature    = []byte("%PDF-")
	startXRefSignature = []byte("startxref")
	endobjSignature    = []byte("endobj")

	versionPattern = regexp.MustCompile(`^[1-9]\.\d$`)
)

// Config controls how a document is opened. The zero value opens an
// unencrypted, fully loaded file with strict error handling.
type Config struct {
	Logger observability.Logger
	Tracer observability.Tracer
	// Recovery decides whether a damaged cross-reference index is rebuilt
	// by scanning the whole file. Nil means strict.
	Recovery recovery.Strategy
	Password string
	Limits   security.Limits
	// Requester fetches missing byte ranges of an incrementally loaded
	// source. It may also implement RequestAll(ctx) error, which is used
	// before a recovery scan.
	Requester stream.Requester
}

// Document is an opened PDF.
type Document struct {
	cfg     Config
	log     observability.Logger
	stream  *stream.Stream
	xref    *xref.XRef
	catalog *catalog.Catalog

	headerVersion string
	lin           *parser.Linearization
	startXRef     int64
	recovered     bool
}

// Open reads enough of src to resolve the catalog. Missing bytes are
// requested through cfg.Requester as they are needed.
func Open(ctx context.Context, src stream.Source, cfg Config) (doc *Document, err error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	ctx, span := cfg.Tracer.StartSpan(ctx, observability.SpanOpen)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	d := &Document{cfg: cfg, log: cfg.Logger, stream: stream.New(src)}
	if src.Len() == 0 {
		return nil, fmt.Errorf("%w: empty file", xref.ErrInvalidPDF)
	}
	if err := ensure(ctx, cfg.Requester, d.checkHeader); err != nil {
		return nil, err
	}
	if err := ensure(ctx, cfg.Requester, d.probeLinearization); err != nil {
		return nil, err
	}
	if err := ensure(ctx, cfg.Requester, d.findStartXRef); err != nil {
		return nil, err
	}
	span.SetTag("startxref", d.startXRef)
	span.SetTag("linearized", d.lin != nil)

	err = d.parse(ctx, false)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, xref.ErrXRefParse) && !errors.Is(err, xref.ErrBadXRefEntry) {
		return nil, err
	}
	loc := recovery.Location{ByteOffset: d.startXRef, Component: "xref"}
	if action := recovery.Decide(cfg.Recovery, ctx, err, loc); action != recovery.ActionFix {
		return nil, err
	}
	d.log.Warn("cross-reference data unusable, indexing all objects", observability.Error("error", err))
	if err := d.requestAll(ctx); err != nil {
		return nil, err
	}
	if err := d.parse(ctx, true); err != nil {
		return nil, err
	}
	d.recovered = true
	span.SetTag("recovered", true)
	return d, nil
}

func ensure(ctx context.Context, req stream.Requester, fn func() error) error {
	_, err := stream.Ensure(ctx, req, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// checkHeader looks for %PDF- near the start of the file. Everything before
// it is junk, and offsets in the file are taken relative to the header.
func (d *Document) checkHeader() error {
	s := stream.New(d.stream.Source())
	found, err := s.Find(headerSignature, headerSearchLimit)
	if err != nil {
		return err
	}
	if !found {
		d.log.Warn("no PDF header found")
		return nil
	}
	d.stream = s.SubStream(s.Pos(), -1)
	s.Skip(int64(len(headerSignature)))
	var version []byte
	for len(version) < 12 {
		c, err := s.ReadByte()
		if err != nil {
			if stream.IsMissingData(err) {
				return err
			}
			break
		}
		if c <= 0x20 {
			break
		}
		version = append(version, c)
	}
	if versionPattern.Match(version) {
		d.headerVersion = string(version)
	} else {
		d.log.Warn("invalid PDF header version", observability.String("version", string(version)))
	}
	return nil
}

func (d *Document) probeLinearization() error {
	lin, err := parser.ParseLinearization(d.stream)
	switch {
	case err == nil:
		d.lin = lin
	case stream.IsMissingData(err):
		return err
	case !errors.Is(err, parser.ErrNotLinearized):
		d.log.Debug("linearization probe failed", observability.Error("error", err))
	}
	return nil
}

// findStartXRef determines where the newest cross-reference section
// starts. A linearized file keeps its first-page section right after the
// linearization dictionary; otherwise startxref is searched from the end.
func (d *Document) findStartXRef() error {
	s := d.stream.Clone()
	d.startXRef = 0
	if d.lin != nil {
		found, err := s.Find(endobjSignature, 0)
		if err != nil || !found {
			return err
		}
		s.Skip(int64(len(endobjSignature)))
		for {
			c, err := s.PeekByte()
			if err != nil {
				if stream.IsMissingData(err) {
					return err
				}
				break
			}
			if !isWhiteSpace(c) {
				break
			}
			s.Skip(1)
		}
		d.startXRef = s.Pos() - s.Start()
		return nil
	}

	found := false
	for pos := s.End(); !found && pos > s.Start(); {
		pos -= startXRefStep - int64(len(startXRefSignature))
		if pos < s.Start() {
			pos = s.Start()
		}
		s.SetPos(min(pos+startXRefStep, s.End()))
		var err error
		if found, err = s.FindBackward(startXRefSignature, startXRefStep); err != nil {
			return err
		}
	}
	if !found {
		d.log.Warn("startxref not found")
		return nil
	}
	s.Skip(int64(len(startXRefSignature)))
	c, err := s.ReadByte()
	for err == nil && isWhiteSpace(c) {
		c, err = s.ReadByte()
	}
	var digits []byte
	for err == nil && c >= '0' && c <= '9' {
		digits = append(digits, c)
		c, err = s.ReadByte()
	}
	if err != nil && stream.IsMissingData(err) {
		return err
	}
	if n, perr := strconv.ParseInt(string(digits), 10, 64); perr == nil {
		d.startXRef = n
	} else {
		d.log.Warn("invalid startxref offset", observability.String("offset", string(digits)))
	}
	return nil
}

// parse builds the resolver and the catalog. Each attempt starts from a
// fresh resolver so a recovery scan never mixes with a broken index.
func (d *Document) parse(ctx context.Context, recoveryMode bool) error {
	x := xref.New(d.stream, xref.Config{
		Logger:    d.log,
		Tracer:    d.cfg.Tracer,
		Recovery:  d.cfg.Recovery,
		Password:  d.cfg.Password,
		Limits:    d.cfg.Limits,
		Requester: d.cfg.Requester,
	})
	x.SetStartXRef(d.startXRef)
	if err := ensure(ctx, d.cfg.Requester, func() error { return x.Parse(ctx, recoveryMode) }); err != nil {
		return err
	}
	root, err := x.Root()
	if err != nil {
		return err
	}
	cat, err := catalog.New(ctx, x, root, catalog.Config{
		Logger:    d.log,
		Requester: d.cfg.Requester,
		Limits:    d.cfg.Limits,
	})
	if err != nil {
		return err
	}
	d.xref, d.catalog = x, cat
	return nil
}

func (d *Document) requestAll(ctx context.Context) error {
	switch req := d.cfg.Requester.(type) {
	case nil:
		return nil
	case interface{ RequestAll(context.Context) error }:
		return req.RequestAll(ctx)
	default:
		return req.RequestRange(ctx, 0, d.stream.Source().Len())
	}
}

func (d *Document) XRef() *xref.XRef                     { return d.xref }
func (d *Document) Catalog() *catalog.Catalog            { return d.catalog }
func (d *Document) Trailer() *raw.DictObj                { return d.xref.Trailer() }
func (d *Document) StartXRef() int64                     { return d.startXRef }
func (d *Document) HeaderVersion() string                { return d.headerVersion }
func (d *Document) Recovered() bool                      { return d.recovered }
func (d *Document) Stream() *stream.Stream               { return d.stream }
func (d *Document) Linearization() *parser.Linearization { return d.lin }

// Version is the newer of the header version and the catalog /Version.
func (d *Document) Version() string {
	v := d.catalog.Version()
	if versionPattern.MatchString(v) && v > d.headerVersion {
		return v
	}
	return d.headerVersion
}

// FileID returns the hex encoded permanent and changing identifiers of the
// trailer ID array. Without a usable ID the permanent identifier is the MD5
// of the first kilobyte of the file and the changing one is empty.
func (d *Document) FileID(ctx context.Context) (permanent, changing string, err error) {
	ids, _ := raw.AsArray(d.xref.Trailer().KV["ID"])
	if ids != nil && ids.Len() > 0 {
		first, err := d.xref.FetchIfRefAsync(ctx, ids.Items[0])
		if err != nil {
			return "", "", err
		}
		if b, ok := validFileID(first); ok {
			permanent = hex.EncodeToString(b)
			if ids.Len() > 1 {
				second, err := d.xref.FetchIfRefAsync(ctx, ids.Items[1])
				if err != nil {
					return "", "", err
				}
				if c, ok := validFileID(second); ok && !bytes.Equal(b, c) {
					changing = hex.EncodeToString(c)
				}
			}
			return permanent, changing, nil
		}
	}
	head := d.stream.SubStream(d.stream.Start(), fingerprintBytes)
	data, err := stream.Ensure(ctx, d.cfg.Requester, head.Bytes)
	if err != nil {
		return "", "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), "", nil
}

var emptyFileID = make([]byte, 16)

func validFileID(o raw.Object) ([]byte, bool) {
	b, ok := raw.AsString(o)
	return b, ok && len(b) == 16 && !bytes.Equal(b, emptyFileID)
}

func isWhiteSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}
