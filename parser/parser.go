// Package parser turns scanner tokens into raw objects, one value per call.
package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/scanner"
	"github.com/wudi/pdfxref/stream"
)

// ErrSyntax marks malformed object syntax.
var ErrSyntax = errors.New("pdf syntax error")

// DefaultMaxDepth bounds array/dictionary nesting.
const DefaultMaxDepth = 256

// endstream search window when /Length is wrong or missing.
const maxStreamSearch = 64 * 1024 * 1024

type Config struct {
	// Fetcher resolves an indirect /Length and is attached to every
	// dictionary produced so their accessors can follow references.
	Fetcher      raw.Fetcher
	AllowStreams bool
	Recovery     recovery.Strategy
	MaxDepth     int
	// MaxStringLength is passed through to the scanner.
	MaxStringLength int64
	// ObjectNum and ObjectGen label recovery reports.
	ObjectNum int
	ObjectGen int
}

// Parser reads objects from a stream. It keeps a small lookahead buffer;
// Position reports the offset of the first unconsumed token so callers can
// checkpoint and later Seek back.
type Parser struct {
	sc  scanner.Scanner
	buf []scanner.Token
	cfg Config
}

func New(s *stream.Stream, cfg Config) *Parser {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	sc := scanner.New(s, scanner.Config{MaxStringLength: cfg.MaxStringLength, Recovery: cfg.Recovery})
	if rc, ok := sc.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
		rc.SetRecoveryLocation(recovery.Location{ObjectNum: cfg.ObjectNum, ObjectGen: cfg.ObjectGen, Component: "parser"})
	}
	return &Parser{sc: sc, cfg: cfg}
}

func (p *Parser) Stream() *stream.Stream { return p.sc.Stream() }

// Position is the byte offset of the next token Next would return.
func (p *Parser) Position() int64 {
	if n := len(p.buf); n > 0 {
		return p.buf[n-1].Pos
	}
	return p.sc.Position()
}

// Seek repositions the parser and drops any lookahead.
func (p *Parser) Seek(offset int64) error {
	p.buf = p.buf[:0]
	return p.sc.Seek(offset)
}

func (p *Parser) Next() (scanner.Token, error) {
	if l := len(p.buf); l > 0 {
		t := p.buf[l-1]
		p.buf = p.buf[:l-1]
		return t, nil
	}
	return p.sc.Next()
}

func (p *Parser) Peek() (scanner.Token, error) {
	tok, err := p.Next()
	if err != nil {
		return tok, err
	}
	p.Unread(tok)
	return tok, nil
}

func (p *Parser) Unread(tok scanner.Token) { p.buf = append(p.buf, tok) }

// GetObject parses the next value. Strings are decrypted with tr when it is
// non-nil and streams carry it for later reads.
func (p *Parser) GetObject(tr raw.Transform) (raw.Object, error) {
	return p.parseObject(tr, 0)
}

func (p *Parser) parseObject(tr raw.Transform, depth int) (raw.Object, error) {
	if depth > p.cfg.MaxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrSyntax, p.cfg.MaxDepth)
	}
	tok, err := p.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		b := tok.Bytes
		if tr != nil {
			if b, err = tr.DecryptString(b); err != nil {
				return nil, fmt.Errorf("decrypt string at %d: %w", tok.Pos, err)
			}
		}
		return raw.StringObj{Bytes: b, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return p.parseArray(tr, depth)
	case scanner.TokenDict:
		return p.parseDict(tr, depth)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	}
	p.Unread(tok)
	return nil, fmt.Errorf("%w: unexpected %s %q at %d", ErrSyntax, tok.Type, tok.Str, tok.Pos)
}

func (p *Parser) parseArray(tr raw.Transform, depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := p.Next()
		if errors.Is(err, io.EOF) {
			if rerr := p.recover(errors.New("unterminated array"), tok.Pos); rerr != nil {
				return nil, rerr
			}
			return arr, nil
		}
		if err != nil {
			return nil, err
		}
		if tok.Is("]") {
			return arr, nil
		}
		if tok.Is("endobj") {
			if rerr := p.recover(errors.New("unexpected endobj in array (missing ]?)"), tok.Pos); rerr != nil {
				return nil, rerr
			}
			p.Unread(tok)
			return arr, nil
		}
		p.Unread(tok)
		item, err := p.parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (p *Parser) parseDict(tr raw.Transform, depth int) (raw.Object, error) {
	d := raw.Dict()
	d.SetFetcher(p.cfg.Fetcher)
	for {
		tok, err := p.Next()
		if errors.Is(err, io.EOF) {
			if rerr := p.recover(errors.New("unterminated dictionary"), tok.Pos); rerr != nil {
				return nil, rerr
			}
			return d, nil
		}
		if err != nil {
			return nil, err
		}
		if tok.Is(">>") {
			break
		}
		if tok.Type != scanner.TokenName {
			if tok.Is("endobj") || tok.Is("stream") {
				err := errors.New("unexpected " + tok.Str + " in dict (missing >>?)")
				if rerr := p.recover(err, tok.Pos); rerr != nil {
					return nil, rerr
				}
				p.Unread(tok)
				break
			}
			if rerr := p.recover(fmt.Errorf("%w: expected name in dict, got %s", ErrSyntax, tok.Type), tok.Pos); rerr != nil {
				return nil, rerr
			}
			continue
		}
		key := tok.Str
		next, err := p.Peek()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err == nil && next.Is(">>") {
			// "/Key >>": the value is missing, treat it as null
			d.Set(key, raw.NullObj{})
			continue
		}
		val, err := p.parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}

	tok, err := p.Next()
	if errors.Is(err, io.EOF) {
		return d, nil
	}
	if err != nil {
		return nil, err
	}
	if !tok.Is("stream") {
		p.Unread(tok)
		return d, nil
	}
	if !p.cfg.AllowStreams {
		p.Unread(tok)
		return d, nil
	}
	return p.makeStream(d, tr)
}

// makeStream builds a stream whose payload follows the "stream" keyword the
// scanner just consumed.
func (p *Parser) makeStream(dict *raw.DictObj, tr raw.Transform) (raw.Object, error) {
	s := p.Stream()
	if err := skipStreamEOL(s); err != nil {
		return nil, err
	}
	start := s.Pos()

	length := int64(-1)
	lv, err := dict.Get("Length")
	if err != nil {
		return nil, err
	}
	if n, ok := raw.AsInt(lv); ok && n >= 0 {
		length = n
	}

	ok := false
	if length >= 0 && start+length <= s.End() {
		s.SetPos(start + length)
		ok, err = expectEndstream(s)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		s.SetPos(start)
		found, err := s.Find([]byte("endstream"), maxStreamSearch)
		if err != nil {
			return nil, err
		}
		if !found {
			if rerr := p.recover(errors.New("missing endstream"), start); rerr != nil {
				return nil, rerr
			}
			s.SetPos(s.End())
			length = s.End() - start
		} else {
			end := s.Pos()
			length = trimEOL(s, start, end) - start
			s.Skip(int64(len("endstream")))
		}
		dict.Set("Length", raw.NumberInt(length))
	}
	p.buf = p.buf[:0]
	return raw.NewStreamView(dict, s.SubStream(start, length), tr), nil
}

// skipStreamEOL consumes the line ending after "stream". Some producers put
// spaces before it or use a bare CR.
func skipStreamEOL(s *stream.Stream) error {
	for {
		c, err := s.PeekByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if c != ' ' && c != '\t' {
			break
		}
		s.Skip(1)
	}
	c, err := s.PeekByte()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	switch c {
	case '\r':
		s.Skip(1)
		n, err := s.PeekByte()
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err == nil && n == '\n' {
			s.Skip(1)
		}
	case '\n':
		s.Skip(1)
	}
	return nil
}

// expectEndstream reports whether "endstream" follows at the current
// position, allowing whitespace first. On success the stream is positioned
// after the keyword.
func expectEndstream(s *stream.Stream) (bool, error) {
	pos := s.Pos()
	for {
		c, err := s.PeekByte()
		if errors.Is(err, io.EOF) {
			s.SetPos(pos)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !scanner.IsWhitespace(c) {
			break
		}
		s.Skip(1)
	}
	kw := []byte("endstream")
	got, err := s.PeekBytes(len(kw))
	if err != nil {
		return false, err
	}
	if string(got) != string(kw) {
		s.SetPos(pos)
		return false, nil
	}
	s.Skip(int64(len(kw)))
	return true, nil
}

// trimEOL drops one line ending before end.
func trimEOL(s *stream.Stream, start, end int64) int64 {
	if end > start {
		if c, err := s.PeekAt(end - 1 - s.Pos()); err == nil && c == '\n' {
			end--
		}
	}
	if end > start {
		if c, err := s.PeekAt(end - 1 - s.Pos()); err == nil && c == '\r' {
			end--
		}
	}
	return end
}

func (p *Parser) recover(err error, pos int64) error {
	loc := recovery.Location{ByteOffset: pos, ObjectNum: p.cfg.ObjectNum, ObjectGen: p.cfg.ObjectGen, Component: "parser"}
	if recovery.Allows(recovery.Decide(p.cfg.Recovery, nil, err, loc)) {
		return nil
	}
	if !errors.Is(err, ErrSyntax) {
		err = fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return err
}
