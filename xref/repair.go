package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/stream"
)

var (
	objHeaderRe = regexp.MustCompile(`^(\d+)\s+(\d+)\s+obj\b`)
	endobjRe    = regexp.MustCompile(`\b(endobj|\d+\s+\d+\s+obj|xref|trailer\s*<<)\b`)
	startxrefRe = regexp.MustCompile(`\b(startxref|\d+\s+\d+\s+obj)\b`)

	trailerKw   = []byte("trailer")
	startxrefKw = []byte("startxref")
	xrefTypeTag = []byte("/XRef")
)

// indexObjects rebuilds the index by scanning the whole file for
// "N G obj" headers and trailer keywords, then picks the trailer to use.
// It needs every byte of the file.
func (x *XRef) indexObjects(ctx context.Context) (*raw.DictObj, error) {
	buf, err := x.stream.Bytes()
	if err != nil {
		return nil, err
	}
	x.table.reset()
	x.cache.Clear()
	x.visited = make(map[int64]bool)
	x.startXRefQueue = nil
	x.tableDec, x.streamDec = tableDecoder{}, streamDecoder{}
	base := x.stream.Start()

	var trailers, xrefStms []int
	for pos := 0; pos < len(buf); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := buf[pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pos++
			continue
		}
		if c == '%' {
			for pos < len(buf) && buf[pos] != '\n' && buf[pos] != '\r' {
				pos++
			}
			continue
		}
		token := readToken(buf, pos)
		switch {
		case keywordToken(token, "xref"):
			pos += skipUntil(buf, pos, trailerKw)
			trailers = append(trailers, pos)
			pos += skipUntil(buf, pos, startxrefKw)
		case objHeaderRe.MatchString(token):
			n, ok := x.indexObject(buf, pos, token)
			if !ok {
				pos += len(token) + 1
				continue
			}
			content := buf[pos : pos+n]
			if i := bytes.Index(content, xrefTypeTag); i >= 0 && i+5 < len(content) && content[i+5] < 64 {
				xrefStms = append(xrefStms, pos)
				x.xrefStms[int64(pos)] = true
			}
			pos += n
		case keywordToken(token, "trailer"):
			trailers = append(trailers, pos)
			pos += objectExtent(buf, pos, len(token), startxrefRe, "startxref")
		default:
			pos += len(token) + 1
		}
	}

	for _, off := range xrefStms {
		x.startXRefQueue = append(x.startXRefQueue, int64(off))
		if _, err := x.readXRef(ctx, true); err != nil {
			return nil, err
		}
	}

	var dicts []*raw.DictObj
	encrypted := false
	for _, off := range trailers {
		p := parser.New(x.stream.SubStream(base+int64(off), -1), x.parserConfig(raw.ObjectRef{}))
		tok, err := p.Next()
		if err != nil {
			if stream.IsMissingData(err) {
				return nil, err
			}
			continue
		}
		if !tok.Is("trailer") {
			continue
		}
		obj, err := p.GetObject(nil)
		if err != nil {
			if stream.IsMissingData(err) {
				return nil, err
			}
			continue
		}
		if d, ok := raw.AsDict(obj); ok {
			dicts = append(dicts, d)
			if d.Has("Encrypt") {
				encrypted = true
			}
		}
	}

	var chosen *raw.DictObj
	for _, d := range dicts {
		valid, err := x.checkTrailer(d)
		if err != nil {
			if stream.IsMissingData(err) {
				return nil, err
			}
			continue
		}
		if valid < 0 {
			continue
		}
		if valid > 0 && (!encrypted || d.Has("Encrypt")) && d.Has("ID") {
			return d, nil
		}
		chosen = d
	}
	if chosen != nil {
		return chosen, nil
	}
	if x.topDict != nil {
		return x.topDict, nil
	}
	if len(dicts) == 0 {
		if d, err := x.findCatalog(); d != nil || err != nil {
			return d, err
		}
	}
	return nil, fmt.Errorf("%w: no trailer found", ErrInvalidPDF)
}

// indexObject records the object whose header token starts at pos and
// returns the length of its content up to and including endobj.
func (x *XRef) indexObject(buf []byte, pos int, token string) (int, bool) {
	m := objHeaderRe.FindStringSubmatch(token)
	num, err1 := strconv.Atoi(m[1])
	gen, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	update := true
	if e, ok := x.table.get(num); ok {
		update = false
		if e.Gen == gen {
			// a later definition wins unless it is cut off by the end of file
			p := parser.New(x.stream.SubStream(x.stream.Start()+int64(pos+len(token)), -1), parser.Config{})
			if _, err := p.GetObject(nil); err != nil && errors.Is(err, io.EOF) {
				x.log.Warn("object truncated at end of file", observability.Int("num", num), observability.Int("gen", gen))
			} else {
				update = true
			}
		}
	}
	if update {
		x.table.set(num, Entry{Offset: int64(pos), Gen: gen, Kind: Uncompressed})
	}
	return objectExtent(buf, pos, len(token), endobjRe, "endobj"), true
}

// objectExtent measures from pos to just past the terminator found by re.
// A match other than terminator means the terminator is missing and the
// extent stops before the match.
func objectExtent(buf []byte, pos, tokenLen int, re *regexp.Regexp, terminator string) int {
	start := pos + tokenLen
	if start > len(buf) {
		return len(buf) - pos
	}
	m := re.FindSubmatchIndex(buf[start:])
	if m == nil {
		return len(buf) - pos
	}
	n := start + m[1] + 1 - pos
	if word := string(buf[start+m[2] : start+m[3]]); word != terminator {
		n -= len(word) + 1
	}
	if n <= 0 {
		n = tokenLen + 1
	}
	if pos+n > len(buf) {
		n = len(buf) - pos
	}
	return n
}

// checkTrailer resolves Root and Pages. It returns -1 when the trailer
// cannot be used, 0 when Pages lacks an integer Count and 1 otherwise.
func (x *XRef) checkTrailer(d *raw.DictObj) (int, error) {
	root, err := d.GetDict("Root")
	if err != nil || root == nil {
		return -1, err
	}
	pages, err := root.GetDict("Pages")
	if err != nil || pages == nil {
		return -1, err
	}
	count, err := pages.Get("Count")
	if err != nil {
		return -1, err
	}
	if _, ok := raw.AsInt(count); ok {
		return 1, nil
	}
	return 0, nil
}

// findCatalog synthesizes a trailer for a file that has none by looking
// for the catalog among the indexed objects.
func (x *XRef) findCatalog() (*raw.DictObj, error) {
	for _, num := range x.Objects() {
		e, _ := x.table.get(num)
		ref := raw.ObjectRef{Num: num, Gen: e.Gen}
		if e.Kind == Compressed {
			ref.Gen = 0
		}
		obj, err := x.Fetch(ref)
		if err != nil {
			if stream.IsMissingData(err) {
				return nil, err
			}
			continue
		}
		if s, ok := raw.AsStream(obj); ok {
			obj = s.Dict
		}
		d, ok := raw.AsDict(obj)
		if !ok {
			continue
		}
		if t, _ := d.Get("Type"); raw.IsName(t, "Catalog") {
			x.log.Warn("no trailer found, using catalog", observability.Ref("ref", ref.Num, ref.Gen))
			trailer := raw.Dict()
			trailer.Set("Root", raw.RefObj{R: ref})
			return trailer, nil
		}
	}
	return nil, nil
}

// readToken returns the text from off up to the next line end or '<'.
func readToken(data []byte, off int) string {
	end := off
	for end < len(data) && data[end] != '\n' && data[end] != '\r' && data[end] != '<' {
		end++
	}
	return string(data[off:end])
}

func keywordToken(token, kw string) bool {
	if !strings.HasPrefix(token, kw) {
		return false
	}
	if len(token) == len(kw) {
		return true
	}
	c := token[len(kw)]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// skipUntil counts the bytes before the next occurrence of what.
func skipUntil(data []byte, off int, what []byte) int {
	if off >= len(data) {
		return 0
	}
	if i := bytes.Index(data[off:], what); i >= 0 {
		return i
	}
	return len(data) - off
}
