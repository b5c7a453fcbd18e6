package xref

import (
	"context"
	"fmt"

	"github.com/wudi/pdfxref/filters"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/scanner"
)

// phase tracks a section decoder. Only inProgress carries a checkpoint; begin
// re-arms a done decoder for the next section.
type phase int

const (
	notStarted phase = iota
	inProgress
	done
)

// tableCheckpoint is the resume point of a classic table. pos is the offset
// of the first token not yet folded into the index.
type tableCheckpoint struct {
	pos        int64
	haveHeader bool
	first      int
	count      int
	entry      int
	subsection int
}

// tableDecoder reads "xref" tables. A missing-data fault leaves the
// checkpoint at the start of the interrupted subsection header or entry.
type tableDecoder struct {
	phase phase
	cp    tableCheckpoint
}

// begin arms the decoder with p positioned just after the xref keyword.
func (d *tableDecoder) begin(p *parser.Parser) {
	d.phase = inProgress
	d.cp = tableCheckpoint{pos: p.Position()}
}

func (d *tableDecoder) active() bool { return d.phase == inProgress }

// decode fills t and returns the trailer dictionary following the table.
func (d *tableDecoder) decode(p *parser.Parser, t *table) (*raw.DictObj, error) {
	if d.phase != inProgress {
		return nil, fmt.Errorf("%w: table decoder not started", ErrFormat)
	}
	if err := p.Seek(d.cp.pos); err != nil {
		return nil, err
	}
	for {
		if !d.cp.haveHeader {
			tok, err := p.Next()
			if err != nil {
				return nil, err
			}
			if tok.Is("trailer") {
				break
			}
			cnt, err := p.Next()
			if err != nil {
				return nil, err
			}
			if !isInt(tok) || !isInt(cnt) {
				return nil, fmt.Errorf("%w: wrong types in subsection header at %d", ErrFormat, tok.Pos)
			}
			d.cp.first, d.cp.count, d.cp.entry = int(tok.Int), int(cnt.Int), 0
			d.cp.haveHeader = true
			d.cp.pos = p.Position()
		}
		for d.cp.entry < d.cp.count {
			e, err := readTableEntry(p)
			if err != nil {
				return nil, fmt.Errorf("subsection %d %d: %w", d.cp.first, d.cp.count, err)
			}
			// Some producers number the first subsection from 1 while still
			// writing the free head of the list first.
			if d.cp.entry == 0 && e.Kind == Free && d.cp.first == 1 {
				d.cp.first = 0
			}
			// checked per section: a newer free entry does not excuse an
			// older table
			if d.cp.subsection == 0 && d.cp.entry == 0 && d.cp.first == 0 && e.Kind != Free {
				return nil, fmt.Errorf("%w: object 0 is not free", ErrFormat)
			}
			t.add(d.cp.first+d.cp.entry, e)
			d.cp.entry++
			d.cp.pos = p.Position()
		}
		d.cp.haveHeader = false
		d.cp.subsection++
	}
	obj, err := p.GetObject(nil)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		if s, isStream := obj.(*raw.StreamObj); isStream {
			dict = s.Dict
		} else {
			return nil, fmt.Errorf("%w: trailer is %s, not a dictionary", ErrFormat, typeName(obj))
		}
	}
	d.phase = done
	d.cp = tableCheckpoint{}
	return dict, nil
}

func readTableEntry(p *parser.Parser) (Entry, error) {
	off, err := p.Next()
	if err != nil {
		return Entry{}, err
	}
	gen, err := p.Next()
	if err != nil {
		return Entry{}, err
	}
	flag, err := p.Next()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Offset: off.Int, Gen: int(gen.Int)}
	switch {
	case flag.Is("f"):
		e.Kind = Free
	case flag.Is("n"):
		e.Kind = Uncompressed
	default:
		return Entry{}, fmt.Errorf("%w: invalid entry flag %q at %d", ErrFormat, flag.Str, flag.Pos)
	}
	if !isInt(off) || !isInt(gen) {
		return Entry{}, fmt.Errorf("%w: invalid entry at %d", ErrFormat, off.Pos)
	}
	return e, nil
}

func isInt(t scanner.Token) bool { return t.Type == scanner.TokenNumber && t.IsInt }

// streamCheckpoint is the resume point of a cross-reference stream: which
// Index pair is being read, the entry within it and the byte offset into the
// decoded data.
type streamCheckpoint struct {
	ranges [][2]int
	widths [3]int
	rng    int
	entry  int
	pos    int
	data   []byte
}

type streamDecoder struct {
	phase phase
	cp    streamCheckpoint
}

func (d *streamDecoder) active() bool { return d.phase == inProgress }

// begin validates the stream dictionary and decodes the stream data. The
// decoded bytes are kept so a resumed decode does not filter them again.
func (d *streamDecoder) begin(ctx context.Context, s *raw.StreamObj, pipe *filters.Pipeline) error {
	dict := s.Dict
	w, err := dict.GetArray("W")
	if err != nil {
		return err
	}
	if w == nil || w.Len() < 3 {
		return fmt.Errorf("%w: xref stream needs a W array of three widths", ErrFormat)
	}
	var widths [3]int
	for i := 0; i < 3; i++ {
		v, ok := raw.AsInt(w.Items[i])
		if !ok || v < 0 || v > 8 {
			return fmt.Errorf("%w: invalid W field %d", ErrFormat, i)
		}
		widths[i] = int(v)
	}
	var ranges [][2]int
	index, err := dict.GetArray("Index")
	if err != nil {
		return err
	}
	if index != nil {
		for i := 0; i+1 < index.Len(); i += 2 {
			first, ok1 := raw.AsInt(index.Items[i])
			n, ok2 := raw.AsInt(index.Items[i+1])
			if !ok1 || !ok2 {
				return fmt.Errorf("%w: invalid Index range fields", ErrFormat)
			}
			ranges = append(ranges, [2]int{int(first), int(n)})
		}
	} else {
		size, err := dict.Get("Size")
		if err != nil {
			return err
		}
		n, ok := raw.AsInt(size)
		if !ok {
			return fmt.Errorf("%w: xref stream has no Size", ErrFormat)
		}
		ranges = [][2]int{{0, int(n)}}
	}
	data, err := pipe.DecodeStream(ctx, s)
	if err != nil {
		return err
	}
	d.phase = inProgress
	d.cp = streamCheckpoint{ranges: ranges, widths: widths, data: data}
	return nil
}

func (d *streamDecoder) decode(t *table) error {
	if d.phase != inProgress {
		return fmt.Errorf("%w: stream decoder not started", ErrFormat)
	}
	cp := &d.cp
	for ; cp.rng < len(cp.ranges); cp.rng, cp.entry = cp.rng+1, 0 {
		first, n := cp.ranges[cp.rng][0], cp.ranges[cp.rng][1]
		for ; cp.entry < n; cp.entry++ {
			typ, ok := cp.field(cp.widths[0])
			if !ok {
				return fmt.Errorf("%w: xref stream truncated in type field", ErrFormat)
			}
			if cp.widths[0] == 0 {
				typ = 1
			}
			off, ok := cp.field(cp.widths[1])
			if !ok {
				return fmt.Errorf("%w: xref stream truncated in offset field", ErrFormat)
			}
			gen, ok := cp.field(cp.widths[2])
			if !ok {
				return fmt.Errorf("%w: xref stream truncated in generation field", ErrFormat)
			}
			e := Entry{Offset: int64(off), Gen: int(gen)}
			switch typ {
			case 0:
				e.Kind = Free
			case 1:
				e.Kind = Uncompressed
			case 2:
				e.Kind = Compressed
			default:
				return fmt.Errorf("%w: invalid xref stream entry type %d", ErrFormat, typ)
			}
			t.add(first+cp.entry, e)
		}
	}
	d.phase = done
	d.cp = streamCheckpoint{}
	return nil
}

// field reads one big-endian field of the given width.
func (cp *streamCheckpoint) field(width int) (uint64, bool) {
	if cp.pos+width > len(cp.data) {
		return 0, false
	}
	var v uint64
	for _, b := range cp.data[cp.pos : cp.pos+width] {
		v = v<<8 | uint64(b)
	}
	cp.pos += width
	return v, true
}

func typeName(o raw.Object) string {
	if o == nil {
		return "nothing"
	}
	return o.Type()
}
