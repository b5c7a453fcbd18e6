// Package pdftest writes small synthetic PDF files for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
)

type location struct {
	offset int64
	gen    int
	stm    int // containing object stream, 0 when uncompressed
	idx    int
}

// Builder appends objects and cross-reference sections to a buffer and
// remembers where every object landed.
type Builder struct {
	buf  bytes.Buffer
	objs map[int]location
}

func New() *Builder {
	b := &Builder{objs: make(map[int]location)}
	b.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return b
}

// Write appends raw text.
func (b *Builder) Write(s string) *Builder {
	b.buf.WriteString(s)
	return b
}

func (b *Builder) Len() int64 { return int64(b.buf.Len()) }

// Offset returns where object num was last written.
func (b *Builder) Offset(num int) int64 { return b.objs[num].offset }

// Object writes "num 0 obj body endobj".
func (b *Builder) Object(num int, body string) *Builder {
	return b.ObjectGen(num, 0, body)
}

func (b *Builder) ObjectGen(num, gen int, body string) *Builder {
	b.objs[num] = location{offset: b.Len(), gen: gen}
	fmt.Fprintf(&b.buf, "%d %d obj\n%s\nendobj\n", num, gen, body)
	return b
}

// RawObject records num at the current offset and writes text verbatim.
func (b *Builder) RawObject(num int, text string) *Builder {
	b.objs[num] = location{offset: b.Len()}
	b.buf.WriteString(text)
	return b
}

// Stream writes a stream object; dict is the dictionary body without the
// angle brackets and /Length is appended.
func (b *Builder) Stream(num int, dict string, data []byte) *Builder {
	b.objs[num] = location{offset: b.Len()}
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
	return b
}

// Packed records num as member idx of object stream stm without writing
// anything, for containers written by hand with Stream.
func (b *Builder) Packed(num, stm, idx int) *Builder {
	b.objs[num] = location{stm: stm, idx: idx}
	return b
}

// Member is one object packed into an object stream.
type Member struct {
	Num  int
	Body string
}

// ObjStm writes a Flate compressed object stream holding members.
func (b *Builder) ObjStm(num int, members ...Member) *Builder {
	var header, body strings.Builder
	for i, m := range members {
		fmt.Fprintf(&header, "%d %d ", m.Num, body.Len())
		body.WriteString(m.Body)
		body.WriteString("\n")
		b.objs[m.Num] = location{stm: num, idx: i}
	}
	data := header.String() + body.String()
	b.Stream(num, fmt.Sprintf("/Type /ObjStm /N %d /First %d /Filter /FlateDecode", len(members), header.Len()), Deflate([]byte(data)))
	return b
}

func (b *Builder) nums(only []int) []int {
	if len(only) > 0 {
		out := append([]int(nil), only...)
		sort.Ints(out)
		return out
	}
	out := make([]int, 0, len(b.objs))
	for n := range b.objs {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// XRefTable writes a classic table followed by a trailer holding extra
// entries and /Size. With no nums it covers object 0 through the highest
// object written; otherwise only the listed objects, one subsection per run.
// Compressed objects are skipped. It returns the offset of the table.
func (b *Builder) XRefTable(trailer string, nums ...int) int64 {
	off := b.Len()
	b.buf.WriteString("xref\n")
	all := b.nums(nil)
	size := 1
	if len(all) > 0 {
		size = all[len(all)-1] + 1
	}
	if len(nums) == 0 {
		fmt.Fprintf(&b.buf, "0 %d\n", size)
		for n := 0; n < size; n++ {
			loc, ok := b.objs[n]
			switch {
			case n == 0 || !ok || loc.stm != 0:
				b.buf.WriteString("0000000000 65535 f \n")
			default:
				fmt.Fprintf(&b.buf, "%010d %05d n \n", loc.offset, loc.gen)
			}
		}
	} else {
		sel := b.nums(nums)
		for i := 0; i < len(sel); {
			j := i
			for j+1 < len(sel) && sel[j+1] == sel[j]+1 {
				j++
			}
			fmt.Fprintf(&b.buf, "%d %d\n", sel[i], j-i+1)
			for _, n := range sel[i : j+1] {
				loc := b.objs[n]
				fmt.Fprintf(&b.buf, "%010d %05d n \n", loc.offset, loc.gen)
			}
			i = j + 1
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d %s >>\n", size, trailer)
	return off
}

// XRefStream writes object num as a Flate compressed cross-reference stream
// covering every object, itself included. It returns the stream's offset.
func (b *Builder) XRefStream(num int, trailer string) int64 {
	off := b.Len()
	b.objs[num] = location{offset: off}
	all := b.nums(nil)
	size := all[len(all)-1] + 1
	var rows bytes.Buffer
	for n := 0; n < size; n++ {
		loc, ok := b.objs[n]
		switch {
		case !ok || n == 0:
			rows.Write([]byte{0, 0, 0, 0, 0, 0xff, 0xff})
		case loc.stm != 0:
			rows.Write([]byte{2, byte(loc.stm >> 24), byte(loc.stm >> 16), byte(loc.stm >> 8), byte(loc.stm), byte(loc.idx >> 8), byte(loc.idx)})
		default:
			o := loc.offset
			rows.Write([]byte{1, byte(o >> 24), byte(o >> 16), byte(o >> 8), byte(o), byte(loc.gen >> 8), byte(loc.gen)})
		}
	}
	data := Deflate(rows.Bytes())
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Filter /FlateDecode %s /Length %d >>\nstream\n", num, size, trailer, len(data))
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
	return off
}

// StartXRef writes the file tail pointing at off.
func (b *Builder) StartXRef(off int64) *Builder {
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", off)
	return b
}

func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// Deflate compresses data with zlib.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// PageTree describes a page tree for Pages. A leaf has no Kids.
type PageTree struct {
	Kids []*PageTree
}

// Leaves returns n leaf pages.
func Leaves(n int) []*PageTree {
	out := make([]*PageTree, n)
	for i := range out {
		out[i] = &PageTree{}
	}
	return out
}

func (t *PageTree) count() int {
	if len(t.Kids) == 0 {
		return 1
	}
	n := 0
	for _, k := range t.Kids {
		n += k.count()
	}
	return n
}

// Pages writes the tree starting at object number first, the root taking
// first. It returns the leaf object numbers in document order and the next
// free object number.
func (b *Builder) Pages(root *PageTree, first int) (leaves []int, next int) {
	next = first
	var write func(t *PageTree, parent int) int
	write = func(t *PageTree, parent int) int {
		num := next
		next++
		parentEntry := ""
		if parent > 0 {
			parentEntry = fmt.Sprintf(" /Parent %d 0 R", parent)
		}
		if len(t.Kids) == 0 {
			leaves = append(leaves, num)
			b.Object(num, fmt.Sprintf("<< /Type /Page%s /MediaBox [0 0 612 792] >>", parentEntry))
			return num
		}
		kidNums := make([]int, len(t.Kids))
		pending := make([]string, 0, len(t.Kids))
		for i, k := range t.Kids {
			kidNums[i] = write(k, num)
			pending = append(pending, fmt.Sprintf("%d 0 R", kidNums[i]))
		}
		b.Object(num, fmt.Sprintf("<< /Type /Pages%s /Kids [%s] /Count %d >>", parentEntry, strings.Join(pending, " "), t.count()))
		return num
	}
	write(root, 0)
	return leaves, next
}

// Format writes o in PDF syntax. Strings are written as hex.
func Format(o raw.Object) string {
	switch v := o.(type) {
	case nil, raw.NullObj:
		return "null"
	case raw.BoolObj:
		if v.V {
			return "true"
		}
		return "false"
	case raw.NumberObj:
		if v.IsInteger() {
			return fmt.Sprintf("%d", v.Int())
		}
		return fmt.Sprintf("%g", v.Float())
	case raw.NameObj:
		return "/" + v.Val
	case raw.StringObj:
		return fmt.Sprintf("<%x>", v.Bytes)
	case raw.RefObj:
		return v.R.String()
	case *raw.ArrayObj:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = Format(it)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *raw.DictObj:
		var sb strings.Builder
		sb.WriteString("<<")
		for _, k := range v.Keys() {
			fmt.Fprintf(&sb, " /%s %s", k, Format(v.KV[k]))
		}
		sb.WriteString(" >>")
		return sb.String()
	}
	panic(fmt.Sprintf("pdftest: cannot format %T", o))
}
