package xref_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfxref/internal/pdftest"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
	"github.com/wudi/pdfxref/xref"
)

func writeDoc(b *pdftest.Builder) *pdftest.Builder {
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	return b
}

func parse(t *testing.T, src stream.Source, start int64, cfg xref.Config) *xref.XRef {
	t.Helper()
	x := xref.New(stream.New(src), cfg)
	x.SetStartXRef(start)
	require.NoError(t, x.Parse(context.Background(), false))
	return x
}

func ref(num int) raw.ObjectRef { return raw.ObjectRef{Num: num} }

func text(t *testing.T, o raw.Object) string {
	t.Helper()
	s, ok := raw.AsString(o)
	require.True(t, ok, "expected a string, got %T", o)
	return string(s)
}

// countingSource records the offset of every window handed out.
type countingSource struct {
	stream.Source
	mu   sync.Mutex
	offs []int64
}

func (c *countingSource) Window(off int64) ([]byte, error) {
	c.mu.Lock()
	c.offs = append(c.offs, off)
	c.mu.Unlock()
	return c.Source.Window(off)
}

func (c *countingSource) reset() {
	c.mu.Lock()
	c.offs = nil
	c.mu.Unlock()
}

func (c *countingSource) calls() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offs...)
}

func TestParseClassicTable(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(4, "(hello)")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	root, err := x.Root()
	require.NoError(t, err)
	assert.True(t, raw.IsName(root.KV["Type"], "Catalog"))

	obj, err := x.Fetch(ref(4))
	require.NoError(t, err)
	assert.Equal(t, "hello", text(t, obj))

	e, ok := x.Entry(0)
	require.True(t, ok)
	assert.Equal(t, xref.Free, e.Kind)
	e, ok = x.Entry(4)
	require.True(t, ok)
	assert.Equal(t, xref.Entry{Offset: b.Offset(4), Kind: xref.Uncompressed}, e)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, x.Objects())

	missing, err := x.Fetch(ref(99))
	require.NoError(t, err)
	assert.True(t, raw.IsNull(missing))
}

func TestFetchIsCached(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(4, "(hello)")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)

	src := &countingSource{Source: stream.Memory(b.Bytes())}
	x := parse(t, src, off, xref.Config{})

	first, err := x.Fetch(ref(4))
	require.NoError(t, err)
	src.reset()
	second, err := x.Fetch(ref(4))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, src.calls())
	assert.Equal(t, 1, x.Stats().CacheHits)
}

func TestFetchIfRef(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(4, "42")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	obj, err := x.FetchIfRef(raw.Ref(4, 0))
	require.NoError(t, err)
	n, ok := raw.AsInt(obj)
	require.True(t, ok)
	assert.EqualValues(t, 42, n)

	direct := raw.Name("Direct")
	obj, err = x.FetchIfRef(direct)
	require.NoError(t, err)
	assert.Equal(t, direct, obj)
}

func TestStreamsAreFreshViews(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Stream(4, "", []byte("payload"))
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	a, err := x.Fetch(ref(4))
	require.NoError(t, err)
	s1, ok := raw.AsStream(a)
	require.True(t, ok)
	_, err = s1.Stream().GetBytes(3)
	require.NoError(t, err)

	again, err := x.Fetch(ref(4))
	require.NoError(t, err)
	s2, ok := raw.AsStream(again)
	require.True(t, ok)
	assert.True(t, s1.Equal(s2))
	assert.Equal(t, s2.Start(), s2.Stream().Pos())

	data, err := s2.Data()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestPrevChainNewestWins(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(5, "(old)")
	b.Object(6, "(untouched)")
	older := b.XRefTable("/Root 1 0 R")
	b.StartXRef(older)
	b.Object(5, "(new)")
	newer := b.XRefTable(fmt.Sprintf("/Root 1 0 R /Prev %d", older), 5)
	b.StartXRef(newer)

	x := parse(t, stream.Memory(b.Bytes()), newer, xref.Config{})

	obj, err := x.Fetch(ref(5))
	require.NoError(t, err)
	assert.Equal(t, "new", text(t, obj))
	obj, err = x.Fetch(ref(6))
	require.NoError(t, err)
	assert.Equal(t, "untouched", text(t, obj))
	assert.Equal(t, 2, x.Stats().SectionsParsed)
	assert.True(t, x.Trailer().Has("Prev"))
}

func TestOlderSectionWithUsedObjectZero(t *testing.T) {
	b := writeDoc(pdftest.New())
	older := b.Len()
	b.Write("xref\n0 4\n0000000000 00000 n \n")
	for n := 1; n <= 3; n++ {
		b.Write(fmt.Sprintf("%010d 00000 n \n", b.Offset(n)))
	}
	b.Write("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	newer := b.XRefTable(fmt.Sprintf("/Root 1 0 R /Prev %d", older))
	b.StartXRef(newer)

	x := xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	x.SetStartXRef(newer)
	err := x.Parse(context.Background(), false)
	require.ErrorIs(t, err, xref.ErrXRefParse)
	assert.Contains(t, err.Error(), "object 0 is not free")
}

func TestPrevLoopIsCut(t *testing.T) {
	b := writeDoc(pdftest.New())
	off := b.Len()
	b.XRefTable(fmt.Sprintf("/Root 1 0 R /Prev %d", off))
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})
	assert.Equal(t, 1, x.Stats().SectionsParsed)
}

func TestPrevWrittenAsReference(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(5, "(old)")
	older := b.XRefTable("/Root 1 0 R")
	b.Object(5, "(new)")
	newer := b.XRefTable(fmt.Sprintf("/Root 1 0 R /Prev %d 0 R", older), 5)
	b.StartXRef(newer)

	x := parse(t, stream.Memory(b.Bytes()), newer, xref.Config{})
	assert.Equal(t, 2, x.Stats().SectionsParsed)
	obj, err := x.Fetch(ref(3))
	require.NoError(t, err)
	_, ok := raw.AsDict(obj)
	assert.True(t, ok)
}

func TestXRefDepthLimit(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(6, "(only in the old section)")
	older := b.XRefTable("/Root 1 0 R")
	newer := b.XRefTable(fmt.Sprintf("/Root 1 0 R /Prev %d", older), 1, 2, 3)
	b.StartXRef(newer)

	x := parse(t, stream.Memory(b.Bytes()), newer, xref.Config{Limits: security.Limits{MaxXRefDepth: 1}})
	assert.Equal(t, 1, x.Stats().SectionsParsed)
	obj, err := x.Fetch(ref(6))
	require.NoError(t, err)
	assert.True(t, raw.IsNull(obj))
}

func TestXRefStreamWithObjectStream(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.ObjStm(10,
		pdftest.Member{Num: 2, Body: "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"},
		pdftest.Member{Num: 3, Body: "<< /Type /Page /Parent 2 0 R >>"},
		pdftest.Member{Num: 4, Body: "(packed)"},
	)
	off := b.XRefStream(11, "/Root 1 0 R")
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	e, ok := x.Entry(4)
	require.True(t, ok)
	assert.Equal(t, xref.Entry{Offset: 10, Gen: 2, Kind: xref.Compressed}, e)

	obj, err := x.Fetch(ref(4))
	require.NoError(t, err)
	assert.Equal(t, "packed", text(t, obj))

	page, err := x.Fetch(ref(3))
	require.NoError(t, err)
	d, ok := raw.AsDict(page)
	require.True(t, ok)
	assert.True(t, raw.IsName(d.KV["Type"], "Page"))

	pages, err := x.Fetch(ref(2))
	require.NoError(t, err)
	_, ok = raw.AsDict(pages)
	assert.True(t, ok)

	assert.Equal(t, 1, x.Stats().ObjStmDecodes)
	assert.True(t, raw.IsName(x.Trailer().KV["Type"], "XRef"))
}

func TestObjectStreamCountTooLarge(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog >>")
	b.Stream(10, "/Type /ObjStm /N 4611686018427387904 /First 4", []byte("4 0 (packed)"))
	b.Packed(4, 10, 0)
	off := b.XRefStream(11, "/Root 1 0 R")
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})
	e, ok := x.Entry(4)
	require.True(t, ok)
	require.Equal(t, xref.Compressed, e.Kind)

	var err error
	require.NotPanics(t, func() { _, err = x.Fetch(ref(4)) })
	assert.ErrorIs(t, err, xref.ErrFormat)
}

func TestHybridFile(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.ObjStm(10,
		pdftest.Member{Num: 2, Body: "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"},
		pdftest.Member{Num: 3, Body: "<< /Type /Page /Parent 2 0 R >>"},
	)
	stm := b.XRefStream(11, "")
	// the classic table only lists what older readers can reach
	off := b.XRefTable(fmt.Sprintf("/Root 1 0 R /XRefStm %d", stm), 1, 10, 11)
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	e, ok := x.Entry(3)
	require.True(t, ok)
	assert.Equal(t, xref.Compressed, e.Kind)
	obj, err := x.Fetch(ref(3))
	require.NoError(t, err)
	d, ok := raw.AsDict(obj)
	require.True(t, ok)
	assert.True(t, raw.IsName(d.KV["Type"], "Page"))
	assert.Equal(t, 2, x.Stats().SectionsParsed)
	assert.True(t, x.Trailer().Has("XRefStm"))
}

func TestFreeEntryShift(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	off := b.Len()
	b.Write(fmt.Sprintf("xref\n1 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R >>\n", b.Offset(1), b.Offset(2)))
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	e, ok := x.Entry(0)
	require.True(t, ok)
	assert.Equal(t, xref.Free, e.Kind)
	e, ok = x.Entry(1)
	require.True(t, ok)
	assert.Equal(t, b.Offset(1), e.Offset)
	_, ok = x.Entry(3)
	assert.False(t, ok)
}

func TestBrokenTableFailsWithoutRecovery(t *testing.T) {
	b := writeDoc(pdftest.New())
	off := b.Len()
	b.Write("xref\n0 2\n0000000000 65535 f \n0000000009 00000 q \ntrailer\n<< /Root 1 0 R >>\n")
	b.StartXRef(off)

	x := xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	x.SetStartXRef(off)
	err := x.Parse(context.Background(), false)
	require.ErrorIs(t, err, xref.ErrXRefParse)

	x = xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	require.NoError(t, x.Parse(context.Background(), true))
	root, err := x.Root()
	require.NoError(t, err)
	assert.True(t, root.Has("Pages"))
}

func TestRecoveryPicksTrailerWithID(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.Object(4, "(v1)")
	b.Write("trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n0\n%%EOF\n")
	b.Object(4, "(v2)")
	b.Write("trailer\n<< /Size 5 /Root 1 0 R /ID [<0102> <0102>] >>\nstartxref\n0\n%%EOF\n")

	x := xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	require.NoError(t, x.Parse(context.Background(), true))

	assert.True(t, x.Trailer().Has("ID"))
	obj, err := x.Fetch(ref(4))
	require.NoError(t, err)
	assert.Equal(t, "v2", text(t, obj))
	e, ok := x.Entry(4)
	require.True(t, ok)
	assert.Equal(t, b.Offset(4), e.Offset)
}

func TestRecoveryWithoutTrailer(t *testing.T) {
	b := pdftest.New()
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(7, "<< /Type /Catalog /Pages 2 0 R >>")

	x := xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	require.NoError(t, x.Parse(context.Background(), true))

	r, ok := x.Trailer().GetRef("Root")
	require.True(t, ok)
	assert.Equal(t, raw.ObjectRef{Num: 7}, r)
	root, err := x.Root()
	require.NoError(t, err)
	assert.True(t, raw.IsName(root.KV["Type"], "Catalog"))
}

func TestRecoveryFindsXRefStream(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.ObjStm(10,
		pdftest.Member{Num: 2, Body: "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"},
		pdftest.Member{Num: 3, Body: "<< /Type /Page /Parent 2 0 R >>"},
	)
	b.XRefStream(11, "/Root 1 0 R /ID [<aa> <aa>]")

	x := xref.New(stream.NewBytes(b.Bytes()), xref.Config{})
	require.NoError(t, x.Parse(context.Background(), true))

	obj, err := x.Fetch(ref(3))
	require.NoError(t, err)
	d, ok := raw.AsDict(obj)
	require.True(t, ok)
	assert.True(t, raw.IsName(d.KV["Type"], "Page"))
}

func TestRecoveryRejectsJunk(t *testing.T) {
	x := xref.New(stream.NewBytes([]byte("%PDF-1.4\nnothing to see here\n")), xref.Config{})
	err := x.Parse(context.Background(), true)
	require.ErrorIs(t, err, xref.ErrInvalidPDF)
	_, err = x.Root()
	require.ErrorIs(t, err, xref.ErrInvalidPDF)
}

func loadAllBut(t *testing.T, c *stream.Chunked, data []byte, skip int) {
	t.Helper()
	size := c.ChunkSize()
	for i := 0; i < c.NumChunks(); i++ {
		if i == skip {
			continue
		}
		begin := int64(i) * size
		end := begin + size
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		require.NoError(t, c.OnReceiveData(begin, data[begin:end]))
	}
}

func TestTableResumesFromCheckpoint(t *testing.T) {
	b := writeDoc(pdftest.New())
	for n := 4; n <= 40; n++ {
		b.Object(n, fmt.Sprintf("(payload %d)", n))
	}
	tableOff := b.XRefTable("/Root 1 0 R")
	b.StartXRef(tableOff)
	data := b.Bytes()

	const chunkSize = 64
	chunked := stream.NewChunked(int64(len(data)), chunkSize)
	missing := int((tableOff + 300) / chunkSize)
	chunkStart := int64(missing) * chunkSize
	loadAllBut(t, chunked, data, missing)

	src := &countingSource{Source: chunked}
	x := xref.New(stream.New(src), xref.Config{})
	x.SetStartXRef(tableOff)

	err := x.Parse(context.Background(), false)
	md, ok := stream.AsMissingData(err)
	require.True(t, ok, "expected a missing-data fault, got %v", err)
	assert.GreaterOrEqual(t, md.Begin, chunkStart)
	assert.Less(t, md.Begin, chunkStart+chunkSize)

	require.NoError(t, chunked.OnReceiveData(chunkStart, data[chunkStart:chunkStart+chunkSize]))
	src.reset()
	require.NoError(t, x.Parse(context.Background(), false))

	for _, off := range src.calls() {
		if off >= tableOff && off < chunkStart-24 {
			t.Fatalf("resumed parse re-read table bytes at %d (table at %d, resumed near %d)", off, tableOff, chunkStart)
		}
	}
	obj, err := x.Fetch(ref(40))
	require.NoError(t, err)
	assert.Equal(t, "payload 40", text(t, obj))
	assert.Equal(t, 1, x.Stats().SectionsParsed)

	whole := parse(t, stream.Memory(data), tableOff, xref.Config{})
	require.Equal(t, whole.Objects(), x.Objects())
	if diff := cmp.Diff(entries(whole), entries(x)); diff != "" {
		t.Errorf("resumed table differs from a parse of the complete file (-whole +resumed):\n%s", diff)
	}
}

// entries snapshots every entry of the table, free ones included.
func entries(x *xref.XRef) map[int]xref.Entry {
	out := make(map[int]xref.Entry)
	for _, n := range x.Objects() {
		e, _ := x.Entry(n)
		out[n] = e
	}
	return out
}

func TestFetchAsyncRequestsMissingRanges(t *testing.T) {
	b := writeDoc(pdftest.New())
	for n := 4; n <= 40; n++ {
		b.Object(n, fmt.Sprintf("(payload %d)", n))
	}
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	data := b.Bytes()

	chunked := stream.NewChunked(int64(len(data)), 64)
	mgr := stream.NewManager(chunked, stream.RangeFetcherFunc(func(ctx context.Context, begin, end int64) ([]byte, error) {
		return data[begin:end], nil
	}))
	ctx := context.Background()
	x := xref.New(stream.New(chunked), xref.Config{Requester: mgr})
	x.SetStartXRef(off)
	_, err := stream.Ensure(ctx, mgr, func() (struct{}, error) {
		return struct{}{}, x.Parse(ctx, false)
	})
	require.NoError(t, err)
	assert.False(t, chunked.Loaded())

	_, err = x.Fetch(ref(20))
	require.True(t, stream.IsMissingData(err), "expected a missing-data fault, got %v", err)

	before := mgr.Requests()
	obj, err := x.FetchAsync(ctx, ref(20))
	require.NoError(t, err)
	assert.Equal(t, "payload 20", text(t, obj))
	assert.Greater(t, mgr.Requests(), before)

	obj, err = x.FetchIfRefAsync(ctx, raw.Ref(20, 0))
	require.NoError(t, err)
	assert.Equal(t, "payload 20", text(t, obj))
}

func TestFetchAsyncWithoutRequester(t *testing.T) {
	b := writeDoc(pdftest.New())
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	data := b.Bytes()

	chunked := stream.NewChunked(int64(len(data)), 64)
	x := xref.New(stream.New(chunked), xref.Config{})
	x.SetStartXRef(off)
	err := x.Parse(context.Background(), false)
	assert.True(t, stream.IsMissingData(err))
}

func TestEncryptedStrings(t *testing.T) {
	id := []byte("0123456789abcdef")
	fixture := pdftest.NewEncryption("", "owner", pdftest.PermissionBits(pdftest.PermPrint), id, pdftest.AES128)
	enc := fixture.Dict()
	secret := fixture.Encrypt(4, 0, []byte("secret"))

	b := writeDoc(pdftest.New())
	b.Object(4, fmt.Sprintf("<%x>", secret))
	b.Object(5, "(plain text)")
	b.Object(9, pdftest.Format(enc))
	off := b.XRefTable(fmt.Sprintf("/Root 1 0 R /Encrypt 9 0 R /ID [<%x> <%x>]", id, id))
	b.StartXRef(off)

	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})
	require.True(t, x.Handler().IsEncrypted())

	obj, err := x.Fetch(ref(4))
	require.NoError(t, err)
	assert.Equal(t, "secret", text(t, obj))

	obj, err = x.Fetch(ref(5))
	require.NoError(t, err)
	assert.Equal(t, "plain text", text(t, obj))

	obj, err = x.Fetch(ref(9))
	require.NoError(t, err)
	d, ok := raw.AsDict(obj)
	require.True(t, ok)
	assert.True(t, raw.IsName(d.KV["Filter"], "Standard"))
}

func TestSelfReferentialLength(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.RawObject(6, "6 0 obj\n<< /Length 6 0 R >>\nstream\nabc\nendstream\nendobj\n")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	obj, err := x.Fetch(ref(6))
	require.NoError(t, err)
	s, ok := raw.AsStream(obj)
	require.True(t, ok)
	data, err := s.Data()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestObjKeywordWithNumber(t *testing.T) {
	b := writeDoc(pdftest.New())
	b.RawObject(8, "8 0 obj12\nendobj\n")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	obj, err := x.Fetch(ref(8))
	require.NoError(t, err)
	n, ok := raw.AsInt(obj)
	require.True(t, ok)
	assert.EqualValues(t, 12, n)
}

func TestBadEntries(t *testing.T) {
	b := writeDoc(pdftest.New())
	// object 7 is indexed at the offset where object 4 lives
	b.RawObject(7, "")
	b.Object(4, "(four)")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	x := parse(t, stream.Memory(b.Bytes()), off, xref.Config{})

	_, err := x.Fetch(ref(7))
	require.ErrorIs(t, err, xref.ErrBadXRefEntry)

	_, err = x.Fetch(raw.ObjectRef{Num: 4, Gen: 1})
	require.ErrorIs(t, err, xref.ErrBadXRefEntry)

	obj, err := x.Fetch(ref(4))
	require.NoError(t, err)
	assert.Equal(t, "four", text(t, obj))
}

func TestEntryString(t *testing.T) {
	e := xref.Entry{Offset: 10, Gen: 2, Kind: xref.Compressed}
	assert.True(t, strings.Contains(e.String(), "compressed"), e.String())
}
