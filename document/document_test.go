package document_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfxref/document"
	"github.com/wudi/pdfxref/internal/pdftest"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/stream"
	"github.com/wudi/pdfxref/xref"
)

func writeDoc(catalogExtra string) *pdftest.Builder {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R "+catalogExtra+" >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	return b
}

func finish(b *pdftest.Builder, trailer string) []byte {
	off := b.XRefTable(trailer)
	b.StartXRef(off)
	return b.Bytes()
}

func open(t *testing.T, data []byte, cfg document.Config) *document.Document {
	t.Helper()
	doc, err := document.Open(context.Background(), stream.Memory(data), cfg)
	require.NoError(t, err)
	return doc
}

func TestOpen(t *testing.T) {
	b := writeDoc("")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)

	doc := open(t, b.Bytes(), document.Config{})
	assert.Equal(t, off, doc.StartXRef())
	assert.Equal(t, "1.7", doc.Version())
	assert.Nil(t, doc.Linearization())
	assert.False(t, doc.Recovered())
	n, err := doc.Catalog().NumPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVersion(t *testing.T) {
	tests := []struct {
		header, catalog, want string
	}{
		{"1.4", "", "1.4"},
		{"1.4", "/Version /1.7", "1.7"},
		{"1.6", "/Version /1.3", "1.6"},
		{"1.4", "/Version /17", "1.4"},
		{"x.y", "/Version /2.0", "2.0"},
		{"x.y", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.header+tt.catalog, func(t *testing.T) {
			data := finish(writeDoc(tt.catalog), "/Root 1 0 R")
			copy(data[len("%PDF-"):], tt.header)
			doc := open(t, data, document.Config{})
			assert.Equal(t, tt.want, doc.Version())
		})
	}
}

func TestJunkBeforeHeader(t *testing.T) {
	data := finish(writeDoc(""), "/Root 1 0 R")
	junk := append([]byte("garbage\r\n\x00\x01"), data...)

	doc := open(t, junk, document.Config{})
	assert.Equal(t, "1.7", doc.HeaderVersion())
	_, ref, err := doc.Catalog().GetPageDict(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Num)

	id, changing, err := doc.FileID(context.Background())
	require.NoError(t, err)
	sum := md5.Sum(data[:min(len(data), 1024)])
	assert.Equal(t, hex.EncodeToString(sum[:]), id)
	assert.Empty(t, changing)
}

func TestFileID(t *testing.T) {
	const a, c = "00112233445566778899aabbccddeeff", "ffeeddccbbaa99887766554433221100"
	tests := []struct {
		name, ids           string
		permanent, changing string
	}{
		{"both", fmt.Sprintf("<%s> <%s>", a, c), a, c},
		{"same", fmt.Sprintf("<%s> <%s>", a, a), a, ""},
		{"badSecond", fmt.Sprintf("<%s> (short)", a), a, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := open(t, finish(writeDoc(""), "/Root 1 0 R /ID ["+tt.ids+"]"), document.Config{})
			permanent, changing, err := doc.FileID(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.permanent, permanent)
			assert.Equal(t, tt.changing, changing)
		})
	}

	t.Run("zeroes", func(t *testing.T) {
		data := finish(writeDoc(""), "/Root 1 0 R /ID [<"+strings.Repeat("00", 16)+"> <"+c+">]")
		doc := open(t, data, document.Config{})
		permanent, changing, err := doc.FileID(context.Background())
		require.NoError(t, err)
		sum := md5.Sum(data[:min(len(data), 1024)])
		assert.Equal(t, hex.EncodeToString(sum[:]), permanent)
		assert.Empty(t, changing)
	})
}

func TestInfo(t *testing.T) {
	b := writeDoc("/Lang (en-US)")
	b.Object(4, "<< /Title (Report) /Author <FEFF0041006C0069> /Trapped /True /CreationDate (D:20240101) /Pages 3 /Ratio 0.5 /Draft true /Owner (ops) /Bad [1] /Subject 7 >>")
	doc := open(t, finish(b, "/Root 1 0 R /Info 4 0 R"), document.Config{})

	info, err := doc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &document.Info{
		FormatVersion: "1.7",
		Language:      "en-US",
		Title:         "Report",
		Author:        "Ali",
		CreationDate:  "D:20240101",
		Trapped:       "True",
		Custom: map[string]string{
			"Pages": "3",
			"Ratio": "0.5",
			"Draft": "true",
			"Owner": "ops",
		},
	}, info)
}

func TestInfoMissing(t *testing.T) {
	doc := open(t, finish(writeDoc(""), "/Root 1 0 R /Info 9 0 R"), document.Config{})
	info, err := doc.Info(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.Title)
	assert.Nil(t, info.Custom)
}

func TestBrokenStartXRef(t *testing.T) {
	b := writeDoc("")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off + 7)
	data := b.Bytes()

	_, err := document.Open(context.Background(), stream.Memory(data), document.Config{})
	assert.ErrorIs(t, err, xref.ErrXRefParse)

	lenient := recovery.NewLenientStrategy()
	doc := open(t, data, document.Config{Recovery: lenient})
	assert.True(t, doc.Recovered())
	assert.NotEmpty(t, lenient.Errors())
	n, err := doc.Catalog().NumPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMissingStartXRef(t *testing.T) {
	b := writeDoc("")
	b.XRefTable("/Root 1 0 R")
	data := b.Bytes()

	_, err := document.Open(context.Background(), stream.Memory(data), document.Config{})
	assert.ErrorIs(t, err, xref.ErrXRefParse)

	doc := open(t, data, document.Config{Recovery: recovery.NewLenientStrategy()})
	assert.Zero(t, doc.StartXRef())
	assert.True(t, doc.Recovered())
}

func TestEmptyFile(t *testing.T) {
	_, err := document.Open(context.Background(), stream.Memory(nil), document.Config{})
	assert.ErrorIs(t, err, xref.ErrInvalidPDF)
}

func TestLinearized(t *testing.T) {
	b := pdftest.New()
	b.Object(10, "<< /Linearized 1 /L 0000000000 /H [100 50] /O 3 /E 200 /N 1 /T 1 >>")
	first := b.Len()
	b.Write("xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 11 /Root 1 0 R /Prev 0000000000 >>\n")
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	main := b.XRefTable("")
	b.StartXRef(main)
	data := b.Bytes()
	data = bytes.Replace(data, []byte("/L 0000000000"), []byte(fmt.Sprintf("/L %010d", len(data))), 1)
	data = bytes.Replace(data, []byte("/Prev 0000000000"), []byte(fmt.Sprintf("/Prev %010d", main)), 1)

	doc := open(t, data, document.Config{})
	require.NotNil(t, doc.Linearization())
	assert.Equal(t, 1, doc.Linearization().NumPages)
	assert.Equal(t, first, doc.StartXRef())
	n, err := doc.Catalog().NumPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenIncrementally(t *testing.T) {
	b := writeDoc("")
	for n := 4; n < 24; n++ {
		b.Object(n, "("+strings.Repeat("z", 100)+")")
	}
	data := finish(b, "/Root 1 0 R")

	chunked := stream.NewChunked(int64(len(data)), 64)
	mgr := stream.NewManager(chunked, stream.RangeFetcherFunc(func(ctx context.Context, begin, end int64) ([]byte, error) {
		return data[begin:end], nil
	}))
	doc, err := document.Open(context.Background(), chunked, document.Config{Requester: mgr})
	require.NoError(t, err)
	assert.Greater(t, mgr.Requests(), 0)
	assert.False(t, chunked.Loaded())

	_, ref, err := doc.Catalog().GetPageDict(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Num)

	_, err = document.Open(context.Background(), stream.NewChunked(int64(len(data)), 64), document.Config{})
	assert.True(t, stream.IsMissingData(err))
}
