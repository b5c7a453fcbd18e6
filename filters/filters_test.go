package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfxref/ir/raw"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func predictorParams(predictor, columns int) *raw.DictObj {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(int64(predictor)))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(int64(columns)))
	return params
}

func TestFlateDecode(t *testing.T) {
	out, err := NewFlateDecoder().Decode(context.Background(), deflate(t, []byte("hello world")), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestFlateDecodeTruncated(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 200)
	comp := deflate(t, payload)
	out, err := NewFlateDecoder().Decode(context.Background(), comp[:len(comp)-4], nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestPNGPredictors(t *testing.T) {
	// rows: Sub, Up, Average, Paeth over three columns
	encoded := []byte{
		1, 10, 2, 10,
		2, 1, 1, 1,
		3, 5, 5, 5,
		4, 0, 0, 0,
	}
	out, err := NewFlateDecoder().Decode(context.Background(), deflate(t, encoded), predictorParams(12, 3))
	require.NoError(t, err)
	want := []byte{
		10, 12, 22,
		11, 13, 23,
		10, 16, 24,
		10, 16, 24,
	}
	assert.Equal(t, want, out)
}

func TestTIFFPredictor(t *testing.T) {
	out, err := applyPredictor([]byte{1, 1, 1, 5, 1, 1}, predictorParams(2, 3))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 5, 6, 7}, out)
}

func TestLZWDecode(t *testing.T) {
	input := bytes.Repeat([]byte("hello lzw world, "), 200)
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, err := w.Write(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// compress/lzw widens codes late, like EarlyChange 0
	params := raw.Dict()
	params.Set("EarlyChange", raw.NumberInt(0))
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestLZWDecodeEarlyChange(t *testing.T) {
	// 9-bit codes for "-----A---B" followed by EOD, from the PDF reference example
	data := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	out, err := NewLZWDecoder().Decode(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, "-----A---B", string(out))
}

func TestRunLengthDecode(t *testing.T) {
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi!AA", string(out))
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(out))
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 65 6c\n6c 6f 7>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "hellop", string(out))
}

func TestPipelineChain(t *testing.T) {
	p := DefaultPipeline(Limits{})
	hexed := hex.EncodeToString(deflate(t, []byte("chained"))) + ">"
	out, err := p.Decode(context.Background(), []byte(hexed), []string{"AHx", "Fl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "chained", string(out))
}

func TestPipelineErrors(t *testing.T) {
	p := DefaultPipeline(Limits{MaxDecompressedSize: 4})
	_, err := p.Decode(context.Background(), []byte("x"), []string{"JBIG2Decode"}, nil)
	assert.ErrorIs(t, err, ErrUnknownFilter)

	_, err = p.Decode(context.Background(), deflate(t, []byte("too long")), []string{"FlateDecode"}, nil)
	assert.ErrorIs(t, err, ErrLimit)
}

func TestPipelineCancelled(t *testing.T) {
	p := DefaultPipeline(Limits{MaxDecodeTime: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Decode(ctx, deflate(t, []byte("abc")), []string{"FlateDecode"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeStream(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.Name("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(predictorParams(12, 2)))
	s := raw.NewStream(dict, deflate(t, []byte{0, 1, 2, 2, 3, 4}))

	out, err := DefaultPipeline(Limits{}).DecodeStream(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 4, 6}, out)
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.Name("ASCIIHexDecode"), raw.Name("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(raw.NullObj{}, predictorParams(12, 4)))
	names, params, err := ExtractFilters(dict)
	require.NoError(t, err)
	assert.Equal(t, []string{"ASCIIHexDecode", "FlateDecode"}, names)
	require.Len(t, params, 2)
	assert.Nil(t, params[0])
	assert.Equal(t, 4, intParam(params[1], "Columns", 1))

	bad := raw.Dict()
	bad.Set("Filter", raw.NumberInt(3))
	_, _, err = ExtractFilters(bad)
	assert.Error(t, err)

	names, _, err = ExtractFilters(raw.Dict())
	require.NoError(t, err)
	assert.Empty(t, names)
}
