package filters

import (
	"context"

	"github.com/wudi/pdfxref/ir/raw"
)

type lzwDecoder struct{}

func NewLZWDecoder() Decoder    { return lzwDecoder{} }
func (lzwDecoder) Name() string { return "LZWDecode" }

const (
	lzwClear = 256
	lzwEOD   = 257
)

// Decode implements the variable width LZW used by PDF. compress/lzw cannot
// be used because PDF switches code width one code early by default.
func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := intParam(params, "EarlyChange", 1)
	var (
		out    []byte
		prev   []byte
		bitBuf uint32
		bitLen int
		pos    int
	)
	table := make([][]byte, 258, 4096)
	width := 9
	reset := func() {
		table = table[:258]
		for i := 0; i < 256; i++ {
			if table[i] == nil {
				table[i] = []byte{byte(i)}
			}
		}
		width = 9
		prev = nil
	}
	reset()
	for {
		for bitLen < width && pos < len(in) {
			bitBuf = bitBuf<<8 | uint32(in[pos])
			bitLen += 8
			pos++
		}
		if bitLen < width {
			break
		}
		code := int(bitBuf>>(bitLen-width)) & (1<<width - 1)
		bitLen -= width
		switch {
		case code == lzwClear:
			reset()
			continue
		case code == lzwEOD:
			return applyPredictor(out, params)
		}
		var entry []byte
		switch {
		case code < len(table):
			entry = table[code]
		case code == len(table) && prev != nil:
			entry = append(append([]byte(nil), prev...), prev[0])
		default:
			// corrupt code; keep what was decoded so far
			return applyPredictor(out, params)
		}
		out = append(out, entry...)
		if prev != nil && len(table) < 4096 {
			next := make([]byte, len(prev)+1)
			copy(next, prev)
			next[len(prev)] = entry[0]
			table = append(table, next)
		}
		prev = entry
		if len(table)+early >= 1<<width && width < 12 {
			width++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return applyPredictor(out, params)
}
