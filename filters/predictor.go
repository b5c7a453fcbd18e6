package filters

import (
	"errors"

	"github.com/wudi/pdfxref/ir/raw"
)

var ErrPredictor = errors.New("unsupported predictor")

// applyPredictor reverses the PNG (10-15) or TIFF (2) predictor named in
// the decode parameters. Predictor 1 and absent params are passthrough.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, ErrPredictor
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	switch {
	case predictor == 2:
		return tiffPredictor(data, rowLen, colors, bpc), nil
	case predictor >= 10:
		return pngPredictor(data, rowLen, bpp), nil
	}
	return nil, ErrPredictor
}

func pngPredictor(data []byte, rowLen, bpp int) []byte {
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for pos := 0; pos < len(data); {
		typ := data[pos]
		pos++
		n := copy(row, data[pos:min(pos+rowLen, len(data))])
		pos += n
		// a short final row is zero padded
		for i := n; i < rowLen; i++ {
			row[i] = 0
		}
		switch typ {
		case 1:
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2:
			for i := range row {
				row[i] += prev[i]
			}
		case 3:
			for i := range row {
				var left int
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4:
			for i := range row {
				var a, c int
				if i >= bpp {
					a = int(row[i-bpp])
					c = int(prev[i-bpp])
				}
				row[i] += paeth(a, int(prev[i]), c)
			}
		}
		out = append(out, row[:n]...)
		prev, row = row, prev
	}
	return out
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	switch {
	case pa <= pb && pa <= pc:
		return byte(a)
	case pb <= pc:
		return byte(b)
	}
	return byte(c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// tiffPredictor only handles 8-bit components, which is all that xref and
// object streams use in practice. Other depths pass through unchanged.
func tiffPredictor(data []byte, rowLen, colors, bpc int) []byte {
	if bpc != 8 {
		return data
	}
	out := append([]byte(nil), data...)
	for start := 0; start < len(out); start += rowLen {
		end := min(start+rowLen, len(out))
		for i := start + colors; i < end; i++ {
			out[i] += out[i-colors]
		}
	}
	return out
}
