package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wudi/pdfxref/ir/raw"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrLimit         = errors.New("decompressed size exceeds limit")
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// DefaultPipeline knows every filter needed for xref and object streams.
func DefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		flateDecoder{limit: limits.MaxDecompressedSize},
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
		NewCryptDecoder(),
	}, limits)
}

var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
}

func (p *Pipeline) findDecoder(name string) Decoder {
	if full, ok := abbreviations[name]; ok {
		name = full
	}
	return p.decoders[name]
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrLimit
		}
		data = out
	}
	return data, nil
}

// DecodeStream reads, decrypts and decodes a stream.
func (p *Pipeline) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	data, err := s.Data()
	if err != nil {
		return nil, err
	}
	names, params, err := ExtractFilters(s.Dict)
	if err != nil {
		return nil, err
	}
	return p.Decode(ctx, data, names, params)
}

// readAllLimited copies r until EOF, the limit or a cancelled context.
func readAllLimited(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if limit > 0 && int64(out.Len()) > limit {
			return nil, ErrLimit
		}
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			// truncated deflate data is common; keep what was inflated
			if out.Len() > 0 && (errors.Is(err, io.ErrUnexpectedEOF) || isCorrupt(err)) {
				return out.Bytes(), nil
			}
			return nil, err
		}
	}
}

func isCorrupt(err error) bool {
	var ce flate.CorruptInputError
	return errors.As(err, &ce) || errors.Is(err, zlib.ErrChecksum)
}

type flateDecoder struct{ limit int64 }

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode inflates zlib data, falling back to a raw deflate stream when the
// zlib header is missing, then applies any predictor.
func (d flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()
	out, err := readAllLimited(ctx, r, d.limit)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	// odd length: the final digit is followed by an implied 0
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

// cryptDecoder handles /Crypt entries in a filter chain. Decryption has
// already happened by the time filters run, so only Identity is meaningful.
type cryptDecoder struct{}

func (cryptDecoder) Name() string { return "Crypt" }
func (cryptDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	return in, nil
}
func NewCryptDecoder() Decoder { return cryptDecoder{} }
