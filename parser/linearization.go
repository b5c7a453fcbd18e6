package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/stream"
)

// Linearization holds the first-page parameters of a linearized file.
type Linearization struct {
	Length                int64 // L
	HintOffset            int64 // H[0]
	HintLength            int64 // H[1]
	ObjectNumberFirst     int   // O
	EndFirst              int64 // E
	NumPages              int   // N
	MainXRefEntriesOffset int64 // T
	PageFirst             int   // P, defaults to 0
}

// ErrNotLinearized is returned when the first object is not a usable
// linearization dictionary.
var ErrNotLinearized = errors.New("not linearized")

// ParseLinearization inspects the first indirect object of s. The file is
// only treated as linearized when /L matches the stream length.
func ParseLinearization(s *stream.Stream) (*Linearization, error) {
	view := s.Clone()
	p := New(view, Config{})
	num, err := p.Next()
	if err != nil {
		return nil, err
	}
	gen, err := p.Next()
	if err != nil {
		return nil, err
	}
	kw, err := p.Next()
	if err != nil {
		return nil, err
	}
	if !num.IsInt || !gen.IsInt || !kw.Is("obj") {
		return nil, ErrNotLinearized
	}
	obj, err := p.GetObject(nil)
	if err != nil {
		return nil, err
	}
	d, ok := raw.AsDict(obj)
	if !ok {
		return nil, ErrNotLinearized
	}
	if v, ok := raw.AsNumber(d.KV["Linearized"]); !ok || v <= 0 {
		return nil, ErrNotLinearized
	}

	intField := func(key string, allowZero bool) (int64, error) {
		v, ok := raw.AsInt(d.KV[key])
		if !ok || v < 0 || (v == 0 && !allowZero) {
			return 0, fmt.Errorf("%w: bad /%s in linearization dictionary", ErrNotLinearized, key)
		}
		return v, nil
	}
	lin := &Linearization{}
	if lin.Length, err = intField("L", false); err != nil {
		return nil, err
	}
	if lin.Length != s.Length() {
		return nil, fmt.Errorf("%w: /L %d does not match file length %d", ErrNotLinearized, lin.Length, s.Length())
	}
	hints, ok := raw.AsArray(d.KV["H"])
	if !ok || (hints.Len() != 2 && hints.Len() != 4) {
		return nil, fmt.Errorf("%w: bad /H", ErrNotLinearized)
	}
	for i := range hints.Items {
		if v, ok := raw.AsInt(hints.Items[i]); !ok || v < 0 {
			return nil, fmt.Errorf("%w: bad /H", ErrNotLinearized)
		}
	}
	lin.HintOffset, _ = raw.AsInt(hints.Items[0])
	lin.HintLength, _ = raw.AsInt(hints.Items[1])
	o, err := intField("O", false)
	if err != nil {
		return nil, err
	}
	lin.ObjectNumberFirst = int(o)
	if lin.EndFirst, err = intField("E", false); err != nil {
		return nil, err
	}
	n, err := intField("N", false)
	if err != nil {
		return nil, err
	}
	lin.NumPages = int(n)
	if lin.MainXRefEntriesOffset, err = intField("T", false); err != nil {
		return nil, err
	}
	if _, present := d.KV["P"]; present {
		pf, err := intField("P", true)
		if err != nil {
			return nil, err
		}
		lin.PageFirst = int(pf)
	}
	return lin, nil
}
