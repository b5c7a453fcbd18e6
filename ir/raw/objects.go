package raw

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wudi/pdfxref/stream"
)

type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }
func (NameObj) isObject()          {}

type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }
func (NumberObj) isObject()         {}

type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }
func (BoolObj) isObject()          {}

type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }
func (NullObj) isObject()          {}

type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }
func (StringObj) isObject()          {}

// Text decodes the string as a PDF text string.
func (s StringObj) Text() string { return DecodeText(s.Bytes) }

type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (*ArrayObj) isObject()          {}
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is a PDF dictionary. When it carries a Fetcher, Get follows one
// level of indirection; references found inside the resolved value are left
// for the caller.
type DictObj struct {
	KV      map[string]Object
	fetcher Fetcher
}

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }
func (*DictObj) isObject()          {}

func (d *DictObj) Fetcher() Fetcher     { return d.fetcher }
func (d *DictObj) SetFetcher(f Fetcher) { d.fetcher = f }

// Raw returns the stored value of the first present key without resolving it.
func (d *DictObj) Raw(key string, alts ...string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	if o, ok := d.KV[key]; ok {
		return o, true
	}
	for _, k := range alts {
		if o, ok := d.KV[k]; ok {
			return o, true
		}
	}
	return nil, false
}

// Get returns the value for the first present key, resolving it once if it
// is a reference. An absent key yields (nil, nil).
func (d *DictObj) Get(key string, alts ...string) (Object, error) {
	o, ok := d.Raw(key, alts...)
	if !ok {
		return nil, nil
	}
	if r, isRef := o.(RefObj); isRef && d.fetcher != nil {
		return d.fetcher.Fetch(r.R)
	}
	return o, nil
}

// GetDict is Get restricted to dictionaries; stream dictionaries are returned
// for streams. Other types yield nil.
func (d *DictObj) GetDict(key string, alts ...string) (*DictObj, error) {
	o, err := d.Get(key, alts...)
	if err != nil {
		return nil, err
	}
	switch v := o.(type) {
	case *DictObj:
		return v, nil
	case *StreamObj:
		return v.Dict, nil
	}
	return nil, nil
}

// GetArray is Get restricted to arrays.
func (d *DictObj) GetArray(key string, alts ...string) (*ArrayObj, error) {
	o, err := d.Get(key, alts...)
	if err != nil {
		return nil, err
	}
	a, _ := o.(*ArrayObj)
	return a, nil
}

// GetRef returns the stored reference for key without resolving it.
func (d *DictObj) GetRef(key string) (ObjectRef, bool) {
	o, ok := d.Raw(key)
	if !ok {
		return ObjectRef{}, false
	}
	r, ok := o.(RefObj)
	return r.R, ok
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

func (d *DictObj) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.KV[key]
	return ok
}

// Keys returns the keys in sorted order.
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// StreamObj is a stream whose bytes stay in the underlying source until
// read. Clones share the source but not the read position.
type StreamObj struct {
	Dict      *DictObj
	src       *stream.Stream
	transform Transform
}

func (s *StreamObj) Type() string     { return "stream" }
func (s *StreamObj) IsIndirect() bool { return false }
func (*StreamObj) isObject()          {}

// NewStream wraps in-memory data.
func NewStream(dict *DictObj, data []byte) *StreamObj {
	if dict == nil {
		dict = Dict()
	}
	return &StreamObj{Dict: dict, src: stream.NewBytes(data)}
}

// NewStreamView wraps a view of a larger source, as produced by the parser.
func NewStreamView(dict *DictObj, src *stream.Stream, tr Transform) *StreamObj {
	return &StreamObj{Dict: dict, src: src, transform: tr}
}

func (s *StreamObj) Stream() *stream.Stream { return s.src }
func (s *StreamObj) Start() int64           { return s.src.Start() }
func (s *StreamObj) Length() int64          { return s.src.Length() }
func (s *StreamObj) Encrypted() bool        { return s.transform != nil }

// ByteRange is the span of the source holding the encoded data.
func (s *StreamObj) ByteRange() stream.Range {
	return stream.Range{Begin: s.src.Start(), End: s.src.End()}
}

func (s *StreamObj) IsDataLoaded() bool { return s.src.IsDataLoaded() }

// RawData returns the stored bytes, still encrypted and encoded.
func (s *StreamObj) RawData() ([]byte, error) { return s.src.Bytes() }

// Data returns the stream bytes after decryption but before filters. A
// stream whose decryption fails is returned as stored, since some producers
// leave individual streams unencrypted.
func (s *StreamObj) Data() ([]byte, error) {
	b, err := s.src.Bytes()
	if err != nil || s.transform == nil {
		return b, err
	}
	if out, err := s.transform.DecryptStream(b); err == nil {
		return out, nil
	}
	return b, nil
}

// Clone returns a stream sharing dictionary and bytes with a fresh position.
func (s *StreamObj) Clone() *StreamObj {
	return &StreamObj{Dict: s.Dict, src: s.src.Clone(), transform: s.transform}
}

// Equal compares streams by location, length and dictionary identity.
func (s *StreamObj) Equal(o *StreamObj) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Start() == o.Start() && s.Length() == o.Length() && s.Dict == o.Dict
}

type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }
func (RefObj) isObject()          {}

// Helpers
func Name(v string) NameObj                { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj          { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj      { return NumberObj{F: f, IsInt: false} }
func Bool(v bool) BoolObj                  { return BoolObj{V: v} }
func Str(b []byte) StringObj               { return StringObj{Bytes: b} }
func NewArray(items ...Object) *ArrayObj   { return &ArrayObj{Items: items} }
func Dict() *DictObj                       { return &DictObj{KV: make(map[string]Object)} }
func Ref(num, gen int) RefObj              { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }
func IsNull(o Object) bool                 { _, ok := o.(NullObj); return o == nil || ok }
func IsName(o Object, name string) bool    { n, ok := o.(NameObj); return ok && n.Val == name }
func IsRef(o Object) (ObjectRef, bool)     { r, ok := o.(RefObj); return r.R, ok }
func AsDict(o Object) (*DictObj, bool)     { d, ok := o.(*DictObj); return d, ok && d != nil }
func AsArray(o Object) (*ArrayObj, bool)   { a, ok := o.(*ArrayObj); return a, ok && a != nil }
func AsStream(o Object) (*StreamObj, bool) { s, ok := o.(*StreamObj); return s, ok && s != nil }

// AsInt returns the value of an integer number. Reals are rejected.
func AsInt(o Object) (int64, bool) {
	n, ok := o.(NumberObj)
	if !ok || !n.IsInt {
		return 0, false
	}
	return n.I, true
}

// AsNumber accepts integers and reals.
func AsNumber(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func AsName(o Object) (string, bool) {
	n, ok := o.(NameObj)
	return n.Val, ok
}

func AsString(o Object) ([]byte, bool) {
	s, ok := o.(StringObj)
	return s.Bytes, ok
}

// Equal compares two objects structurally. Streams compare by location and
// dictionary; dictionaries and arrays compare element-wise without
// resolving references.
func Equal(a, b Object) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case NullObj:
		_, ok := b.(NullObj)
		return ok
	case BoolObj, NameObj, RefObj:
		return a == b
	case NumberObj:
		bv, ok := b.(NumberObj)
		return ok && av.Float() == bv.Float()
	case StringObj:
		bv, ok := b.(StringObj)
		return ok && bytes.Equal(av.Bytes, bv.Bytes)
	case *ArrayObj:
		bv, ok := b.(*ArrayObj)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *DictObj:
		bv, ok := b.(*DictObj)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for k, v := range av.KV {
			w, ok := bv.KV[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *StreamObj:
		bv, ok := b.(*StreamObj)
		return ok && av.Equal(bv)
	}
	panic(fmt.Sprintf("raw: unknown object type %T", a))
}
