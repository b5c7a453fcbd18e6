package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the zero reference, which never names a
// real indirect object (object 0 is always free).
func (r ObjectRef) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Object is the closed set of raw PDF values: NullObj, BoolObj, NumberObj,
// StringObj, NameObj, *ArrayObj, *DictObj, RefObj and *StreamObj.
type Object interface {
	Type() string
	IsIndirect() bool
	isObject()
}

// Fetcher resolves indirect references. The xref resolver implements it;
// dictionaries hold one so their accessors can follow a single reference.
type Fetcher interface {
	Fetch(ref ObjectRef) (Object, error)
}

// Transform decrypts strings and streams belonging to one indirect object.
type Transform interface {
	DecryptString(b []byte) ([]byte, error)
	DecryptStream(b []byte) ([]byte, error)
}

// RefSet marks references already visited during a traversal.
type RefSet map[ObjectRef]struct{}

func NewRefSet(refs ...ObjectRef) RefSet {
	s := make(RefSet, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

func (s RefSet) Has(r ObjectRef) bool { _, ok := s[r]; return ok }
func (s RefSet) Put(r ObjectRef)      { s[r] = struct{}{} }
func (s RefSet) Remove(r ObjectRef)   { delete(s, r) }
func (s RefSet) Len() int             { return len(s) }

// Refs returns the members ordered by object number then generation.
func (s RefSet) Refs() []ObjectRef {
	out := make([]ObjectRef, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].Gen < out[j].Gen
	})
	return out
}

// RefCache memoizes resolved objects. Entries leave only through Clear.
type RefCache struct {
	m map[ObjectRef]Object
}

func NewRefCache() *RefCache { return &RefCache{m: make(map[ObjectRef]Object)} }

func (c *RefCache) Get(r ObjectRef) (Object, bool) {
	o, ok := c.m[r]
	return o, ok
}

func (c *RefCache) Has(r ObjectRef) bool { _, ok := c.m[r]; return ok }

func (c *RefCache) Put(r ObjectRef, o Object) {
	if c.m == nil {
		c.m = make(map[ObjectRef]Object)
	}
	c.m[r] = o
}

func (c *RefCache) Len() int { return len(c.m) }
func (c *RefCache) Clear()   { c.m = make(map[ObjectRef]Object) }
