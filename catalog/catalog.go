// Package catalog walks the structures hanging off the document catalog:
// the page tree, the outline, name and number trees, page labels and
// document-level JavaScript.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfxref/filters"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
)

var (
	ErrFormat              = errors.New("catalog: malformed structure")
	ErrPageNotFound        = errors.New("catalog: page index not found")
	ErrKidNotFound         = errors.New("catalog: kid reference not found in parent's kids")
	ErrCircularReference   = errors.New("catalog: circular reference")
	ErrInvalidDestinations = errors.New("catalog: duplicate entry in name tree")
)

// Resolver resolves references, requesting missing byte ranges as needed.
// *xref.XRef implements it.
type Resolver interface {
	FetchAsync(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	FetchIfRefAsync(ctx context.Context, o raw.Object) (raw.Object, error)
}

type Config struct {
	Logger observability.Logger
	// Requester loads stream bytes that have not arrived yet, such as
	// JavaScript held in streams.
	Requester stream.Requester
	Limits    security.Limits
}

// Catalog is the document catalog. Page lookups fill per-node caches, so a
// Catalog is not safe for concurrent use.
type Catalog struct {
	r    Resolver
	cfg  Config
	log  observability.Logger
	pipe *filters.Pipeline

	dict     *raw.DictObj
	pages    *raw.DictObj
	pagesRef *raw.ObjectRef

	kidsCount map[raw.ObjectRef]int
	pageIndex map[raw.ObjectRef]int
}

// New wraps the catalog dictionary root. It fails when Pages does not
// resolve to a dictionary.
func New(ctx context.Context, r Resolver, root *raw.DictObj, cfg Config) (*Catalog, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: catalog object is not a dictionary", ErrFormat)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	limits := cfg.Limits.Normalize()
	c := &Catalog{
		r:         r,
		cfg:       cfg,
		log:       cfg.Logger,
		pipe:      filters.DefaultPipeline(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize, MaxDecodeTime: limits.MaxDecodeTime}),
		dict:      root,
		kidsCount: make(map[raw.ObjectRef]int),
		pageIndex: make(map[raw.ObjectRef]int),
	}
	pages, err := c.getDict(ctx, root, "Pages")
	if err != nil {
		return nil, err
	}
	if pages == nil {
		return nil, fmt.Errorf("%w: invalid top-level pages dictionary", ErrFormat)
	}
	c.pages = pages
	if ref, ok := root.GetRef("Pages"); ok {
		c.pagesRef = &ref
	}
	return c, nil
}

// Dict is the catalog dictionary.
func (c *Catalog) Dict() *raw.DictObj { return c.dict }

// Pages is the root of the page tree.
func (c *Catalog) Pages() *raw.DictObj { return c.pages }

// NumPages returns the Count of the page tree root.
func (c *Catalog) NumPages(ctx context.Context) (int, error) {
	obj, err := c.get(ctx, c.pages, "Count")
	if err != nil {
		return 0, err
	}
	n, ok := raw.AsInt(obj)
	if !ok || n < 0 {
		return 0, fmt.Errorf("%w: page count in top-level pages dictionary is not an integer", ErrFormat)
	}
	return int(n), nil
}

// Version returns the catalog's Version entry, which overrides the header
// version when it is later. It is empty when absent.
func (c *Catalog) Version() string {
	v, _ := raw.AsName(c.dict.KV["Version"])
	return v
}

func (c *Catalog) get(ctx context.Context, d *raw.DictObj, key string) (raw.Object, error) {
	o, ok := d.Raw(key)
	if !ok {
		return nil, nil
	}
	return c.r.FetchIfRefAsync(ctx, o)
}

// getDict returns the dictionary under key; a stream yields its dictionary
// and anything else nil.
func (c *Catalog) getDict(ctx context.Context, d *raw.DictObj, key string) (*raw.DictObj, error) {
	o, err := c.get(ctx, d, key)
	if err != nil {
		return nil, err
	}
	return asDict(o), nil
}

func (c *Catalog) getArray(ctx context.Context, d *raw.DictObj, key string) (*raw.ArrayObj, error) {
	o, err := c.get(ctx, d, key)
	if err != nil {
		return nil, err
	}
	a, _ := raw.AsArray(o)
	return a, nil
}

// streamText decodes a stream's content, loading missing bytes through the
// configured requester.
func (c *Catalog) streamText(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	return stream.Ensure(ctx, c.cfg.Requester, func() ([]byte, error) {
		return c.pipe.DecodeStream(ctx, s.Clone())
	})
}

func asDict(o raw.Object) *raw.DictObj {
	switch v := o.(type) {
	case *raw.DictObj:
		return v
	case *raw.StreamObj:
		return v.Dict
	}
	return nil
}

func typeName(o raw.Object) string {
	if o == nil {
		return "nothing"
	}
	return o.Type()
}
