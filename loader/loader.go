// Package loader prefetches the byte ranges an object subgraph depends on,
// so that later synchronous fetches of the subgraph cannot fault.
package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/stream"
)

// Resolver is the part of the cross-reference table the loader walks with.
// Fetch must report unavailable bytes as a *stream.MissingDataError.
type Resolver interface {
	Fetch(ref raw.ObjectRef) (raw.Object, error)
	Stream() *stream.Stream
}

// Config controls an ObjectLoader. Requester is required for any document
// that is not fully loaded.
type Config struct {
	Requester stream.Requester
	Logger    observability.Logger
	Tracer    observability.Tracer
}

// Stats describes the work done by the last Load.
type Stats struct {
	Passes   int
	Ranges   int
	Deferred int
}

// ObjectLoader walks the members of a root object selected by key.
type ObjectLoader struct {
	r      Resolver
	root   raw.Object
	keys   []string
	cfg    Config
	log    observability.Logger
	tracer observability.Tracer
	refs   raw.RefSet
	stats  Stats
}

// New prepares a loader for the values of keys in root. root is usually a
// dictionary or stream; other objects have no members and load trivially.
func New(r Resolver, root raw.Object, keys []string, cfg Config) *ObjectLoader {
	l := &ObjectLoader{r: r, root: root, keys: keys, cfg: cfg, log: cfg.Logger, tracer: cfg.Tracer}
	if l.log == nil {
		l.log = observability.NopLogger{}
	}
	if l.tracer == nil {
		l.tracer = observability.NopTracer()
	}
	return l
}

func (l *ObjectLoader) Stats() Stats { return l.stats }

// Load returns once every object reachable from the selected members, and
// the data of every stream among them, is available locally.
func (l *ObjectLoader) Load(ctx context.Context) (err error) {
	ctx, span := l.tracer.StartSpan(ctx, observability.SpanLoadGraph)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.SetTag("passes", l.stats.Passes)
		span.SetTag("ranges", l.stats.Ranges)
		span.Finish()
	}()

	l.stats = Stats{}
	if l.r.Stream().IsDataLoaded() {
		return nil
	}
	var dict *raw.DictObj
	switch v := l.root.(type) {
	case *raw.DictObj:
		dict = v
	case *raw.StreamObj:
		dict = v.Dict
	}
	if dict == nil {
		return nil
	}
	var nodes []raw.Object
	for _, k := range l.keys {
		if v, ok := dict.Raw(k); ok {
			nodes = append(nodes, v)
		}
	}
	l.refs = raw.NewRefSet()
	defer func() { l.refs = nil }()
	return l.walk(ctx, nodes)
}

func (l *ObjectLoader) walk(ctx context.Context, nodes []raw.Object) error {
	var last []stream.Range
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.stats.Passes++
		revisit, pending, err := l.pass(nodes)
		if err != nil {
			return l.requestAll(ctx, err)
		}
		if len(pending) == 0 {
			return nil
		}
		if l.cfg.Requester == nil {
			return &stream.MissingDataError{Begin: pending[0].Begin, End: pending[0].End}
		}
		if slices.Equal(pending, last) {
			return fmt.Errorf("%w: %d ranges", stream.ErrNoProgress, len(pending))
		}
		l.stats.Ranges += len(pending)
		l.stats.Deferred += len(revisit)
		l.log.Debug("requesting ranges for object graph",
			observability.Int("ranges", len(pending)),
			observability.Int("deferred", len(revisit)))
		if err := l.cfg.Requester.RequestRanges(ctx, pending); err != nil {
			return err
		}
		for _, n := range revisit {
			if ref, ok := raw.IsRef(n); ok {
				l.refs.Remove(ref)
			}
		}
		nodes, last = revisit, pending
	}
}

// pass visits nodes depth first. Nodes blocked on missing bytes come back
// in revisit together with the ranges they wait for.
func (l *ObjectLoader) pass(nodes []raw.Object) (revisit []raw.Object, pending []stream.Range, err error) {
	for len(nodes) > 0 {
		node := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]

		if ref, ok := raw.IsRef(node); ok {
			if l.refs.Has(ref) {
				continue
			}
			l.refs.Put(ref)
			obj, ferr := l.r.Fetch(ref)
			if ferr != nil {
				md, ok := stream.AsMissingData(ferr)
				if !ok {
					return nil, nil, ferr
				}
				revisit = append(revisit, node)
				pending = append(pending, stream.Range{Begin: md.Begin, End: md.End})
				continue
			}
			node = obj
		}
		if s, ok := raw.AsStream(node); ok && !s.IsDataLoaded() {
			revisit = append(revisit, node)
			pending = append(pending, s.ByteRange())
		}
		nodes = appendChildren(nodes, node)
	}
	return revisit, pending, nil
}

// requestAll gives up on walking after an error other than missing data
// and loads the remaining file instead.
func (l *ObjectLoader) requestAll(ctx context.Context, cause error) error {
	l.log.Warn("object graph walk failed, requesting all data", observability.Error("error", cause))
	switch req := l.cfg.Requester.(type) {
	case nil:
		return cause
	case interface{ RequestAll(context.Context) error }:
		return req.RequestAll(ctx)
	default:
		if err := req.RequestRange(ctx, 0, l.r.Stream().Length()); err != nil {
			return errors.Join(cause, err)
		}
		return nil
	}
}

func mayHaveChildren(o raw.Object) bool {
	switch o.(type) {
	case raw.RefObj, *raw.DictObj, *raw.ArrayObj, *raw.StreamObj:
		return true
	}
	return false
}

func appendChildren(nodes []raw.Object, node raw.Object) []raw.Object {
	var values []raw.Object
	switch v := node.(type) {
	case *raw.DictObj:
		values = dictValues(v)
	case *raw.StreamObj:
		values = dictValues(v.Dict)
	case *raw.ArrayObj:
		if v != nil {
			values = v.Items
		}
	}
	for _, o := range values {
		if mayHaveChildren(o) {
			nodes = append(nodes, o)
		}
	}
	return nodes
}

func dictValues(d *raw.DictObj) []raw.Object {
	if d == nil {
		return nil
	}
	keys := d.Keys()
	out := make([]raw.Object, 0, len(keys))
	for _, k := range keys {
		if v, ok := d.Raw(k); ok {
			out = append(out, v)
		}
	}
	return out
}
