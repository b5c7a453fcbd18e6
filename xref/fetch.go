package xref

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/parser"
	"github.com/wudi/pdfxref/scanner"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
)

// Fetch resolves ref. Free and unknown objects resolve to null. Results are
// cached; a cached stream is handed out as a fresh view each time.
func (x *XRef) Fetch(ref raw.ObjectRef) (raw.Object, error) {
	return x.fetch(ref, false)
}

// FetchIfRef resolves o when it is a reference and returns it otherwise.
func (x *XRef) FetchIfRef(o raw.Object) (raw.Object, error) {
	if r, ok := raw.IsRef(o); ok {
		return x.Fetch(r)
	}
	return o, nil
}

// FetchAsync is Fetch that requests missing byte ranges and retries until
// the object resolves or a real error occurs.
func (x *XRef) FetchAsync(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return stream.Ensure(ctx, x.cfg.Requester, func() (raw.Object, error) {
		return x.Fetch(ref)
	})
}

func (x *XRef) FetchIfRefAsync(ctx context.Context, o raw.Object) (raw.Object, error) {
	if r, ok := raw.IsRef(o); ok {
		return x.FetchAsync(ctx, r)
	}
	return o, nil
}

func (x *XRef) fetch(ref raw.ObjectRef, suppressEncryption bool) (raw.Object, error) {
	x.stats.Fetches++
	if obj, ok := x.cache.Get(ref); ok {
		x.stats.CacheHits++
		if s, isStream := obj.(*raw.StreamObj); isStream {
			return s.Clone(), nil
		}
		return obj, nil
	}
	e, ok := x.getEntry(ref.Num)
	if !ok {
		// not cached: an entry may still arrive from a section parsed later
		return raw.NullObj{}, nil
	}
	if x.pending.Has(ref) {
		x.log.Warn("ignoring circular reference", observability.Ref("ref", ref.Num, ref.Gen))
		return raw.NullObj{}, nil
	}
	x.pending.Put(ref)
	defer x.pending.Remove(ref)

	if e.Kind == Compressed {
		return x.fetchCompressed(ref, e)
	}
	return x.fetchUncompressed(ref, e, suppressEncryption)
}

// getEntry returns the in-use entry for num.
func (x *XRef) getEntry(num int) (Entry, bool) {
	e, ok := x.table.get(num)
	if !ok || e.Kind == Free || (e.Kind == Uncompressed && e.Offset == 0) {
		return Entry{}, false
	}
	return e, true
}

func (x *XRef) fetchUncompressed(ref raw.ObjectRef, e Entry, suppressEncryption bool) (raw.Object, error) {
	if e.Gen != ref.Gen {
		return nil, fmt.Errorf("%w: inconsistent generation for %s", ErrBadXRefEntry, ref)
	}
	if e.Offset < 0 || e.Offset >= x.stream.Length() {
		return nil, fmt.Errorf("%w: offset %d of %s out of range", ErrBadXRefEntry, e.Offset, ref)
	}
	p := parser.New(x.stream.SubStream(x.stream.Start()+e.Offset, -1), x.parserConfig(ref))
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
	if !isInt(num) || int(num.Int) != ref.Num || !isInt(gen) || int(gen.Int) != ref.Gen || kw.Type != scanner.TokenKeyword {
		return nil, fmt.Errorf("%w: %s", ErrBadXRefEntry, ref)
	}
	if kw.Str != "obj" {
		// "obj1234": some producers glue the object number to the keyword
		if strings.HasPrefix(kw.Str, "obj") {
			if n, err := strconv.Atoi(kw.Str[3:]); err == nil {
				x.log.Warn("malformed obj keyword", observability.Ref("ref", ref.Num, ref.Gen), observability.String("keyword", kw.Str))
				return raw.NumberInt(int64(n)), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrBadXRefEntry, ref)
	}

	var tr raw.Transform
	if !suppressEncryption && x.handler.IsEncrypted() && !x.isEncryptDict(ref) {
		tr = x.handler.Transform(ref.Num, ref.Gen)
	}
	obj, err := p.GetObject(tr)
	if err != nil {
		if tr != nil && errors.Is(err, security.ErrDecrypt) && !stream.IsMissingData(err) {
			x.log.Warn("decryption failed, reading object unencrypted", observability.Ref("ref", ref.Num, ref.Gen), observability.Error("error", err))
			return x.fetchUncompressed(ref, e, true)
		}
		return nil, err
	}
	x.cache.Put(ref, obj)
	if s, ok := obj.(*raw.StreamObj); ok {
		return s.Clone(), nil
	}
	return obj, nil
}

func (x *XRef) isEncryptDict(ref raw.ObjectRef) bool {
	return x.encryptRef != nil && *x.encryptRef == ref
}

func (x *XRef) fetchCompressed(ref raw.ObjectRef, e Entry) (raw.Object, error) {
	container := raw.ObjectRef{Num: int(e.Offset)}
	obj, err := x.fetch(container, false)
	if err != nil {
		return nil, err
	}
	s, ok := raw.AsStream(obj)
	if !ok {
		return nil, fmt.Errorf("%w: object stream %s is %s", ErrFormat, container, typeName(obj))
	}
	members, err := x.decodeObjStm(container.Num, s)
	if err != nil {
		return nil, err
	}
	if e.Gen < 0 || e.Gen >= len(members) {
		return nil, fmt.Errorf("%w: %s has index %d in a stream of %d objects", ErrBadXRefEntry, ref, e.Gen, len(members))
	}
	return members[e.Gen], nil
}
