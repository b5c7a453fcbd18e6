package catalog

import (
	"cmp"
	"context"
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
)

// maxTreeLevels bounds the descent of a keyed lookup.
const maxTreeLevels = 10

// tree is the structure shared by name trees and number trees: intermediate
// nodes hold Kids with Limits, leaves hold a flat key/value array under
// kind ("Names" or "Nums").
type tree[K cmp.Ordered] struct {
	root raw.Object
	r    Resolver
	log  observability.Logger
	kind string
	key  func(raw.Object) (K, bool)
}

// getAll collects every leaf entry. A later duplicate key replaces an
// earlier one. A kid reference met twice means the tree is not a tree.
func (t *tree[K]) getAll(ctx context.Context) (map[K]raw.Object, error) {
	out := make(map[K]raw.Object)
	if raw.IsNull(t.root) {
		return out, nil
	}
	processed := raw.NewRefSet()
	if ref, ok := raw.IsRef(t.root); ok {
		processed.Put(ref)
	}
	queue := []raw.Object{t.root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := t.r.FetchIfRefAsync(ctx, queue[0])
		queue = queue[1:]
		if err != nil {
			return nil, err
		}
		d, ok := raw.AsDict(obj)
		if !ok {
			continue
		}
		if d.Has("Kids") {
			kids, err := t.array(ctx, d, "Kids")
			if err != nil {
				return nil, err
			}
			if kids == nil {
				continue
			}
			for _, kid := range kids.Items {
				if ref, ok := raw.IsRef(kid); ok {
					if processed.Has(ref) {
						return nil, fmt.Errorf("%w: %s in %q tree", ErrInvalidDestinations, ref, t.kind)
					}
					processed.Put(ref)
				}
				queue = append(queue, kid)
			}
			continue
		}
		entries, err := t.array(ctx, d, t.kind)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			continue
		}
		for i := 0; i+1 < entries.Len(); i += 2 {
			ko, err := t.r.FetchIfRefAsync(ctx, entries.Items[i])
			if err != nil {
				return nil, err
			}
			k, ok := t.key(ko)
			if !ok {
				t.log.Warn("skipping tree entry with invalid key", observability.String("tree", t.kind), observability.String("key", typeName(ko)))
				continue
			}
			v, err := t.r.FetchIfRefAsync(ctx, entries.Items[i+1])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
	}
	return out, nil
}

// get finds key by binary search, first over the Limits of each level of
// Kids and then over the leaf entries. A miss yields nil.
func (t *tree[K]) get(ctx context.Context, key K) (raw.Object, error) {
	if raw.IsNull(t.root) {
		return nil, nil
	}
	obj, err := t.r.FetchIfRefAsync(ctx, t.root)
	if err != nil {
		return nil, err
	}
	node, ok := raw.AsDict(obj)
	if !ok {
		return nil, nil
	}
	for level := 1; node.Has("Kids"); level++ {
		if level > maxTreeLevels {
			t.log.Warn("search depth limit reached", observability.String("tree", t.kind))
			return nil, nil
		}
		kids, err := t.array(ctx, node, "Kids")
		if err != nil || kids == nil {
			return nil, err
		}
		var next *raw.DictObj
		for l, r := 0, kids.Len()-1; l <= r; {
			m := (l + r) >> 1
			ko, err := t.r.FetchIfRefAsync(ctx, kids.Items[m])
			if err != nil {
				return nil, err
			}
			kid, ok := raw.AsDict(ko)
			if !ok {
				return nil, fmt.Errorf("%w: %q tree kid is %s", ErrFormat, t.kind, typeName(ko))
			}
			lo, hi, err := t.limits(ctx, kid)
			if err != nil {
				return nil, err
			}
			switch {
			case key < lo:
				r = m - 1
			case key > hi:
				l = m + 1
			default:
				next = kid
			}
			if next != nil {
				break
			}
		}
		if next == nil {
			return nil, nil
		}
		node = next
	}

	entries, err := t.array(ctx, node, t.kind)
	if err != nil || entries == nil {
		return nil, err
	}
	// keys sit at even indices
	for l, r := 0, entries.Len()-2; l <= r; {
		m := (l + r) >> 1
		m += m & 1
		ko, err := t.r.FetchIfRefAsync(ctx, entries.Items[m])
		if err != nil {
			return nil, err
		}
		k, ok := t.key(ko)
		if !ok {
			return nil, nil
		}
		switch {
		case key < k:
			r = m - 2
		case key > k:
			l = m + 2
		default:
			return t.r.FetchIfRefAsync(ctx, entries.Items[m+1])
		}
	}
	return nil, nil
}

func (t *tree[K]) limits(ctx context.Context, kid *raw.DictObj) (lo, hi K, err error) {
	arr, err := t.array(ctx, kid, "Limits")
	if err != nil {
		return lo, hi, err
	}
	if arr == nil || arr.Len() < 2 {
		return lo, hi, fmt.Errorf("%w: %q tree node without Limits", ErrFormat, t.kind)
	}
	var bounds [2]K
	for i := range bounds {
		o, err := t.r.FetchIfRefAsync(ctx, arr.Items[i])
		if err != nil {
			return lo, hi, err
		}
		k, ok := t.key(o)
		if !ok {
			return lo, hi, fmt.Errorf("%w: invalid Limits in %q tree", ErrFormat, t.kind)
		}
		bounds[i] = k
	}
	return bounds[0], bounds[1], nil
}

func (t *tree[K]) array(ctx context.Context, d *raw.DictObj, key string) (*raw.ArrayObj, error) {
	o, ok := d.Raw(key)
	if !ok {
		return nil, nil
	}
	v, err := t.r.FetchIfRefAsync(ctx, o)
	if err != nil {
		return nil, err
	}
	a, _ := raw.AsArray(v)
	return a, nil
}

// NameTree maps byte-string keys to values.
type NameTree struct {
	t tree[string]
}

// NewNameTree reads the name tree rooted at root, which may be a reference.
func NewNameTree(root raw.Object, r Resolver, log observability.Logger) *NameTree {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &NameTree{t: tree[string]{root: root, r: r, log: log, kind: "Names", key: nameKey}}
}

func (n *NameTree) GetAll(ctx context.Context) (map[string]raw.Object, error) {
	return n.t.getAll(ctx)
}

func (n *NameTree) Get(ctx context.Context, key string) (raw.Object, error) {
	return n.t.get(ctx, key)
}

// NumberTree maps integer keys to values.
type NumberTree struct {
	t tree[int64]
}

func NewNumberTree(root raw.Object, r Resolver, log observability.Logger) *NumberTree {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &NumberTree{t: tree[int64]{root: root, r: r, log: log, kind: "Nums", key: raw.AsInt}}
}

func (n *NumberTree) GetAll(ctx context.Context) (map[int64]raw.Object, error) {
	return n.t.getAll(ctx)
}

func (n *NumberTree) Get(ctx context.Context, key int64) (raw.Object, error) {
	return n.t.get(ctx, key)
}

func nameKey(o raw.Object) (string, bool) {
	b, ok := raw.AsString(o)
	return string(b), ok
}
