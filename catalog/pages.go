package catalog

import (
	"context"
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
)

type pageNode struct {
	obj raw.Object
	ref *raw.ObjectRef // set for a dictionary reached through a reference
}

// GetPageDict returns the page at pageIndex and its reference. The reference
// is zero for a page written inline in a Kids array.
//
// The tree is walked depth first from an explicit work list. Subtrees whose
// Count shows they end before pageIndex are skipped without being fetched
// once their count is known.
func (c *Catalog) GetPageDict(ctx context.Context, pageIndex int) (*raw.DictObj, raw.ObjectRef, error) {
	if pageIndex < 0 {
		return nil, raw.ObjectRef{}, fmt.Errorf("%w: %d", ErrPageNotFound, pageIndex)
	}
	visited := raw.NewRefSet()
	if c.pagesRef != nil {
		visited.Put(*c.pagesRef)
	}
	nodes := []pageNode{{obj: c.pages, ref: c.pagesRef}}
	current := 0
	checkAllKids := false

	for len(nodes) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, raw.ObjectRef{}, err
		}
		node := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]

		if ref, ok := raw.IsRef(node.obj); ok {
			if count, known := c.kidsCount[ref]; known && current+count <= pageIndex {
				current += count
				continue
			}
			obj, err := c.r.FetchAsync(ctx, ref)
			if err != nil {
				return nil, raw.ObjectRef{}, err
			}
			if d, ok := raw.AsDict(obj); ok {
				leaf, err := c.isLeaf(ctx, d)
				if err != nil {
					return nil, raw.ObjectRef{}, err
				}
				if leaf {
					if _, known := c.kidsCount[ref]; !known {
						c.kidsCount[ref] = 1
					}
					if _, known := c.pageIndex[ref]; !known {
						c.pageIndex[ref] = current
					}
					if current == pageIndex {
						return d, ref, nil
					}
					current++
					continue
				}
			}
			// a page linked from two parents is fine, an intermediate node is not
			if visited.Has(ref) {
				return nil, raw.ObjectRef{}, fmt.Errorf("%w: page tree node %s", ErrCircularReference, ref)
			}
			visited.Put(ref)
			nodes = append(nodes, pageNode{obj: obj, ref: &ref})
			continue
		}

		d, ok := raw.AsDict(node.obj)
		if !ok {
			return nil, raw.ObjectRef{}, fmt.Errorf("%w: page tree kid is %s, not a dictionary", ErrFormat, typeName(node.obj))
		}
		countObj, err := c.get(ctx, d, "Count")
		if err != nil {
			return nil, raw.ObjectRef{}, err
		}
		count, hasCount := raw.AsInt(countObj)
		if hasCount && count >= 0 {
			if node.ref != nil {
				if _, known := c.kidsCount[*node.ref]; !known {
					c.kidsCount[*node.ref] = int(count)
				}
			}
			// an empty node somewhere means Count cannot be trusted to find
			// the page among the kids directly
			if count == 0 {
				checkAllKids = true
			}
			if current+int(count) <= pageIndex {
				current += int(count)
				continue
			}
		} else {
			hasCount = false
		}

		kids, err := c.getArray(ctx, d, "Kids")
		if err != nil {
			return nil, raw.ObjectRef{}, err
		}
		if kids == nil {
			leaf, err := c.isLeaf(ctx, d)
			if err != nil {
				return nil, raw.ObjectRef{}, err
			}
			if !leaf {
				return nil, raw.ObjectRef{}, fmt.Errorf("%w: page tree Kids is not an array", ErrFormat)
			}
			if current == pageIndex {
				var ref raw.ObjectRef
				if node.ref != nil {
					ref = *node.ref
				}
				return d, ref, nil
			}
			current++
			continue
		}

		if hasCount && !checkAllKids && int(count) == kids.Len() && kids.Len() > 0 {
			// Every kid holds exactly one page, so the target is a direct
			// child. It is queued rather than returned because some files
			// link a Pages node where a page is expected.
			nodes = []pageNode{{obj: kids.Items[pageIndex-current]}}
			current = pageIndex
			continue
		}
		for i := kids.Len() - 1; i >= 0; i-- {
			nodes = append(nodes, pageNode{obj: kids.Items[i]})
		}
	}
	return nil, raw.ObjectRef{}, fmt.Errorf("%w: %d", ErrPageNotFound, pageIndex)
}

// CountPages walks the whole page tree and returns the number of leaf pages
// it reaches. Unlike NumPages it does not trust any Count entry.
func (c *Catalog) CountPages(ctx context.Context) (int, error) {
	visited := raw.NewRefSet()
	if c.pagesRef != nil {
		visited.Put(*c.pagesRef)
	}
	nodes := []raw.Object{c.pages}
	n := 0
	for len(nodes) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		obj := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]
		if ref, ok := raw.IsRef(obj); ok {
			var err error
			if obj, err = c.r.FetchAsync(ctx, ref); err != nil {
				return 0, err
			}
			if d, ok := raw.AsDict(obj); ok {
				leaf, err := c.isLeaf(ctx, d)
				if err != nil {
					return 0, err
				}
				if leaf {
					n++
					continue
				}
			}
			if visited.Has(ref) {
				return 0, fmt.Errorf("%w: page tree node %s", ErrCircularReference, ref)
			}
			visited.Put(ref)
		}
		d, ok := raw.AsDict(obj)
		if !ok {
			return 0, fmt.Errorf("%w: page tree kid is %s, not a dictionary", ErrFormat, typeName(obj))
		}
		kids, err := c.getArray(ctx, d, "Kids")
		if err != nil {
			return 0, err
		}
		if kids == nil {
			n++
			continue
		}
		nodes = append(nodes, kids.Items...)
	}
	return n, nil
}

// isLeaf reports whether d is a page: typed /Page, or without Kids.
func (c *Catalog) isLeaf(ctx context.Context, d *raw.DictObj) (bool, error) {
	typ, err := c.get(ctx, d, "Type")
	if err != nil {
		return false, err
	}
	return raw.IsName(typ, "Page") || !d.Has("Kids"), nil
}

// GetPageIndex returns the index of the page pageRef refers to by walking
// up the Parent chain and counting the pages left of each ancestor.
func (c *Catalog) GetPageIndex(ctx context.Context, pageRef raw.ObjectRef) (int, error) {
	if i, ok := c.pageIndex[pageRef]; ok {
		return i, nil
	}
	total := 0
	seen := raw.NewRefSet()
	kidRef := pageRef
	for {
		if seen.Has(kidRef) {
			return 0, fmt.Errorf("%w: Parent chain revisits %s", ErrCircularReference, kidRef)
		}
		seen.Put(kidRef)
		count, parentRef, more, err := c.pagesBefore(ctx, kidRef, pageRef)
		if err != nil {
			return 0, err
		}
		if !more {
			c.pageIndex[pageRef] = total
			return total, nil
		}
		total += count
		kidRef = parentRef
	}
}

// pagesBefore counts the pages of kidRef's left siblings. more is false
// once kidRef has no parent.
func (c *Catalog) pagesBefore(ctx context.Context, kidRef, pageRef raw.ObjectRef) (count int, parentRef raw.ObjectRef, more bool, err error) {
	node, err := c.r.FetchAsync(ctx, kidRef)
	if err != nil {
		return 0, parentRef, false, err
	}
	d, isDict := raw.AsDict(node)
	if kidRef == pageRef && !isPageDict(d) {
		return 0, parentRef, false, fmt.Errorf("%w: %s does not point to a page dictionary", ErrFormat, pageRef)
	}
	if raw.IsNull(node) {
		return 0, parentRef, false, nil
	}
	if !isDict {
		return 0, parentRef, false, fmt.Errorf("%w: page tree node %s is %s", ErrFormat, kidRef, typeName(node))
	}
	parentObj, ok := d.Raw("Parent")
	if !ok {
		return 0, parentRef, false, nil
	}
	parent, err := c.r.FetchIfRefAsync(ctx, parentObj)
	if err != nil {
		return 0, parentRef, false, err
	}
	if raw.IsNull(parent) {
		return 0, parentRef, false, nil
	}
	pd, ok := raw.AsDict(parent)
	if !ok {
		return 0, parentRef, false, fmt.Errorf("%w: Parent of %s is %s", ErrFormat, kidRef, typeName(parent))
	}
	kids, err := c.getArray(ctx, pd, "Kids")
	if err != nil || kids == nil {
		return 0, parentRef, false, err
	}
	found := false
	for _, kid := range kids.Items {
		kr, ok := raw.IsRef(kid)
		if !ok {
			return 0, parentRef, false, fmt.Errorf("%w: kid must be a reference", ErrFormat)
		}
		if kr == kidRef {
			found = true
			break
		}
		obj, err := c.r.FetchAsync(ctx, kr)
		if err != nil {
			return 0, parentRef, false, err
		}
		kd, ok := raw.AsDict(obj)
		if !ok {
			return 0, parentRef, false, fmt.Errorf("%w: kid %s is %s", ErrFormat, kr, typeName(obj))
		}
		if kd.Has("Count") {
			n, err := c.get(ctx, kd, "Count")
			if err != nil {
				return 0, parentRef, false, err
			}
			v, _ := raw.AsInt(n)
			count += int(v)
		} else {
			count++
		}
	}
	if !found {
		return 0, parentRef, false, fmt.Errorf("%w: %s", ErrKidNotFound, kidRef)
	}
	parentRef, ok = raw.IsRef(parentObj)
	if !ok {
		return 0, parentRef, false, fmt.Errorf("%w: Parent of %s is not a reference", ErrFormat, kidRef)
	}
	return count, parentRef, true, nil
}

func isPageDict(d *raw.DictObj) bool {
	if d == nil {
		return false
	}
	if t, ok := d.KV["Type"]; ok {
		return raw.IsName(t, "Page")
	}
	return d.Has("Contents")
}
