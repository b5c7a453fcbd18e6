package catalog

import (
	"context"
	"math"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
)

// OutlineItem is one bookmark.
type OutlineItem struct {
	Title string
	// Dest is a named destination (name or string) or an explicit
	// destination array.
	Dest raw.Object
	URL  string
	// Action is the name of a Named action such as NextPage.
	Action string
	Color  [3]uint8
	// Count is nil when the item has no integer Count.
	Count  *int
	Bold   bool
	Italic bool
	Items  []*OutlineItem
}

// DocumentOutline reads the outline tree breadth first. References already
// queued are not queued again, so First/Next cycles end the walk instead of
// repeating items. It returns nil when the document has no outline.
func (c *Catalog) DocumentOutline(ctx context.Context) ([]*OutlineItem, error) {
	outlines, err := c.getDict(ctx, c.dict, "Outlines")
	if err != nil || outlines == nil {
		return nil, err
	}
	first, ok := outlines.GetRef("First")
	if !ok {
		return nil, nil
	}

	type queued struct {
		ref    raw.ObjectRef
		parent *OutlineItem
	}
	root := &OutlineItem{}
	processed := raw.NewRefSet(first)
	queue := []queued{{ref: first, parent: root}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := queue[0]
		queue = queue[1:]
		obj, err := c.r.FetchAsync(ctx, q.ref)
		if err != nil {
			return nil, err
		}
		d, ok := raw.AsDict(obj)
		if !ok {
			continue
		}
		if !d.Has("Title") {
			c.log.Warn("invalid outline item", observability.Ref("ref", q.ref.Num, q.ref.Gen))
		}
		item, err := c.outlineItem(ctx, d)
		if err != nil {
			return nil, err
		}
		q.parent.Items = append(q.parent.Items, item)

		if ref, ok := d.GetRef("First"); ok && !processed.Has(ref) {
			processed.Put(ref)
			queue = append(queue, queued{ref: ref, parent: item})
		}
		if ref, ok := d.GetRef("Next"); ok && !processed.Has(ref) {
			processed.Put(ref)
			queue = append(queue, queued{ref: ref, parent: q.parent})
		}
	}
	if len(root.Items) == 0 {
		return nil, nil
	}
	return root.Items, nil
}

func (c *Catalog) outlineItem(ctx context.Context, d *raw.DictObj) (*OutlineItem, error) {
	item := &OutlineItem{}
	title, err := c.get(ctx, d, "Title")
	if err != nil {
		return nil, err
	}
	if b, ok := raw.AsString(title); ok {
		item.Title = raw.DecodeText(b)
	}
	if err := c.parseDestDictionary(ctx, d, item); err != nil {
		return nil, err
	}
	flags, err := c.get(ctx, d, "F")
	if err != nil {
		return nil, err
	}
	if f, ok := raw.AsInt(flags); ok {
		item.Bold = f&2 != 0
		item.Italic = f&1 != 0
	}
	count, err := c.get(ctx, d, "Count")
	if err != nil {
		return nil, err
	}
	if n, ok := raw.AsInt(count); ok {
		v := int(n)
		item.Count = &v
	}
	color, err := c.getArray(ctx, d, "C")
	if err != nil {
		return nil, err
	}
	item.Color = rgbColor(color)
	return item, nil
}

// parseDestDictionary fills the target of an outline item from its Dest
// entry or, failing that, from a GoTo, URI or Named action.
func (c *Catalog) parseDestDictionary(ctx context.Context, d *raw.DictObj, item *OutlineItem) error {
	dest, err := c.get(ctx, d, "Dest")
	if err != nil {
		return err
	}
	if dest != nil && !raw.IsNull(dest) {
		item.Dest = dest
		return nil
	}
	action, err := c.getDict(ctx, d, "A")
	if err != nil || action == nil {
		return err
	}
	s, err := c.get(ctx, action, "S")
	if err != nil {
		return err
	}
	kind, _ := raw.AsName(s)
	switch kind {
	case "GoTo":
		dest, err := c.get(ctx, action, "D")
		if err != nil {
			return err
		}
		item.Dest = dest
	case "URI":
		uri, err := c.get(ctx, action, "URI")
		if err != nil {
			return err
		}
		if b, ok := raw.AsString(uri); ok {
			item.URL = string(b)
		}
	case "Named":
		n, err := c.get(ctx, action, "N")
		if err != nil {
			return err
		}
		item.Action, _ = raw.AsName(n)
	default:
		c.log.Debug("unsupported outline action", observability.String("action", kind))
	}
	return nil
}

// rgbColor converts a DeviceRGB colour array. Anything else is black.
func rgbColor(arr *raw.ArrayObj) [3]uint8 {
	var out [3]uint8
	if arr == nil || arr.Len() != 3 {
		return out
	}
	for i, it := range arr.Items {
		v, ok := raw.AsNumber(it)
		if !ok || v < 0 || v > 1 {
			return [3]uint8{}
		}
		out[i] = uint8(math.Round(v * 255))
	}
	return out
}
