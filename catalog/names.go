package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
)

// readDests returns the Dests name tree of the Names dictionary, or the
// PDF 1.1 Dests dictionary of the catalog. Both are nil when neither exists.
func (c *Catalog) readDests(ctx context.Context) (*NameTree, *raw.DictObj, error) {
	names, err := c.getDict(ctx, c.dict, "Names")
	if err != nil {
		return nil, nil, err
	}
	if root, ok := names.Raw("Dests"); ok {
		return NewNameTree(root, c.r, c.log), nil, nil
	}
	dests, err := c.getDict(ctx, c.dict, "Dests")
	return nil, dests, err
}

// fetchDest unwraps a destination stored directly or under D of a
// dictionary. Anything that is not an array is no destination.
func (c *Catalog) fetchDest(ctx context.Context, o raw.Object) (*raw.ArrayObj, error) {
	if d, ok := raw.AsDict(o); ok {
		v, err := c.get(ctx, d, "D")
		if err != nil {
			return nil, err
		}
		o = v
	}
	a, _ := raw.AsArray(o)
	return a, nil
}

// Destinations returns every named destination keyed by its decoded name.
func (c *Catalog) Destinations(ctx context.Context) (map[string]*raw.ArrayObj, error) {
	out := make(map[string]*raw.ArrayObj)
	nt, dict, err := c.readDests(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case nt != nil:
		all, err := nt.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range all {
			dest, err := c.fetchDest(ctx, v)
			if err != nil {
				return nil, err
			}
			if dest != nil {
				out[raw.DecodeText([]byte(k))] = dest
			}
		}
	case dict != nil:
		for _, k := range dict.Keys() {
			v, err := c.get(ctx, dict, k)
			if err != nil {
				return nil, err
			}
			dest, err := c.fetchDest(ctx, v)
			if err != nil {
				return nil, err
			}
			if dest != nil {
				out[k] = dest
			}
		}
	}
	return out, nil
}

// GetDestination looks up one named destination. A name tree is searched
// by its Limits first; when that misses, the whole tree is scanned since
// some files store keys out of order. A miss yields nil.
func (c *Catalog) GetDestination(ctx context.Context, id string) (*raw.ArrayObj, error) {
	nt, dict, err := c.readDests(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case nt != nil:
		v, err := nt.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		dest, err := c.fetchDest(ctx, v)
		if err != nil || dest != nil {
			return dest, err
		}
		all, err := c.Destinations(ctx)
		if err != nil {
			return nil, err
		}
		if dest := all[id]; dest != nil {
			c.log.Warn("named destination found at an incorrect position in the name tree", observability.String("name", id))
			return dest, nil
		}
	case dict != nil:
		v, err := c.get(ctx, dict, id)
		if err != nil {
			return nil, err
		}
		return c.fetchDest(ctx, v)
	}
	return nil, nil
}

// Script is one document-level JavaScript action.
type Script struct {
	Name   string
	Source string
}

// JavaScript collects the JavaScript name tree, sorted by name, followed by
// a JavaScript OpenAction under the name "OpenAction".
func (c *Catalog) JavaScript(ctx context.Context) ([]Script, error) {
	var out []Script
	names, err := c.getDict(ctx, c.dict, "Names")
	if err != nil {
		return nil, err
	}
	if root, ok := names.Raw("JavaScript"); ok {
		all, err := NewNameTree(root, c.r, c.log).GetAll(ctx)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			js, err := c.javaScriptAction(ctx, all[k])
			if err != nil {
				return nil, err
			}
			if js != "" {
				out = append(out, Script{Name: raw.DecodeText([]byte(k)), Source: js})
			}
		}
	}
	open, err := c.get(ctx, c.dict, "OpenAction")
	if err != nil {
		return nil, err
	}
	js, err := c.javaScriptAction(ctx, open)
	if err != nil {
		return nil, err
	}
	if js != "" {
		out = append(out, Script{Name: "OpenAction", Source: js})
	}
	return out, nil
}

// javaScriptAction returns the script of a JavaScript action dictionary,
// empty for anything else. JS may be a string or a stream.
func (c *Catalog) javaScriptAction(ctx context.Context, o raw.Object) (string, error) {
	d, ok := raw.AsDict(o)
	if !ok {
		return "", nil
	}
	s, err := c.get(ctx, d, "S")
	if err != nil || !raw.IsName(s, "JavaScript") {
		return "", err
	}
	js, err := c.get(ctx, d, "JS")
	if err != nil {
		return "", err
	}
	var b []byte
	switch v := js.(type) {
	case raw.StringObj:
		b = v.Bytes
	case *raw.StreamObj:
		if b, err = c.streamText(ctx, v); err != nil {
			return "", err
		}
	default:
		return "", nil
	}
	return strings.ReplaceAll(raw.DecodeText(b), "\x00", ""), nil
}
