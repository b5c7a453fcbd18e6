package filters

import (
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
)

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. The returned params slice is aligned with names; filters
// without parameters get a nil entry.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj, error) {
	if dict == nil {
		return nil, nil, nil
	}
	filterObj, err := dict.Get("Filter")
	if err != nil {
		return nil, nil, err
	}
	var names []string
	switch f := filterObj.(type) {
	case nil, raw.NullObj:
		return nil, nil, nil
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			n, ok := item.(raw.NameObj)
			if !ok {
				return nil, nil, fmt.Errorf("filter entry is %s, not a name", typeOf(item))
			}
			names = append(names, n.Val)
		}
	default:
		return nil, nil, fmt.Errorf("filter is %s, not a name or array", typeOf(filterObj))
	}

	params := make([]*raw.DictObj, len(names))
	pObj, err := dict.Get("DecodeParms")
	if err != nil {
		return nil, nil, err
	}
	switch p := pObj.(type) {
	case *raw.DictObj:
		params[0] = p
	case *raw.ArrayObj:
		for i, item := range p.Items {
			if i >= len(params) {
				break
			}
			if d, ok := item.(*raw.DictObj); ok {
				params[i] = d
			}
		}
	}
	return names, params, nil
}

func typeOf(o raw.Object) string {
	if o == nil {
		return "nil"
	}
	return o.Type()
}

// intParam reads an integer decode parameter, falling back to def.
func intParam(params *raw.DictObj, key string, def int) int {
	if params == nil {
		return def
	}
	o, err := params.Get(key)
	if err != nil {
		return def
	}
	if v, ok := raw.AsInt(o); ok {
		return int(v)
	}
	return def
}
