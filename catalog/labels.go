package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
)

// PageLabels returns the label of every page, or nil when the document
// defines none.
func (c *Catalog) PageLabels(ctx context.Context) ([]string, error) {
	root, ok := c.dict.Raw("PageLabels")
	if !ok {
		return nil, nil
	}
	numPages, err := c.NumPages(ctx)
	if err != nil {
		return nil, err
	}
	reachable, err := c.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	if numPages > reachable {
		return nil, fmt.Errorf("%w: page count %d exceeds the %d pages in the tree", ErrFormat, numPages, reachable)
	}
	nums, err := NewNumberTree(root, c.r, c.log).GetAll(ctx)
	if err != nil {
		return nil, err
	}

	labels := make([]string, numPages)
	var (
		style, prefix string
		index         int64 = 1
	)
	for i := 0; i < numPages; i++ {
		if o, ok := nums[int64(i)]; ok {
			d, ok := raw.AsDict(o)
			if !ok {
				return nil, fmt.Errorf("%w: page label is %s, not a dictionary", ErrFormat, typeName(o))
			}
			if style, prefix, index, err = c.pageLabelDict(ctx, d); err != nil {
				return nil, err
			}
		}
		var label string
		switch style {
		case "D":
			label = strconv.FormatInt(index, 10)
		case "R", "r":
			label = romanNumerals(index, style == "r")
		case "A", "a":
			base := byte('A')
			if style == "a" {
				base = 'a'
			}
			letter := index - 1
			label = strings.Repeat(string(rune(base+byte(letter%26))), int(letter/26)+1)
		case "":
		default:
			return nil, fmt.Errorf("%w: invalid page label style %q", ErrFormat, style)
		}
		labels[i] = prefix + label
		index++
	}
	return labels, nil
}

func (c *Catalog) pageLabelDict(ctx context.Context, d *raw.DictObj) (style, prefix string, start int64, err error) {
	start = 1
	typ, err := c.get(ctx, d, "Type")
	if err != nil {
		return
	}
	if typ != nil && !raw.IsName(typ, "PageLabel") {
		return "", "", 0, fmt.Errorf("%w: invalid type in page label dictionary", ErrFormat)
	}
	if d.Has("S") {
		s, err := c.get(ctx, d, "S")
		if err != nil {
			return "", "", 0, err
		}
		var ok bool
		if style, ok = raw.AsName(s); !ok {
			return "", "", 0, fmt.Errorf("%w: invalid style in page label dictionary", ErrFormat)
		}
	}
	if d.Has("P") {
		p, err := c.get(ctx, d, "P")
		if err != nil {
			return "", "", 0, err
		}
		b, ok := raw.AsString(p)
		if !ok {
			return "", "", 0, fmt.Errorf("%w: invalid prefix in page label dictionary", ErrFormat)
		}
		prefix = raw.DecodeText(b)
	}
	if d.Has("St") {
		st, err := c.get(ctx, d, "St")
		if err != nil {
			return "", "", 0, err
		}
		n, ok := raw.AsInt(st)
		if !ok || n < 1 {
			return "", "", 0, fmt.Errorf("%w: invalid start in page label dictionary", ErrFormat)
		}
		start = n
	}
	return style, prefix, start, nil
}

var romanDigits = [3][10]string{
	{"", "C", "CC", "CCC", "CD", "D", "DC", "DCC", "DCCC", "CM"},
	{"", "X", "XX", "XXX", "XL", "L", "LX", "LXX", "LXXX", "XC"},
	{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX"},
}

func romanNumerals(n int64, lower bool) string {
	var sb strings.Builder
	for ; n >= 1000; n -= 1000 {
		sb.WriteByte('M')
	}
	sb.WriteString(romanDigits[0][n/100])
	n %= 100
	sb.WriteString(romanDigits[1][n/10])
	sb.WriteString(romanDigits[2][n%10])
	if lower {
		return strings.ToLower(sb.String())
	}
	return sb.String()
}
