package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfxref/ir/raw"
)

// format renders o in PDF syntax. Strings that are not plain ASCII are
// written in hex, stream data is summarised by its length.
func format(o raw.Object) string {
	var sb strings.Builder
	writeObject(&sb, o)
	return sb.String()
}

func writeObject(sb *strings.Builder, o raw.Object) {
	switch v := o.(type) {
	case nil, raw.NullObj:
		sb.WriteString("null")
	case raw.BoolObj:
		sb.WriteString(strconv.FormatBool(v.V))
	case raw.NumberObj:
		if v.IsInteger() {
			sb.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(v.Float(), 'f', -1, 64))
		}
	case raw.NameObj:
		sb.WriteString("/" + v.Val)
	case raw.StringObj:
		writeString(sb, v.Bytes)
	case raw.RefObj:
		sb.WriteString(v.R.String())
	case *raw.ArrayObj:
		sb.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				sb.WriteByte(' ')
			}
			writeObject(sb, it)
		}
		sb.WriteByte(']')
	case *raw.DictObj:
		writeDict(sb, v)
	case *raw.StreamObj:
		writeDict(sb, v.Dict)
		fmt.Fprintf(sb, "\nstream ... %d bytes ... endstream", v.Length())
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

func writeDict(sb *strings.Builder, d *raw.DictObj) {
	if d == nil {
		sb.WriteString("<< >>")
		return
	}
	sb.WriteString("<<")
	for _, k := range d.Keys() {
		v, _ := d.Raw(k)
		sb.WriteString(" /" + k + " ")
		writeObject(sb, v)
	}
	sb.WriteString(" >>")
}

func writeString(sb *strings.Builder, b []byte) {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			fmt.Fprintf(sb, "<%x>", b)
			return
		}
	}
	sb.WriteByte('(')
	for _, c := range b {
		if c == '(' || c == ')' || c == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte(')')
}
