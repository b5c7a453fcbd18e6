package document

import (
	"context"
	"strconv"

	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/stream"
)

// Info is the document information dictionary plus a few facts about the
// file itself.
type Info struct {
	FormatVersion string
	Linearized    bool
	Encrypted     bool
	// EncryptFilter is the /Filter of the encryption dictionary.
	EncryptFilter string
	Language      string

	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate string
	ModDate      string
	Trapped      string
	// Custom holds any other entry with a string, number, boolean or name
	// value, rendered as text.
	Custom map[string]string
}

// Info reads the trailer /Info dictionary. Values of the wrong type are
// skipped with a warning.
func (d *Document) Info(ctx context.Context) (*Info, error) {
	info := &Info{
		FormatVersion: d.Version(),
		Linearized:    d.lin != nil,
	}
	trailer := d.xref.Trailer()
	if enc, err := d.xref.FetchIfRefAsync(ctx, trailer.KV["Encrypt"]); err != nil {
		return nil, err
	} else if ed, ok := raw.AsDict(enc); ok {
		info.Encrypted = true
		info.EncryptFilter, _ = raw.AsName(ed.KV["Filter"])
	}
	if lang, err := d.xref.FetchIfRefAsync(ctx, d.catalog.Dict().KV["Lang"]); err != nil {
		return nil, err
	} else if b, ok := raw.AsString(lang); ok {
		info.Language = raw.DecodeText(b)
	}

	obj, err := d.xref.FetchIfRefAsync(ctx, trailer.KV["Info"])
	if err != nil {
		if stream.IsMissingData(err) {
			return nil, err
		}
		d.log.Info("the document information dictionary is invalid", observability.Error("error", err))
		return info, nil
	}
	dict, ok := raw.AsDict(obj)
	if !ok {
		return info, nil
	}
	fields := map[string]*string{
		"Title":        &info.Title,
		"Author":       &info.Author,
		"Subject":      &info.Subject,
		"Keywords":     &info.Keywords,
		"Creator":      &info.Creator,
		"Producer":     &info.Producer,
		"CreationDate": &info.CreationDate,
		"ModDate":      &info.ModDate,
	}
	for _, key := range dict.Keys() {
		v, err := d.xref.FetchIfRefAsync(ctx, dict.KV[key])
		if err != nil {
			return nil, err
		}
		if field, ok := fields[key]; ok {
			if b, ok := raw.AsString(v); ok {
				*field = raw.DecodeText(b)
				continue
			}
		} else if key == "Trapped" {
			if n, ok := raw.AsName(v); ok {
				info.Trapped = n
				continue
			}
		} else if text, ok := customValue(v); ok {
			if info.Custom == nil {
				info.Custom = make(map[string]string)
			}
			info.Custom[key] = text
			continue
		}
		d.log.Warn("bad value in Info dictionary", observability.String("key", key), observability.String("type", v.Type()))
	}
	return info, nil
}

func customValue(o raw.Object) (string, bool) {
	switch v := o.(type) {
	case raw.StringObj:
		return raw.DecodeText(v.Bytes), true
	case raw.NameObj:
		return v.Val, true
	case raw.BoolObj:
		return strconv.FormatBool(v.V), true
	case raw.NumberObj:
		if v.IsInteger() {
			return strconv.FormatInt(v.Int(), 10), true
		}
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), true
	}
	return "", false
}
