package scripting

import (
	"context"
	"strconv"

	"github.com/wudi/pdfxref/catalog"
	"github.com/wudi/pdfxref/document"
	"github.com/wudi/pdfxref/observability"
)

// DocumentHost is a Host snapshot of an opened document. Everything a
// script can read is resolved up front, so scripts never fault on missing
// data.
type DocumentHost struct {
	log    observability.Logger
	pages  int
	labels []string
	info   map[string]string
	dests  map[string]bool

	// Alerts and Output collect app.alert and console.println messages.
	Alerts []string
	Output []string
	// Dest is the destination most recently passed to gotoNamedDest.
	Dest string
}

func NewDocumentHost(ctx context.Context, doc *document.Document, log observability.Logger) (*DocumentHost, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	cat := doc.Catalog()
	pages, err := cat.NumPages(ctx)
	if err != nil {
		return nil, err
	}
	labels, err := cat.PageLabels(ctx)
	if err != nil {
		log.Warn("ignoring page labels", observability.Error("error", err))
		labels = nil
	}
	info, err := doc.Info(ctx)
	if err != nil {
		return nil, err
	}
	dests, err := cat.Destinations(ctx)
	if err != nil {
		return nil, err
	}
	h := &DocumentHost{
		log:    log,
		pages:  pages,
		labels: labels,
		info:   infoMap(info),
		dests:  make(map[string]bool, len(dests)),
	}
	for name := range dests {
		h.dests[name] = true
	}
	return h, nil
}

func infoMap(info *document.Info) map[string]string {
	m := make(map[string]string, len(info.Custom)+9)
	for k, v := range info.Custom {
		m[k] = v
	}
	for k, v := range map[string]string{
		"Title":        info.Title,
		"Author":       info.Author,
		"Subject":      info.Subject,
		"Keywords":     info.Keywords,
		"Creator":      info.Creator,
		"Producer":     info.Producer,
		"CreationDate": info.CreationDate,
		"ModDate":      info.ModDate,
		"Trapped":      info.Trapped,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

func (h *DocumentHost) NumPages() int { return h.pages }

// PageLabel falls back to the one based page number when the document
// defines no labels.
func (h *DocumentHost) PageLabel(index int) string {
	if index < 0 || index >= h.pages {
		return ""
	}
	if index < len(h.labels) {
		return h.labels[index]
	}
	return strconv.Itoa(index + 1)
}

func (h *DocumentHost) Info() map[string]string { return h.info }

func (h *DocumentHost) GotoNamedDest(name string) bool {
	if !h.dests[name] {
		return false
	}
	h.Dest = name
	return true
}

func (h *DocumentHost) Alert(message string) {
	h.log.Info("script alert", observability.String("message", message))
	h.Alerts = append(h.Alerts, message)
}

func (h *DocumentHost) Print(message string) {
	h.log.Debug("script output", observability.String("message", message))
	h.Output = append(h.Output, message)
}

// Result is the outcome of one document script.
type Result struct {
	Name  string
	Value interface{}
	Err   error
}

// RunDocumentScripts executes scripts in order. A failing script is
// reported in its Result and does not stop the ones after it, unless ctx
// is done.
func RunDocumentScripts(ctx context.Context, e Engine, scripts []catalog.Script) []Result {
	out := make([]Result, 0, len(scripts))
	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			out = append(out, Result{Name: s.Name, Err: err})
			continue
		}
		v, err := e.Execute(ctx, s.Name, s.Source)
		out = append(out, Result{Name: s.Name, Value: v, Err: err})
	}
	return out
}
