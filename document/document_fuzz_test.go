package document_test

import (
	"context"
	"testing"

	"github.com/wudi/pdfxref/document"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/stream"
)

func FuzzOpen(f *testing.F) {
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))
	f.Add(finish(writeDoc(""), "/Root 1 0 R"))
	f.Add([]byte("%PDF-1.4\ntrailer\n<< /Root 1 0 R >>\nstartxref\n9\n%%EOF"))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, strategy := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy()} {
			doc, err := document.Open(context.Background(), stream.Memory(data), document.Config{Recovery: strategy})
			if err != nil {
				continue
			}
			_, _ = doc.Catalog().NumPages(context.Background())
			_, _ = doc.Catalog().DocumentOutline(context.Background())
		}
	})
}
