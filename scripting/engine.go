// Package scripting runs document-level JavaScript against a read-only
// view of the document.
package scripting

import "context"

// Engine executes scripts bound to one document.
type Engine interface {
	Execute(ctx context.Context, name, script string) (interface{}, error)
	Bind(host Host) error
}

// Host is the document as scripts see it. Page indices are zero based.
type Host interface {
	NumPages() int
	// PageLabel returns the label of a page, or "" when out of range.
	PageLabel(index int) string
	// Info returns the document information entries by key.
	Info() map[string]string
	// GotoNamedDest reports whether name is a destination of the document.
	GotoNamedDest(name string) bool
	Alert(message string)
	Print(message string)
}
