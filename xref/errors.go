package xref

import "errors"

var (
	// ErrXRefParse reports that the structured cross-reference data could
	// not be read. Callers may retry Parse in recovery mode.
	ErrXRefParse = errors.New("xref: cannot parse cross-reference data")
	// ErrBadXRefEntry reports an entry that does not point at the object it
	// claims to describe.
	ErrBadXRefEntry = errors.New("xref: bad cross-reference entry")
	// ErrFormat covers malformed tables, trailers and object streams.
	ErrFormat = errors.New("xref: format error")
	// ErrInvalidPDF is fatal: not even a recovery scan found a usable trailer.
	ErrInvalidPDF = errors.New("xref: invalid PDF structure")
)
