package xref

import "fmt"

type EntryKind int

const (
	Free EntryKind = iota
	Uncompressed
	Compressed
)

func (k EntryKind) String() string {
	switch k {
	case Free:
		return "free"
	case Uncompressed:
		return "uncompressed"
	case Compressed:
		return "compressed"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// Entry is one cross-reference record. For Compressed entries Offset is the
// object number of the containing object stream and Gen is the index of the
// object within it.
type Entry struct {
	Offset int64
	Gen    int
	Kind   EntryKind
}

func (e Entry) String() string {
	return fmt.Sprintf("%010d %05d %s", e.Offset, e.Gen, e.Kind)
}

// table is the object number index. Entries are never overwritten: the first
// section parsed is the newest one in the file.
type table struct {
	entries map[int]Entry
}

func newTable() *table { return &table{entries: make(map[int]Entry)} }

// add stores e unless num already has an entry and reports whether it did.
func (t *table) add(num int, e Entry) bool {
	if _, ok := t.entries[num]; ok {
		return false
	}
	t.entries[num] = e
	return true
}

// set overwrites unconditionally. Only the recovery scan uses it.
func (t *table) set(num int, e Entry) { t.entries[num] = e }

func (t *table) get(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

func (t *table) reset() { t.entries = make(map[int]Entry) }

func (t *table) len() int { return len(t.entries) }
