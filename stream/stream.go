package stream

import (
	"errors"
	"io"
)

// Stream is a positioned view over a Source restricted to [start, end).
// Several streams may share one Source; each carries its own read position.
type Stream struct {
	src    Source
	start  int64
	end    int64
	pos    int64
	win    []byte
	winOff int64
}

// New returns a stream covering the whole source.
func New(src Source) *Stream {
	return &Stream{src: src, end: src.Len()}
}

// NewBytes wraps an in-memory buffer.
func NewBytes(b []byte) *Stream { return New(Memory(b)) }

func (s *Stream) Source() Source { return s.src }
func (s *Stream) Start() int64   { return s.start }
func (s *Stream) End() int64     { return s.end }
func (s *Stream) Length() int64  { return s.end - s.start }
func (s *Stream) Pos() int64     { return s.pos }

// SetPos moves the read position; it is clamped to the stream bounds.
func (s *Stream) SetPos(pos int64) {
	if pos < s.start {
		pos = s.start
	}
	if pos > s.end {
		pos = s.end
	}
	s.pos = pos
}

func (s *Stream) Skip(n int64) { s.SetPos(s.pos + n) }

// IsDataLoaded reports whether every byte of the view is available.
func (s *Stream) IsDataLoaded() bool { return s.src.IsRangeLoaded(s.start, s.end) }

func (s *Stream) byteAt(p int64) (byte, error) {
	if p >= s.end {
		return 0, io.EOF
	}
	if p >= s.winOff && p < s.winOff+int64(len(s.win)) {
		return s.win[p-s.winOff], nil
	}
	w, err := s.src.Window(p)
	if err != nil {
		return 0, err
	}
	if max := s.end - p; int64(len(w)) > max {
		w = w[:max]
	}
	s.win, s.winOff = w, p
	return w[0], nil
}

// ReadByte returns the next byte, io.EOF at the end of the view, or
// *MissingDataError when the byte has not arrived yet.
func (s *Stream) ReadByte() (byte, error) {
	c, err := s.byteAt(s.pos)
	if err != nil {
		return 0, err
	}
	s.pos++
	return c, nil
}

// PeekByte returns the next byte without advancing.
func (s *Stream) PeekByte() (byte, error) { return s.byteAt(s.pos) }

// PeekAt returns the byte at pos+n without advancing.
func (s *Stream) PeekAt(n int64) (byte, error) { return s.byteAt(s.pos + n) }

// GetBytes reads up to n bytes (all remaining bytes when n <= 0). The whole
// range is checked for availability before anything is consumed.
func (s *Stream) GetBytes(n int) ([]byte, error) {
	end := s.end
	if n > 0 && s.pos+int64(n) < end {
		end = s.pos + int64(n)
	}
	out, err := s.readRange(s.pos, end)
	if err != nil {
		return nil, err
	}
	s.pos = end
	return out, nil
}

// PeekBytes is GetBytes without advancing.
func (s *Stream) PeekBytes(n int) ([]byte, error) {
	pos := s.pos
	out, err := s.GetBytes(n)
	s.pos = pos
	return out, err
}

// Bytes returns a copy of the whole view regardless of the read position.
func (s *Stream) Bytes() ([]byte, error) { return s.readRange(s.start, s.end) }

func (s *Stream) readRange(begin, end int64) ([]byte, error) {
	if begin >= end {
		return []byte{}, nil
	}
	if err := s.src.EnsureRange(begin, end); err != nil {
		return nil, err
	}
	out := make([]byte, 0, end-begin)
	for p := begin; p < end; {
		w, err := s.src.Window(p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if rest := end - p; int64(len(w)) > rest {
			w = w[:rest]
		}
		out = append(out, w...)
		p += int64(len(w))
	}
	return out, nil
}

// SubStream returns a new view starting at the absolute offset start.
// A negative length extends the view to the end of the parent.
func (s *Stream) SubStream(start, length int64) *Stream {
	end := s.end
	if length >= 0 && start+length < end {
		end = start + length
	}
	if start > end {
		start = end
	}
	return &Stream{src: s.src, start: start, end: end, pos: start}
}

// Clone returns a fresh view over the same bytes with the position reset.
func (s *Stream) Clone() *Stream {
	return &Stream{src: s.src, start: s.start, end: s.end, pos: s.start}
}

// Find searches forward from the current position for needle, scanning at
// most limit bytes (all remaining when limit <= 0). On success the position
// is left at the start of the match.
func (s *Stream) Find(needle []byte, limit int64) (bool, error) {
	end := s.end
	if limit > 0 && s.pos+limit < end {
		end = s.pos + limit
	}
	for p := s.pos; p+int64(len(needle)) <= end; p++ {
		match := true
		for i := range needle {
			c, err := s.byteAt(p + int64(i))
			if err != nil {
				return false, err
			}
			if c != needle[i] {
				match = false
				break
			}
		}
		if match {
			s.pos = p
			return true, nil
		}
	}
	return false, nil
}

// FindBackward searches [pos-limit, pos) for the last occurrence of needle.
func (s *Stream) FindBackward(needle []byte, limit int64) (bool, error) {
	begin := s.start
	if limit > 0 && s.pos-limit > begin {
		begin = s.pos - limit
	}
	for p := s.pos - int64(len(needle)); p >= begin; p-- {
		match := true
		for i := range needle {
			c, err := s.byteAt(p + int64(i))
			if err != nil {
				return false, err
			}
			if c != needle[i] {
				match = false
				break
			}
		}
		if match {
			s.pos = p
			return true, nil
		}
	}
	return false, nil
}
