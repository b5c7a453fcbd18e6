package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/stream"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenKeyword                  // other keywords (obj, endobj, stream, >>, ], etc.)
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenKeyword:
		return "keyword"
	case TokenEOF:
		return "eof"
	}
	return "unknown"
}

type Token struct {
	Type  TokenType
	Str   string // name or keyword text
	Bytes []byte // string payload
	Hex   bool   // string was written as <...>
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation of a TokenRef; Int holds the object number
	Pos   int64
}

// Num returns the numeric value regardless of representation.
func (t Token) Num() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

// Is reports whether t is the keyword kw.
func (t Token) Is(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	Stream() *stream.Stream
}

type Config struct {
	MaxStringLength int64
	Recovery        recovery.Strategy
}

// pdfScanner tokenizes directly from a stream.Stream. A token is read
// atomically: if the stream faults with missing data partway through, the
// position is restored to the token start so the call can be repeated.
type pdfScanner struct {
	s      *stream.Stream
	cfg    Config
	recLoc recovery.Location
}

func New(s *stream.Stream, cfg Config) Scanner {
	return &pdfScanner{s: s, cfg: cfg}
}

func (s *pdfScanner) Stream() *stream.Stream { return s.s }
func (s *pdfScanner) Position() int64        { return s.s.Pos() }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < s.s.Start() || offset > s.s.End() {
		return errors.New("seek out of range")
	}
	s.s.SetPos(offset)
	return nil
}

func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	start := s.s.Pos()
	tok, err := s.next()
	if err != nil && stream.IsMissingData(err) {
		s.s.SetPos(start)
	}
	return tok, err
}

func (s *pdfScanner) next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{Type: TokenEOF, Pos: s.s.Pos()}, io.EOF
		}
		return Token{}, err
	}
	start := s.s.Pos()
	c, err := s.s.PeekByte()
	if err != nil {
		return Token{}, err
	}
	switch c {
	case '<':
		n, err := s.peekAt(1)
		if err != nil {
			return Token{}, err
		}
		if n == '<' {
			s.s.Skip(2)
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		n, err := s.peekAt(1)
		if err != nil {
			return Token{}, err
		}
		if n == '>' {
			s.s.Skip(2)
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.s.Skip(1)
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.s.Skip(1)
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.s.Skip(1)
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '{', '}', ')':
		s.s.Skip(1)
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

// peekAt returns the byte n positions ahead, or 0 at end of stream.
func (s *pdfScanner) peekAt(n int64) (byte, error) {
	c, err := s.s.PeekAt(n)
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return c, err
}

func (s *pdfScanner) skipWSAndComments() error {
	for {
		c, err := s.s.PeekByte()
		if err != nil {
			return err
		}
		if isWhitespace(c) {
			s.s.Skip(1)
			continue
		}
		if c == '%' {
			for {
				s.s.Skip(1)
				c, err = s.s.PeekByte()
				if err != nil {
					return err
				}
				if isEOL(c) {
					break
				}
			}
			continue
		}
		return nil
	}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.s.Pos()
	s.s.Skip(1)
	var out bytes.Buffer
	for {
		c, err := s.s.PeekByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if isDelimiter(c) {
			break
		}
		s.s.Skip(1)
		if c == '#' {
			a, err := s.peekAt(0)
			if err != nil {
				return Token{}, err
			}
			b, err := s.peekAt(1)
			if err != nil {
				return Token{}, err
			}
			if isHex(a) && isHex(b) {
				s.s.Skip(2)
				out.WriteByte(fromHex(a)<<4 | fromHex(b))
				continue
			}
		}
		out.WriteByte(c)
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.s.Pos()
	s.s.Skip(1)
	var buf bytes.Buffer
	depth := 1
loop:
	for depth > 0 {
		c, err := s.s.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Token{}, err
		}
		switch c {
		case '\\':
			esc, err := s.s.ReadByte()
			if errors.Is(err, io.EOF) {
				break loop
			}
			if err != nil {
				return Token{}, err
			}
			switch {
			case esc == '\r':
				if n, err := s.peekAt(0); err != nil {
					return Token{}, err
				} else if n == '\n' {
					s.s.Skip(1)
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2; k++ {
					d, err := s.s.PeekByte()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						return Token{}, err
					}
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.s.Skip(1)
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				continue
			}
		}
		buf.WriteByte(c)
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.s.Pos()
	s.s.Skip(1)
	var out []byte
	var hi byte
	odd := false
	closed := false
	for {
		c, err := s.s.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if c == '>' {
			closed = true
			break
		}
		if !isHex(c) {
			continue
		}
		if odd {
			out = append(out, hi<<4|fromHex(c))
		} else {
			hi = fromHex(c)
		}
		odd = !odd
		if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("hex string too long"), "hex")
		}
	}
	if odd {
		out = append(out, hi<<4)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if out == nil {
		out = []byte{}
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool { return isWhitespace(c) }

// IsDelimiter reports whether c ends a regular token.
func IsDelimiter(c byte) bool { return isDelimiter(c) }

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.s.Pos()
	var buf bytes.Buffer
	for {
		c, err := s.s.PeekByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.s.Skip(1)
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanNumberOrRef reads a number and, when it is followed by a second
// integer and 'R', folds the three into a reference token.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.s.Pos()
	num1, err := s.scanNumberString()
	if err != nil {
		return Token{}, err
	}
	if num1 == "" {
		// lone sign or dot: treat as zero like most readers do
		if err := s.recover(errors.New("invalid number"), "number"); err != nil {
			return Token{}, err
		}
		return Token{Type: TokenNumber, IsInt: true, Pos: start}, nil
	}
	tok := numberToken(num1, start)
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}

	afterFirst := s.s.Pos()
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			s.s.SetPos(afterFirst)
			return tok, nil
		}
		return Token{}, err
	}
	c, err := s.s.PeekByte()
	if err != nil {
		return Token{}, err
	}
	if c < '0' || c > '9' {
		s.s.SetPos(afterFirst)
		return tok, nil
	}
	num2, err := s.scanNumberString()
	if err != nil {
		return Token{}, err
	}
	gen, gerr := strconv.Atoi(num2)
	if gerr == nil {
		if err := s.skipWSAndComments(); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		r, err := s.s.PeekByte()
		if err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if err == nil && r == 'R' {
			follow, err := s.peekAt(1)
			if err != nil {
				return Token{}, err
			}
			if follow == 0 || isDelimiter(follow) {
				s.s.Skip(1)
				return Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: start}, nil
			}
		}
	}
	s.s.SetPos(afterFirst)
	return tok, nil
}

func numberToken(str string, pos int64) Token {
	if i, err := strconv.ParseInt(str, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: pos}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		f = parseLooseFloat(str)
	}
	return Token{Type: TokenNumber, Float: f, Pos: pos}
}

// parseLooseFloat accepts malformed numbers such as "--5" or "1.2.3" by
// keeping the leading sign and the first decimal point.
func parseLooseFloat(str string) float64 {
	neg := false
	var b []byte
	dot := false
	for i := 0; i < len(str); i++ {
		c := str[i]
		switch {
		case c == '-' && len(b) == 0:
			neg = true
		case c == '.' && !dot:
			dot = true
			b = append(b, c)
		case c >= '0' && c <= '9':
			b = append(b, c)
		}
	}
	f, _ := strconv.ParseFloat(string(b), 64)
	if neg {
		f = -f
	}
	return f
}

func (s *pdfScanner) scanNumberString() (string, error) {
	start := s.s.Pos()
	var buf bytes.Buffer
	seenDigit := false
	for {
		c, err := s.s.PeekByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.s.Skip(1)
			continue
		}
		break
	}
	if !seenDigit {
		if buf.Len() == 0 {
			s.s.SetPos(start)
		}
		return "", nil
	}
	return buf.String(), nil
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.s.Pos()
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	switch s.cfg.Recovery.OnError(nil, err, location) {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}
