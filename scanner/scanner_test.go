package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/stream"
)

func newScanner(t *testing.T, data string, cfg Config) Scanner {
	t.Helper()
	return New(stream.NewBytes([]byte(data)), cfg)
}

func nextToken(t *testing.T, s Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj", Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.Is("obj") {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); !tok.Is("]") {
		t.Fatalf("expected array close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("expected Flag key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true boolean, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Null" {
		t.Fatalf("expected Null key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null value, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.Is(">>") {
		t.Fatalf("expected dict end, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.Is("endobj") {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_Numbers(t *testing.T) {
	s := newScanner(t, "-12 3.5 .25 -.5 +7 4.", Config{})
	want := []float64{-12, 3.5, .25, -.5, 7, 4}
	for _, w := range want {
		tok := nextToken(t, s)
		if tok.Type != TokenNumber || tok.Num() != w {
			t.Fatalf("expected %v, got %+v", w, tok)
		}
	}
}

func TestScanner_NameHexEscapes(t *testing.T) {
	s := newScanner(t, "/Name#20With#23Hash", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenName {
		t.Fatalf("expected name, got %+v", tok)
	}
	if tok.Str != "Name With#Hash" {
		t.Fatalf("unexpected name decode: %v", tok.Str)
	}
}

func TestScanner_LiteralStringEscapes(t *testing.T) {
	s := newScanner(t, "(Hi\\n\\050\\051\\t(nested))", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenString {
		t.Fatalf("expected string, got %+v", tok)
	}
	if !bytes.Equal(tok.Bytes, []byte("Hi\n()\t(nested)")) {
		t.Fatalf("unexpected literal string: %q", tok.Bytes)
	}
}

func TestScanner_LiteralStringLineContinuation(t *testing.T) {
	s := newScanner(t, "(Line\\\r\ncontinued)", Config{})
	tok := nextToken(t, s)
	if got := string(tok.Bytes); got != "Linecontinued" {
		t.Fatalf("unexpected literal string with continuation: %q", got)
	}
}

func TestScanner_HexStringOddLength(t *testing.T) {
	s := newScanner(t, "<48656c6c6f3>", Config{})
	tok := nextToken(t, s)
	want := []byte("Hello0")
	if tok.Type != TokenString || !tok.Hex || !bytes.Equal(tok.Bytes, want) {
		t.Fatalf("expected padded hex string %q, got %+v", want, tok)
	}
}

func TestScanner_ReferenceDetection(t *testing.T) {
	s := newScanner(t, "12 5 R %comment\n", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenRef {
		t.Fatalf("expected ref, got %+v", tok)
	}
	if tok.Int != 12 || tok.Gen != 5 {
		t.Fatalf("unexpected ref value: %+v", tok)
	}
}

func TestScanner_NotAReference(t *testing.T) {
	s := newScanner(t, "12 5 RG 7 0 obj", Config{})
	for _, want := range []string{"12", "5", "RG", "7", "0", "obj"} {
		tok := nextToken(t, s)
		got := tok.Str
		if tok.Type == TokenNumber {
			got = strconv.FormatInt(tok.Int, 10)
		}
		if got != want {
			t.Fatalf("expected %q, got %+v", want, tok)
		}
	}
}

func TestScanner_MalformedObjKeyword(t *testing.T) {
	s := newScanner(t, "5 0 obj1234", Config{})
	nextToken(t, s)
	nextToken(t, s)
	if tok := nextToken(t, s); !tok.Is("obj1234") {
		t.Fatalf("expected obj1234 keyword, got %+v", tok)
	}
}

func TestScanner_PositionAndSeek(t *testing.T) {
	s := newScanner(t, "xref\n0 1\ntrailer", Config{})
	tok := nextToken(t, s)
	if !tok.Is("xref") || tok.Pos != 0 {
		t.Fatalf("unexpected %+v", tok)
	}
	if s.Position() != 4 {
		t.Fatalf("position %d", s.Position())
	}
	if err := s.Seek(9); err != nil {
		t.Fatal(err)
	}
	if tok = nextToken(t, s); !tok.Is("trailer") || tok.Pos != 9 {
		t.Fatalf("unexpected %+v", tok)
	}
	if err := s.Seek(100); err == nil {
		t.Fatal("expected seek out of range")
	}
}

func TestScanner_MissingDataRewinds(t *testing.T) {
	data := []byte("/Alpha 123 456 R (tail)")
	src := stream.NewChunked(int64(len(data)), 8)
	if err := src.OnReceiveData(0, data[:8]); err != nil {
		t.Fatal(err)
	}
	s := New(stream.New(src), Config{})
	tok := nextToken(t, s)
	if tok.Str != "Alpha" {
		t.Fatalf("unexpected %+v", tok)
	}
	pos := s.Position()
	_, err := s.Next()
	if !stream.IsMissingData(err) {
		t.Fatalf("expected missing data, got %v", err)
	}
	if s.Position() != pos {
		t.Fatalf("position moved from %d to %d on fault", pos, s.Position())
	}
	if err := src.OnReceiveData(8, data[8:16]); err != nil {
		t.Fatal(err)
	}
	if err := src.OnReceiveData(16, data[16:]); err != nil {
		t.Fatal(err)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenRef || tok.Int != 123 || tok.Gen != 456 {
		t.Fatalf("unexpected %+v", tok)
	}
	if tok = nextToken(t, s); string(tok.Bytes) != "tail" {
		t.Fatalf("unexpected %+v", tok)
	}
}

func TestScanner_MaxStringLength(t *testing.T) {
	s := newScanner(t, "<000102>", Config{MaxStringLength: 2})
	if _, err := s.Next(); err == nil || !strings.Contains(err.Error(), "hex string too long") {
		t.Fatalf("expected hex string too long error, got %v", err)
	}
}

func TestScanner_MaxLiteralStringLength(t *testing.T) {
	s := newScanner(t, "(abcdef)", Config{MaxStringLength: 3})
	if _, err := s.Next(); err == nil || !strings.Contains(err.Error(), "literal string too long") {
		t.Fatalf("expected literal string too long error, got %v", err)
	}
}

func TestScanner_UnterminatedLiteralString(t *testing.T) {
	s := newScanner(t, "(abc", Config{})
	if _, err := s.Next(); err == nil || !strings.Contains(err.Error(), "unterminated literal string") {
		t.Fatalf("expected unterminated literal string error, got %v", err)
	}
}

func TestScanner_UnterminatedHexString(t *testing.T) {
	s := newScanner(t, "<abc", Config{})
	if _, err := s.Next(); err == nil || !strings.Contains(err.Error(), "unterminated hex string") {
		t.Fatalf("expected unterminated hex string error, got %v", err)
	}
}

type fixRecovery struct{}

func (f *fixRecovery) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	return recovery.ActionFix
}

func TestScanner_FixUnterminatedLiteralString(t *testing.T) {
	s := newScanner(t, "(abc", Config{Recovery: &fixRecovery{}})
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("expected recovery to continue, got %v", err)
	}
	if tok.Type != TokenString || string(tok.Bytes) != "abc" {
		t.Fatalf("unexpected token after recovery: %+v", tok)
	}
}

func TestScanner_FixUnterminatedHexString(t *testing.T) {
	s := newScanner(t, "<4142", Config{Recovery: &fixRecovery{}})
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("expected recovery to continue, got %v", err)
	}
	if tok.Type != TokenString || string(tok.Bytes) != "AB" {
		t.Fatalf("unexpected token after recovery: %+v", tok)
	}
}

type recordRecovery struct {
	loc recovery.Location
	err error
}

func (r *recordRecovery) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	r.loc = loc
	r.err = err
	return recovery.ActionWarn
}

func TestScanner_RecoveryContextIncludesObject(t *testing.T) {
	rec := &recordRecovery{}
	s := newScanner(t, "<abc", Config{Recovery: rec})
	if rc, ok := s.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
		rc.SetRecoveryLocation(recovery.Location{ObjectNum: 5, ObjectGen: 2, Component: "parser"})
	}
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected unterminated hex string error")
	}
	if rec.loc.ObjectNum != 5 || rec.loc.ObjectGen != 2 {
		t.Fatalf("expected object context 5 2, got %+v", rec.loc)
	}
	if !strings.Contains(rec.loc.Component, "scanner:hex") {
		t.Fatalf("expected component to include scanner:hex, got %q", rec.loc.Component)
	}
}
