package raw

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

var (
	utf16be = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
)

// DecodeText converts a PDF text string to UTF-8. Strings starting with a
// UTF-16 or UTF-8 byte order mark are decoded accordingly; everything else
// is PDFDocEncoding. Embedded language escapes (U+001B ... U+001B) are
// dropped.
func DecodeText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		out, err := utf16be.NewDecoder().Bytes(b)
		if err == nil {
			return norm.NFC.String(stripLangEscapes(string(out)))
		}
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		out, err := utf16le.NewDecoder().Bytes(b)
		if err == nil {
			return norm.NFC.String(stripLangEscapes(string(out)))
		}
	case bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) && utf8.Valid(b[3:]):
		return string(b[3:])
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if r := pdfDocEncoding[c]; r != 0 || c == 0 {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(utf8.RuneError)
		}
	}
	return sb.String()
}

func stripLangEscapes(s string) string {
	if !strings.ContainsRune(s, 0x1B) {
		return s
	}
	var sb strings.Builder
	in := false
	for _, r := range s {
		if r == 0x1B {
			in = !in
			continue
		}
		if !in {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var pdfDocEncoding = func() [256]rune {
	var t [256]rune
	for i := 0; i < 256; i++ {
		t[i] = rune(i)
	}
	high := map[byte]rune{
		0x18: 0x02D8, 0x19: 0x02C7, 0x1A: 0x02C6, 0x1B: 0x02D9,
		0x1C: 0x02DD, 0x1D: 0x02DB, 0x1E: 0x02DA, 0x1F: 0x02DC,
		0x80: 0x2022, 0x81: 0x2020, 0x82: 0x2021, 0x83: 0x2026,
		0x84: 0x2014, 0x85: 0x2013, 0x86: 0x0192, 0x87: 0x2044,
		0x88: 0x2039, 0x89: 0x203A, 0x8A: 0x2212, 0x8B: 0x2030,
		0x8C: 0x201E, 0x8D: 0x201C, 0x8E: 0x201D, 0x8F: 0x2018,
		0x90: 0x2019, 0x91: 0x201A, 0x92: 0x2122, 0x93: 0xFB01,
		0x94: 0xFB02, 0x95: 0x0141, 0x96: 0x0152, 0x97: 0x0160,
		0x98: 0x0178, 0x99: 0x017D, 0x9A: 0x0131, 0x9B: 0x0142,
		0x9C: 0x0153, 0x9D: 0x0161, 0x9E: 0x017E, 0x9F: 0,
		0xA0: 0x20AC, 0xAD: 0,
	}
	for k, v := range high {
		t[k] = v
	}
	return t
}()
