package scanner

import (
	"testing"

	"github.com/wudi/pdfxref/stream"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page >>"))
	f.Add([]byte("[ 1 2 3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello World)"))
	f.Add([]byte("<AABBCC>"))
	f.Add([]byte("1 0 R 2 0 obj1234"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(stream.NewBytes(data), Config{MaxStringLength: 1024})
		for i := 0; i <= len(data); i++ {
			before := s.Position()
			_, err := s.Next()
			if err != nil {
				break
			}
			if s.Position() <= before {
				t.Fatalf("scanner did not advance at %d", before)
			}
		}
	})
}
