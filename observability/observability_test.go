package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, SpanFetch)
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.With(String("component", "xref")).Warn("bad entry",
		Ref("ref", 12, 0), Int64("offset", 345), Bool("recovery", true), Error("err", errors.New("boom")))
	out := buf.String()
	for _, want := range []string{"component=xref", `ref="12 0 R"`, "offset=345", "recovery=true", "err=boom", `msg="bad entry"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
