package observability

import (
	"context"
	"log/slog"
	"strconv"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

func String(key, value string) Field      { return field{key, value} }
func Int(key string, value int) Field     { return field{key, value} }
func Int64(key string, value int64) Field { return field{key, value} }
func Bool(key string, value bool) Field   { return field{key, value} }
func Error(key string, err error) Field   { return field{key, err} }

// Ref formats an object reference as "num gen R".
func Ref(key string, num, gen int) Field {
	return field{key, refString{num, gen}}
}

type refString struct{ num, gen int }

func (r refString) String() string {
	return strconv.Itoa(r.num) + " " + strconv.Itoa(r.gen) + " R"
}


type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l; a nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, attrs(fields)...) }
func (s *SlogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, attrs(fields)...) }
func (s *SlogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, attrs(fields)...) }
func (s *SlogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, attrs(fields)...) }

func (s *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{l: s.l.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v := f.Value()
		switch tv := v.(type) {
		case error:
			if tv == nil {
				v = nil
			} else {
				v = tv.Error()
			}
		case refString:
			v = tv.String()
		}
		out = append(out, slog.Any(f.Key(), v))
	}
	return out
}

// Tracer provides distributed tracing hooks for library operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Span names emitted by the library.
const (
	SpanParse      = "pdf.xref.parse"
	SpanFetch      = "pdf.xref.fetch"
	SpanLoadGraph  = "pdf.loader.load"
	SpanOpen       = "pdf.document.open"
	SpanRequestRng = "pdf.stream.request"
)
