package log

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithDonation("id1", "Ali", 10, "USD").
		WithError(nil).
		WithOperation(OpCreate)
	if _, ok := f[FieldError]; ok {
		t.Fatal("nil error should not be recorded")
	}
	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" || f[FieldDonor] != "Ali" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatal("slice should hold key/value pairs")
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentHTTP})

	h := AccessLog(logger, func(*http.Request) string { return "10.0.0.1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()).Component() != "unknown" {
				t.Error("access log should not inject a logger")
			}
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short"))
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin?currency=USD", nil))

	out := buf.String()
	for _, want := range []string{"msg=\"HTTP request\"", "status_code=418", "bytes=5", "component=http", "client_ip=10.0.0.1", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in log output:\n%s", want, out)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	logger := New(DefaultConfig())
	var got *Logger
	h := Middleware(logger.WithComponent(ComponentSheets))(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Component() != ComponentSheets {
		t.Fatalf("unexpected logger in context: %+v", got)
	}
}

func TestComponentNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentApp}).
		WithComponent(ComponentCLI).
		With(FieldOrigin, "o1")
	logger.Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=cli") || !strings.Contains(out, "origin=o1") {
		t.Fatalf("unexpected record: %s", out)
	}
}
