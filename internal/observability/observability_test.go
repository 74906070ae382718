package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerWritesJSONAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, "warn")
	lg.Info("dropped")
	lg.Warn("kept", "imei", "356307042441013")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not one JSON line: %v (%q)", err, buf.String())
	}
	if line["msg"] != "kept" || line["imei"] != "356307042441013" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestHTTPServerRoutes(t *testing.T) {
	extra := map[string]http.Handler{
		"/ws": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
	}
	srv := NewHTTPServer(":0", extra)

	for path, want := range map[string]int{"/healthz": http.StatusOK, "/metrics": http.StatusOK, "/ws": http.StatusTeapot} {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}
}
