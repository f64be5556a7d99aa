package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRedactsLocations(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{})
	h.WriteFailed("/var/cache/stash/secret-user-key.cache", errors.New("disk full"))

	out := buf.String()
	if strings.Contains(out, "secret-user-key") {
		t.Fatalf("location leaked: %s", out)
	}
	if !strings.Contains(out, "/var/cache/stash/") || !strings.Contains(out, "stash.write_failed") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{Redact: func(string) string { return "X" }})
	h.DeleteFailed("anything", errors.New("eperm"))
	if !strings.Contains(buf.String(), "location=X") {
		t.Fatalf("redactor not used: %s", buf.String())
	}
}

func TestCorruptSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{CorruptEvery: 3})
	for i := 0; i < 9; i++ {
		h.CorruptItem("k", "decode", nil)
	}
	if n := strings.Count(buf.String(), "stash.corrupt_item"); n != 3 {
		t.Fatalf("logged %d corrupt events, want 3", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.CorruptItem("k", "read", nil)
	h.FlushPartial(1, 2)
}
