package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/stash"
)

func TestGroupedSortedAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})
	l := New(stdslog.New(h))

	l.Debug("hidden", stash.Fields{"k": "v"})
	l.Info("flushed", stash.Fields{"removed": 3, "failed": 0})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("want exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "flushed" || rec["level"] != "INFO" {
		t.Fatalf("record=%v", rec)
	}
	group, _ := rec["stash"].(map[string]any)
	if group["removed"] != float64(3) || group["failed"] != float64(0) {
		t.Fatalf("attrs=%v", rec["stash"])
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"failed":0,"removed":3`)) {
		t.Fatalf("attrs not sorted: %s", buf.String())
	}
}
