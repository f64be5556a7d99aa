package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/stash"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	l.Debug("hidden", stash.Fields{"k": "v"})
	l.Info("put", stash.Fields{"key": "a", "minutes": 5})
	l.Warn("write failed", stash.Fields{"err": errors.New("disk full")})
	l.Error("boom", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (debug filtered)", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "put" || ctx["key"] != "a" || ctx["minutes"] != int64(5) {
		t.Fatalf("info entry=%+v ctx=%v", entries[0], ctx)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["err"] != "disk full" {
		t.Fatalf("warn entry=%+v", entries[1].ContextMap())
	}
	if entries[2].Level != zapcore.ErrorLevel || len(entries[2].Context) != 0 {
		t.Fatalf("error entry=%+v", entries[2])
	}
}

func TestNilLoggerIsNop(t *testing.T) {
	New(nil).Error("ignored", stash.Fields{"k": 1})
}
