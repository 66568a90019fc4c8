package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeStrategies(t *testing.T, path, data string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnMtimeChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "strategies.json")
	base := time.Now().Add(-time.Hour)
	writeStrategies(t, path, `{"stop_loss_pct": 0.10}`, base)

	var got *Strategies
	w := NewWatcher(path, func(s *Strategies) { got = s })

	// Unchanged mtime: no reload.
	w.checkOnce()
	if got != nil {
		t.Fatal("reload fired without an mtime change")
	}

	writeStrategies(t, path, `{"stop_loss_pct": 0.15}`, base.Add(time.Minute))
	w.checkOnce()
	if got == nil {
		t.Fatal("reload did not fire after an mtime change")
	}
	if got.StopLossPct != 0.15 {
		t.Errorf("stop loss = %v, want the reloaded 0.15", got.StopLossPct)
	}
}

func TestWatcherKeepsParametersOnParseFailure(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "strategies.json")
	base := time.Now().Add(-time.Hour)
	writeStrategies(t, path, `{"stop_loss_pct": 0.10}`, base)

	calls := 0
	w := NewWatcher(path, func(*Strategies) { calls++ })

	writeStrategies(t, path, `{broken`, base.Add(time.Minute))
	w.checkOnce()
	if calls != 0 {
		t.Fatal("onChange fired for a corrupt file")
	}

	// The next valid write still reloads.
	writeStrategies(t, path, `{"stop_loss_pct": 0.25}`, base.Add(2*time.Minute))
	w.checkOnce()
	if calls != 1 {
		t.Errorf("onChange calls = %d, want 1 after recovery", calls)
	}
}

func TestWatcherMissingFileIsQuiet(t *testing.T) {
	t.Parallel()
	w := NewWatcher(filepath.Join(t.TempDir(), "absent.json"), func(*Strategies) {
		t.Error("onChange fired for a missing file")
	})
	w.checkOnce()
}
