package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vesper.yaml")
	writeConfig(t, path, "wake:\n  word: aurora\n")

	w, err := NewWatcher(path, nil, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Wake.Word; got != "aurora" {
		t.Errorf("wake.word = %q, want aurora", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vesper.yaml")
	writeConfig(t, path, "wake:\n  word: \"\"\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher accepted an invalid config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vesper.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	var mu sync.Mutex
	var got []ConfigDiff
	w, err := NewWatcher(path, func(diff ConfigDiff, _ *Config) {
		mu.Lock()
		got = append(got, diff)
		mu.Unlock()
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate then rewrite so the mtime check cannot miss the edit.
	past := time.Now().Add(-time.Minute)
	os.Chtimes(path, past, past)
	writeConfig(t, path, "server:\n  log_level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("onChange never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !got[0].LogLevelChanged || got[0].NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", got[0])
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Error("Current() not updated after reload")
	}
}

func TestWatcher_KeepsPreviousOnInvalidEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vesper.yaml")
	writeConfig(t, path, "wake:\n  word: aurora\n")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	past := time.Now().Add(-time.Minute)
	os.Chtimes(path, past, past)
	writeConfig(t, path, "wake:\n  word: \"\"\n")

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Wake.Word; got != "aurora" {
		t.Errorf("wake.word = %q after invalid edit, want previous config kept", got)
	}
}
