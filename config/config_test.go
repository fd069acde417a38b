package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDiscoverPathFrom(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	// Nothing anywhere.
	path, found, err := DiscoverPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverPathFrom: %v", err)
	}
	if found || path != "" {
		t.Fatalf("found=%v path=%q, want no match", found, path)
	}

	// Home config is the fallback.
	homeDir := filepath.Join(home, ".funcdeck")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	homeCfg := writeConfig(t, homeDir, "config.yaml", "server:\n  url: http://home\n")
	path, found, err = DiscoverPathFrom("", cwd, home)
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if path != homeCfg {
		t.Fatalf("path = %q, want %q", path, homeCfg)
	}

	// Project config wins over home.
	projectCfg := writeConfig(t, cwd, "funcdeck.yaml", "server:\n  url: http://project\n")
	path, _, err = DiscoverPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverPathFrom: %v", err)
	}
	if path != projectCfg {
		t.Fatalf("path = %q, want %q", path, projectCfg)
	}

	// Explicit path wins over both; a missing explicit path is an error.
	explicit := writeConfig(t, t.TempDir(), "other.yaml", "")
	path, _, err = DiscoverPathFrom(explicit, cwd, home)
	if err != nil {
		t.Fatalf("DiscoverPathFrom: %v", err)
	}
	if path != explicit {
		t.Fatalf("path = %q, want %q", path, explicit)
	}
	if _, _, err := DiscoverPathFrom(filepath.Join(cwd, "missing.yaml"), cwd, home); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "funcdeck.yaml", `
server:
  url: http://dev.internal:9000
  timeout: 5s
tracker:
  poll_interval: 250ms
  max_attempts: 10
serve:
  db_path: /tmp/funcdeck.db
`)

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.ServerURL != "http://dev.internal:9000" {
		t.Fatalf("ServerURL = %q", got.ServerURL)
	}
	if got.RequestTimeout != 5*time.Second {
		t.Fatalf("RequestTimeout = %v", got.RequestTimeout)
	}
	if got.PollInterval != 250*time.Millisecond {
		t.Fatalf("PollInterval = %v", got.PollInterval)
	}
	if got.MaxAttempts != 10 {
		t.Fatalf("MaxAttempts = %d", got.MaxAttempts)
	}

	defaults := Defaults()
	if got.RunTimeout != defaults.RunTimeout {
		t.Fatalf("RunTimeout = %v, want default %v", got.RunTimeout, defaults.RunTimeout)
	}
	if got.MaxRepeats != defaults.MaxRepeats {
		t.Fatalf("MaxRepeats = %d, want default %d", got.MaxRepeats, defaults.MaxRepeats)
	}
	if got.DBPath != "/tmp/funcdeck.db" {
		t.Fatalf("DBPath = %q", got.DBPath)
	}
	if got.PruneSchedule != defaults.PruneSchedule {
		t.Fatalf("PruneSchedule = %q", got.PruneSchedule)
	}
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"bad duration", "server:\n  timeout: soonish\n", "server.timeout"},
		{"negative duration", "tracker:\n  run_timeout: -3s\n", "must be positive"},
		{"negative count", "tracker:\n  max_attempts: -1\n", "must not be negative"},
		{"unknown field", "tracker:\n  pol_interval: 1s\n", "pol_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, dir, tt.name+".yaml", tt.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Fatalf("error %q does not mention %q", err, tt.errPart)
			}
		})
	}
}
