// Package config loads the funcdeck YAML configuration file and resolves
// its location with first-match semantics.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/server"
)

const (
	projectConfigName = "funcdeck.yaml"
	homeConfigName    = "config.yaml"
)

// File is the on-disk configuration shape.
type File struct {
	Server  ServerSection  `yaml:"server"`
	Tracker TrackerSection `yaml:"tracker"`
	Serve   ServeSection   `yaml:"serve"`
}

// ServerSection configures the gateway connection.
type ServerSection struct {
	URL     string `yaml:"url,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
}

// TrackerSection tunes run tracking.
type TrackerSection struct {
	PollInterval string `yaml:"poll_interval,omitempty"`
	RunTimeout   string `yaml:"run_timeout,omitempty"`
	MaxAttempts  int    `yaml:"max_attempts,omitempty"`
	MaxRepeats   int    `yaml:"max_repeats,omitempty"`
	PollRetries  int    `yaml:"poll_retries,omitempty"`
}

// ServeSection configures the development backend.
type ServeSection struct {
	Listen        string `yaml:"listen,omitempty"`
	DBPath        string `yaml:"db_path,omitempty"`
	Retention     string `yaml:"retention,omitempty"`
	PruneSchedule string `yaml:"prune_schedule,omitempty"`
}

// Settings is the resolved configuration with defaults applied and
// durations parsed.
type Settings struct {
	ServerURL      string
	RequestTimeout time.Duration

	PollInterval time.Duration
	RunTimeout   time.Duration
	MaxAttempts  int
	MaxRepeats   int
	PollRetries  int

	Listen        string
	DBPath        string
	Retention     time.Duration
	PruneSchedule string
}

// Defaults returns the settings used when no config file exists.
func Defaults() Settings {
	return Settings{
		ServerURL:      "http://localhost:8787",
		RequestTimeout: 10 * time.Second,
		PollInterval:   funcdeck.DefaultPollInterval,
		RunTimeout:     funcdeck.DefaultRunTimeout,
		MaxAttempts:    funcdeck.DefaultMaxAttempts,
		MaxRepeats:     funcdeck.DefaultMaxRepeats,
		Listen:         "localhost:8787",
		Retention:      server.DefaultRetention,
		PruneSchedule:  server.DefaultPruneSchedule,
	}
}

// DiscoverPath resolves the config file location with first-match semantics:
// an explicit path wins, then ./funcdeck.yaml, then ~/.funcdeck/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".funcdeck", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load resolves the config file (explicit path optional) and returns the
// merged settings. A missing file yields the defaults.
func Load(explicitPath string) (Settings, error) {
	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return Settings{}, err
	}
	if !found {
		return Defaults(), nil
	}
	return LoadFile(path)
}

// LoadFile parses one YAML config file and applies defaults for any field
// it leaves unset.
func LoadFile(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var file File
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return Settings{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return resolve(file, path)
}

func resolve(file File, path string) (Settings, error) {
	out := Defaults()

	if file.Server.URL != "" {
		out.ServerURL = file.Server.URL
	}
	if err := overrideDuration(&out.RequestTimeout, file.Server.Timeout, "server.timeout", path); err != nil {
		return Settings{}, err
	}

	if err := overrideDuration(&out.PollInterval, file.Tracker.PollInterval, "tracker.poll_interval", path); err != nil {
		return Settings{}, err
	}
	if err := overrideDuration(&out.RunTimeout, file.Tracker.RunTimeout, "tracker.run_timeout", path); err != nil {
		return Settings{}, err
	}
	if file.Tracker.MaxAttempts < 0 || file.Tracker.MaxRepeats < 0 || file.Tracker.PollRetries < 0 {
		return Settings{}, fmt.Errorf("config %q: tracker counts must not be negative", path)
	}
	if file.Tracker.MaxAttempts > 0 {
		out.MaxAttempts = file.Tracker.MaxAttempts
	}
	if file.Tracker.MaxRepeats > 0 {
		out.MaxRepeats = file.Tracker.MaxRepeats
	}
	if file.Tracker.PollRetries > 0 {
		out.PollRetries = file.Tracker.PollRetries
	}

	if file.Serve.Listen != "" {
		out.Listen = file.Serve.Listen
	}
	if file.Serve.DBPath != "" {
		out.DBPath = file.Serve.DBPath
	}
	if err := overrideDuration(&out.Retention, file.Serve.Retention, "serve.retention", path); err != nil {
		return Settings{}, err
	}
	if file.Serve.PruneSchedule != "" {
		out.PruneSchedule = file.Serve.PruneSchedule
	}

	return out, nil
}

func overrideDuration(dst *time.Duration, raw, field, path string) error {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil
	}
	parsed, err := time.ParseDuration(clean)
	if err != nil {
		return fmt.Errorf("config %q: invalid %s %q: %w", path, field, raw, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("config %q: %s must be positive", path, field)
	}
	*dst = parsed
	return nil
}
