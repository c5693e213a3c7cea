package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if c.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected default max_retries %d, got %d", DefaultMaxRetries, c.MaxRetries)
	}
	if c.Checkpoint.Backend != "memory" {
		t.Errorf("Expected memory backend by default, got '%s'", c.Checkpoint.Backend)
	}
	if !c.Cache {
		t.Error("Expected cache enabled by default")
	}
	if c.Listen != DefaultListen || c.PromptsDir != DefaultPromptsDir {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

func TestSetAndGet(t *testing.T) {
	dir := t.TempDir()
	ResetForTest(dir)

	if err := Set("agent", "gemini-2.5-flash"); err != nil {
		t.Fatalf("Set agent error: %v", err)
	}
	if err := Set("checkpoint.backend", "sqlite"); err != nil {
		t.Fatalf("Set backend error: %v", err)
	}
	if err := Set("max_retries", "4"); err != nil {
		t.Fatalf("Set max_retries error: %v", err)
	}

	// Reset viper to force reload from file
	if err := Use(filepath.Join(dir, ".jobprep.yaml")); err != nil {
		t.Fatalf("Use: %v", err)
	}

	agent, err := Get("agent")
	if err != nil {
		t.Fatalf("Get agent error: %v", err)
	}
	if agent != "gemini-2.5-flash" {
		t.Errorf("Expected agent 'gemini-2.5-flash', got '%s'", agent)
	}

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Checkpoint.Backend != "sqlite" || c.MaxRetries != 4 {
		t.Errorf("reloaded config = %+v", c)
	}
	if c.Checkpoint.Path != DefaultCheckpointPath {
		t.Errorf("unset keys should keep defaults, got path %q", c.Checkpoint.Path)
	}
}

func TestSetInvalid(t *testing.T) {
	tests := []struct {
		key, value string
		want       string
	}{
		{"invalid_key", "value", "unknown config key"},
		{"max_retries", "many", "invalid value for max_retries"},
		{"max_retries", "-1", "between 0 and 10"},
		{"cache", "perhaps", "invalid value for cache"},
		{"checkpoint.backend", "postgres", "memory or sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			ResetForTest(t.TempDir())
			err := Set(tt.key, tt.value)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Set(%q, %q) error = %v, want containing %q", tt.key, tt.value, err, tt.want)
			}
		})
	}
}

func TestGetInvalidKey(t *testing.T) {
	ResetForTest(t.TempDir())

	_, err := Get("invalid_key")
	if err == nil {
		t.Error("Expected error for invalid key, got nil")
	}
}

func TestEnvOverride(t *testing.T) {
	ResetForTest(t.TempDir())
	t.Setenv("JOBPREP_CHECKPOINT_BACKEND", "sqlite")
	t.Setenv("JOBPREP_MODEL", "haiku-4-5")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Checkpoint.Backend != "sqlite" {
		t.Errorf("env should override backend, got %q", c.Checkpoint.Backend)
	}
	if c.Model != "haiku-4-5" {
		t.Errorf("env should override model, got %q", c.Model)
	}
}

func TestAllAndKeys(t *testing.T) {
	ResetForTest(t.TempDir())

	all, err := All()
	if err != nil {
		t.Fatal(err)
	}
	keys := Keys()
	if len(all) != len(keys) {
		t.Errorf("All() has %d keys, Keys() has %d", len(all), len(keys))
	}
	if all["max_retries"] != "2" {
		t.Errorf("max_retries = %q", all["max_retries"])
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("Keys() not sorted: %v", keys)
		}
	}
}

func TestSaveWritesFile(t *testing.T) {
	dir := t.TempDir()
	ResetForTest(filepath.Join(dir, "subdir"))

	cfg := &Config{Agent: "claude-code", MaxRetries: 1, Cache: false, Checkpoint: CheckpointConfig{Backend: "sqlite", Path: "cp.db"}}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	data, err := os.ReadFile(Path())
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	for _, want := range []string{"agent: claude-code", "backend: sqlite", "cache: false"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q:\n%s", want, data)
		}
	}

	got, _ := Get("checkpoint.path")
	if got != "cp.db" {
		t.Errorf("Save should keep viper in sync, got %q", got)
	}
}
