package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent      string           `mapstructure:"agent" yaml:"agent,omitempty"`
	Model      string           `mapstructure:"model" yaml:"model,omitempty"`
	Schema     string           `mapstructure:"schema" yaml:"schema,omitempty"`
	PromptsDir string           `mapstructure:"prompts_dir" yaml:"prompts_dir,omitempty"`
	OutputDir  string           `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
	Listen     string           `mapstructure:"listen" yaml:"listen,omitempty"`
	MaxRetries int              `mapstructure:"max_retries" yaml:"max_retries"`
	Cache      bool             `mapstructure:"cache" yaml:"cache"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
}

// CheckpointConfig selects where workflow checkpoints are kept.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend,omitempty"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

const (
	DefaultPromptsDir     = ".jobprep/prompts"
	DefaultOutputDir      = "jobprep-out"
	DefaultListen         = "127.0.0.1:8080"
	DefaultBackend        = "memory"
	DefaultCheckpointPath = ".jobprep/checkpoints.db"
	DefaultMaxRetries     = 2
)

var (
	configFile = ".jobprep.yaml"
	v          *viper.Viper
)

// keys lists every settable key with its parser.
var keys = map[string]func(string) (any, error){
	"agent":              parseString,
	"model":              parseString,
	"schema":             parseString,
	"prompts_dir":        parseString,
	"output_dir":         parseString,
	"listen":             parseString,
	"max_retries":        parseRetries,
	"cache":              parseBool,
	"checkpoint.backend": parseBackend,
	"checkpoint.path":    parseString,
}

func init() {
	v = newViper()
	// Try to read config file (ignore if not exists)
	_ = v.ReadInConfig()
}

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetConfigFile(configFile)
	nv.SetConfigType("yaml")

	nv.SetDefault("agent", "")
	nv.SetDefault("model", "")
	nv.SetDefault("schema", "")
	nv.SetDefault("prompts_dir", DefaultPromptsDir)
	nv.SetDefault("output_dir", DefaultOutputDir)
	nv.SetDefault("listen", DefaultListen)
	nv.SetDefault("max_retries", DefaultMaxRetries)
	nv.SetDefault("cache", true)
	nv.SetDefault("checkpoint.backend", DefaultBackend)
	nv.SetDefault("checkpoint.path", DefaultCheckpointPath)

	// JOBPREP_CHECKPOINT_BACKEND etc.
	nv.SetEnvPrefix("JOBPREP")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	return nv
}

// Use switches to the config file at path, reading it if present.
func Use(path string) error {
	configFile = path
	v = newViper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func Path() string {
	return configFile
}

func Load() (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Keys returns the settable keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Get(key string) (string, error) {
	if _, ok := keys[key]; !ok {
		return "", unknownKey(key)
	}
	return v.GetString(key), nil
}

func Set(key, value string) error {
	parse, ok := keys[key]
	if !ok {
		return unknownKey(key)
	}
	parsed, err := parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	v.Set(key, parsed) // keep viper in sync
	cfg, err := Load()
	if err != nil {
		return err
	}
	return writeConfig(cfg)
}

func All() (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for k := range keys {
		out[k] = v.GetString(k)
	}
	return out, nil
}

// Save saves the full config
func Save(c *Config) error {
	for key, val := range map[string]any{
		"agent":              c.Agent,
		"model":              c.Model,
		"schema":             c.Schema,
		"prompts_dir":        c.PromptsDir,
		"output_dir":         c.OutputDir,
		"listen":             c.Listen,
		"max_retries":        c.MaxRetries,
		"cache":              c.Cache,
		"checkpoint.backend": c.Checkpoint.Backend,
		"checkpoint.path":    c.Checkpoint.Path,
	} {
		v.Set(key, val)
	}
	return writeConfig(c)
}

func writeConfig(cfg *Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if dir := filepath.Dir(configFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	return os.WriteFile(configFile, buf.Bytes(), 0o644)
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
}

func parseString(s string) (any, error) { return s, nil }

func parseBool(s string) (any, error) {
	return strconv.ParseBool(s)
}

func parseRetries(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > 10 {
		return nil, fmt.Errorf("must be between 0 and 10, got %d", n)
	}
	return n, nil
}

func parseBackend(s string) (any, error) {
	switch s {
	case "memory", "sqlite":
		return s, nil
	}
	return nil, fmt.Errorf("must be memory or sqlite, got %q", s)
}

// ResetForTest resets viper for testing (only use in tests)
func ResetForTest(testPath string) {
	configFile = filepath.Join(testPath, ".jobprep.yaml")
	v = newViper()
}
