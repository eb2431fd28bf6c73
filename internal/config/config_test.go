package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"callrec/internal/paths"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Pool.Capacity != 100 {
		t.Errorf("Pool.Capacity = %d, want 100", cfg.Pool.Capacity)
	}
	if cfg.Store.MaxResolutions != 1024 {
		t.Errorf("Store.MaxResolutions = %d, want 1024", cfg.Store.MaxResolutions)
	}
	if cfg.ResolutionTTL() != time.Hour {
		t.Errorf("ResolutionTTL = %v, want 1h", cfg.ResolutionTTL())
	}
	if cfg.Recommend.MinProbability != 0.1 || cfg.Recommend.MaxProposals != 10 {
		t.Errorf("Recommend = %+v", cfg.Recommend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"version 0", func(c *Config) { c.Version = 0 }, "version"},
		{"version 2", func(c *Config) { c.Version = 2 }, "version"},
		{"zero capacity", func(c *Config) { c.Pool.Capacity = 0 }, "pool.capacity"},
		{"negative resolutions", func(c *Config) { c.Store.MaxResolutions = -1 }, "store.maxResolutions"},
		{"zero ttl", func(c *Config) { c.Store.ResolutionTtlSeconds = 0 }, "store.resolutionTtlSeconds"},
		{"probability one", func(c *Config) { c.Recommend.MinProbability = 1 }, "recommend.minProbability"},
		{"zero proposals", func(c *Config) { c.Recommend.MaxProposals = 0 }, "recommend.maxProposals"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"uppercase level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() returned unexpected error: %v", err)
				}
				return
			}
			cerr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() error = %v (%T), want *ConfigError", err, err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "pool.capacity", Message: "must be positive"}
	want := "config error in field 'pool.capacity': must be positive"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv(paths.HomeEnvVar, home)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pool.Capacity != 100 {
		t.Errorf("Pool.Capacity = %d, want default 100", cfg.Pool.Capacity)
	}
	if cfg.Index.Path != filepath.Join(home, paths.IndexFile) {
		t.Errorf("Index.Path = %s", cfg.Index.Path)
	}
	if cfg.Repository.Root != filepath.Join(home, paths.RepositoryDir) {
		t.Errorf("Repository.Root = %s", cfg.Repository.Root)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Setenv(paths.HomeEnvVar, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")

	content := `{
		"version": 1,
		"pool": {"capacity": 8},
		"repository": {"root": "/srv/models"},
		"recommend": {"minProbability": 0.25}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pool.Capacity != 8 {
		t.Errorf("Pool.Capacity = %d, want 8", cfg.Pool.Capacity)
	}
	if cfg.Repository.Root != "/srv/models" {
		t.Errorf("Repository.Root = %q", cfg.Repository.Root)
	}
	if cfg.Recommend.MinProbability != 0.25 {
		t.Errorf("MinProbability = %v, want 0.25", cfg.Recommend.MinProbability)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Recommend.MaxProposals != 10 {
		t.Errorf("MaxProposals = %d, want default 10", cfg.Recommend.MaxProposals)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(paths.HomeEnvVar, t.TempDir())
	t.Setenv("CALLREC_POOL_CAPACITY", "3")
	t.Setenv("CALLREC_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pool.Capacity != 3 {
		t.Errorf("Pool.Capacity = %d, want 3 from env", cfg.Pool.Capacity)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from env", cfg.Logging.Level)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(paths.HomeEnvVar, t.TempDir())
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{"version": 1,`},
		{"bad value", `{"version": 1, "pool": {"capacity": -4}}`},
		{"future version", `{"version": 9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() should fail")
			}
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	t.Setenv(paths.HomeEnvVar, t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Pool.Capacity = 42
	cfg.Index.Path = "/var/lib/callrec/index.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after save error = %v", err)
	}
	if loaded.Pool.Capacity != 42 {
		t.Errorf("Pool.Capacity = %d, want 42", loaded.Pool.Capacity)
	}
	if loaded.Index.Path != "/var/lib/callrec/index.db" {
		t.Errorf("Index.Path = %q", loaded.Index.Path)
	}
}
