package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIRADOR_HOTSPOT_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8080" || cfg.Server.GRPCAddress != ":50051" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	gen := cfg.GeneratorConfig()
	if gen.DomainWeight != 0.6 || gen.SemanticWeight != 0.3 || gen.MinClusterSize != 2 {
		t.Fatalf("unexpected generator config: %+v", gen)
	}
	if cfg.Readiness().ClusterReady <= cfg.Readiness().AIEnhance {
		t.Fatalf("readiness thresholds out of order: %+v", cfg.Readiness())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotspot.yaml")
	body := `
server:
  httpAddress: ":9090"
storage:
  path: /var/lib/hotspot/hotspot.db
clustering:
  minClusterSize: 3
  similarity: 0.7
  priority:
    critical: 0.9
    high: 0.7
    medium: 0.5
cache:
  enabled: true
  addr: valkey:6379
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIRADOR_HOTSPOT_RUN_TIMEOUT", "45s")
	t.Setenv("MIRADOR_HOTSPOT_CACHE_DB", "3")
	t.Setenv("MIRADOR_HOTSPOT_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":9090" || cfg.Server.GRPCAddress != ":50051" {
		t.Fatalf("file should override only what it sets: %+v", cfg.Server)
	}
	if cfg.Clustering.MinClusterSize != 3 || cfg.Clustering.Priority.Critical != 0.9 {
		t.Fatalf("clustering not loaded: %+v", cfg.Clustering)
	}
	if cfg.Clustering.RunTimeout != 45*time.Second || cfg.Cache.DB != 3 || !cfg.Logging.JSON {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Clustering, cfg.Cache)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"weights do not sum to one": func(c *Config) { c.Features.ExecutiveWeight = 0.5 },
		"non-monotonic priority":    func(c *Config) { c.Clustering.Priority.High = 0.9 },
		"similarity out of range":   func(c *Config) { c.Clustering.Similarity = 1.5 },
		"cache without addr":        func(c *Config) { c.Cache.Enabled = true },
		"readiness inverted":        func(c *Config) { c.Pipeline.AIEnhance = 0.9 },
		"cluster size too small":    func(c *Config) { c.Clustering.MinClusterSize = 1 },
		"lock expires before run":   func(c *Config) { c.Clustering.RunTimeout = 10 * time.Minute },
		"lock equals run timeout":   func(c *Config) { c.Clustering.LockTTL = c.Clustering.RunTimeout },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
