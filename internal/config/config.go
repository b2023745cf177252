package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-hotspot/internal/engine"
)

// Config captures every setting needed to boot the hotspot engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Source     SourceConfig     `yaml:"source"`
	Weaviate   WeaviateConfig   `yaml:"weaviate"`
	Logging    LoggingConfig    `yaml:"logging"`
	Rules      RulesConfig      `yaml:"rules"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Features   FeaturesConfig   `yaml:"features"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Clustering ClusteringConfig `yaml:"clustering"`
	LLM        LLMConfig        `yaml:"llm"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SourceConfig points at the upstream application's signal export API.
type SourceConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	ExportPath string        `yaml:"exportPath"`
	APIKey     string        `yaml:"apiKey"`
	PageSize   int           `yaml:"pageSize"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WeaviateConfig configures the vector index used for similar-signal lookups.
type WeaviateConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for hotspot recommendations.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the Valkey cache and the shared run lock.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SourceTTL    time.Duration `yaml:"sourceTTL"`
	SimilarTTL   time.Duration `yaml:"similarTTL"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FeaturesConfig holds the similarity weighting and latency budgets.
type FeaturesConfig struct {
	DomainWeight    float64       `yaml:"domainWeight"`
	SemanticWeight  float64       `yaml:"semanticWeight"`
	ExecutiveWeight float64       `yaml:"executiveWeight"`
	SignalBudget    time.Duration `yaml:"signalBudget"`
	BatchBudget     time.Duration `yaml:"batchBudget"`
}

// PipelineConfig tunes batch processing and readiness verdicts.
type PipelineConfig struct {
	BatchSize     int     `yaml:"batchSize"`
	ClusterReady  float64 `yaml:"clusterReady"`
	MinConfidence float64 `yaml:"minConfidence"`
	AIEnhance     float64 `yaml:"aiEnhance"`
}

// ClusteringConfig tunes hotspot generation and run limits.
type ClusteringConfig struct {
	MinClusterSize int                       `yaml:"minClusterSize"`
	MinSamples     int                       `yaml:"minSamples"`
	Similarity     float64                   `yaml:"similarity"`
	Priority       engine.PriorityThresholds `yaml:"priority"`
	RunTimeout     time.Duration             `yaml:"runTimeout"`
	LockTTL        time.Duration             `yaml:"lockTTL"`
}

// LLMConfig selects the tag generator.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"apiKey"`
	Model    string `yaml:"model"`
	MaxTags  int    `yaml:"maxTags"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_HOTSPOT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	f := c.Features
	if f.DomainWeight < 0 || f.SemanticWeight < 0 || f.ExecutiveWeight < 0 {
		return fmt.Errorf("features: weights must not be negative")
	}
	if sum := f.DomainWeight + f.SemanticWeight + f.ExecutiveWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("features: domain, semantic and executive weights must sum to 1, got %.3f", sum)
	}
	if err := c.Clustering.Priority.Validate(); err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	if s := c.Clustering.Similarity; s <= 0 || s > 1 {
		return fmt.Errorf("clustering: similarity %.2f must be in (0,1]", s)
	}
	if c.Clustering.MinClusterSize < 2 {
		return fmt.Errorf("clustering: minClusterSize must be at least 2")
	}
	if c.Clustering.RunTimeout <= 0 || c.Clustering.LockTTL <= c.Clustering.RunTimeout {
		return fmt.Errorf("clustering: lockTTL %s must exceed runTimeout %s", c.Clustering.LockTTL, c.Clustering.RunTimeout)
	}
	p := c.Pipeline
	if !(p.ClusterReady > p.AIEnhance && p.AIEnhance >= 0 && p.ClusterReady <= 1) {
		return fmt.Errorf("pipeline: readiness thresholds must satisfy 1 >= clusterReady > aiEnhance >= 0")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache: addr is required when the cache is enabled")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage: path is required")
	}
	return nil
}

// GeneratorConfig maps clustering and weighting settings onto the generator.
func (c *Config) GeneratorConfig() engine.GeneratorConfig {
	return engine.GeneratorConfig{
		MinClusterSize: c.Clustering.MinClusterSize,
		MinSamples:     c.Clustering.MinSamples,
		Similarity:     c.Clustering.Similarity,
		DomainWeight:   c.Features.DomainWeight,
		SemanticWeight: c.Features.SemanticWeight,
		Priority:       c.Clustering.Priority,
	}
}

// Readiness maps pipeline thresholds onto the integrator's verdict rules.
func (c *Config) Readiness() engine.Readiness {
	return engine.Readiness{
		ClusterReady:  c.Pipeline.ClusterReady,
		MinConfidence: c.Pipeline.MinConfidence,
		AIEnhance:     c.Pipeline.AIEnhance,
	}
}

func defaultConfig() Config {
	gen := engine.DefaultGeneratorConfig()
	ready := engine.DefaultReadiness()
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8080",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			ExportPath: "/api/signals/export",
			PageSize:   200,
			Timeout:    10 * time.Second,
		},
		Weaviate: WeaviateConfig{Timeout: 5 * time.Second},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Rules:    RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			KeyPrefix:    "mirador-hotspot:",
			PoolSize:     4,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SourceTTL:    time.Minute,
			SimilarTTL:   2 * time.Minute,
		},
		Storage: StorageConfig{Path: "data/hotspot.db"},
		Features: FeaturesConfig{
			DomainWeight:    gen.DomainWeight,
			SemanticWeight:  gen.SemanticWeight,
			ExecutiveWeight: 1 - gen.DomainWeight - gen.SemanticWeight,
			SignalBudget:    engine.DefaultFeatureBudget,
			BatchBudget:     5 * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:     10,
			ClusterReady:  ready.ClusterReady,
			MinConfidence: ready.MinConfidence,
			AIEnhance:     ready.AIEnhance,
		},
		Clustering: ClusteringConfig{
			MinClusterSize: gen.MinClusterSize,
			MinSamples:     gen.MinSamples,
			Similarity:     gen.Similarity,
			Priority:       gen.Priority,
			RunTimeout:     2 * time.Minute,
			LockTTL:        5 * time.Minute,
		},
		LLM: LLMConfig{Provider: "keyword", MaxTags: 8},
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("MIRADOR_HOTSPOT_HTTP_ADDRESS", &cfg.Server.HTTPAddress)
	envString("MIRADOR_HOTSPOT_GRPC_ADDRESS", &cfg.Server.GRPCAddress)
	envString("MIRADOR_HOTSPOT_METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	envString("MIRADOR_HOTSPOT_SOURCE_URL", &cfg.Source.BaseURL)
	envString("MIRADOR_HOTSPOT_SOURCE_EXPORT_PATH", &cfg.Source.ExportPath)
	envString("MIRADOR_HOTSPOT_SOURCE_API_KEY", &cfg.Source.APIKey)
	envString("MIRADOR_HOTSPOT_WEAVIATE_URL", &cfg.Weaviate.Endpoint)
	envString("MIRADOR_HOTSPOT_WEAVIATE_API_KEY", &cfg.Weaviate.APIKey)
	envString("MIRADOR_HOTSPOT_LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv("MIRADOR_HOTSPOT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	envString("MIRADOR_HOTSPOT_RULES_PATH", &cfg.Rules.Path)
	envString("MIRADOR_HOTSPOT_STORAGE_PATH", &cfg.Storage.Path)

	envBool("MIRADOR_HOTSPOT_CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("MIRADOR_HOTSPOT_CACHE_ADDR", &cfg.Cache.Addr)
	envString("MIRADOR_HOTSPOT_CACHE_USERNAME", &cfg.Cache.Username)
	envString("MIRADOR_HOTSPOT_CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("MIRADOR_HOTSPOT_CACHE_DB", &cfg.Cache.DB)
	envBool("MIRADOR_HOTSPOT_CACHE_TLS", &cfg.Cache.TLS)
	envDuration("MIRADOR_HOTSPOT_CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("MIRADOR_HOTSPOT_CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("MIRADOR_HOTSPOT_CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("MIRADOR_HOTSPOT_CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("MIRADOR_HOTSPOT_CACHE_SOURCE_TTL", &cfg.Cache.SourceTTL)
	envDuration("MIRADOR_HOTSPOT_CACHE_SIMILAR_TTL", &cfg.Cache.SimilarTTL)

	envInt("MIRADOR_HOTSPOT_BATCH_SIZE", &cfg.Pipeline.BatchSize)
	envInt("MIRADOR_HOTSPOT_MIN_CLUSTER_SIZE", &cfg.Clustering.MinClusterSize)
	envInt("MIRADOR_HOTSPOT_MIN_SAMPLES", &cfg.Clustering.MinSamples)
	envDuration("MIRADOR_HOTSPOT_RUN_TIMEOUT", &cfg.Clustering.RunTimeout)

	envString("MIRADOR_HOTSPOT_LLM_PROVIDER", &cfg.LLM.Provider)
	envString("MIRADOR_HOTSPOT_LLM_MODEL", &cfg.LLM.Model)
	envString("MIRADOR_HOTSPOT_LLM_API_KEY", &cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		envString("ANTHROPIC_API_KEY", &cfg.LLM.APIKey)
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
