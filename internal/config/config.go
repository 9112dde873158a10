package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the vecsight API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Search    SearchConfig    `yaml:"search"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int     `yaml:"port"`
	ReadTimeoutSec  int     `yaml:"read_timeout_sec"`
	WriteTimeoutSec int     `yaml:"write_timeout_sec"`
	ShutdownSec     int     `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64   `yaml:"max_upload_bytes"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	HealthTimeoutMS int     `yaml:"health_timeout_ms"` // per component check; 0 = 2s
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	Driver           string         `yaml:"driver"` // valkey, redis, postgres, memory (default: valkey)
	Addrs            []string       `yaml:"addrs"`
	Username         string         `yaml:"username"`
	Password         string         `yaml:"password"`
	DB               int            `yaml:"db"`
	WriteTimeoutMS   int            `yaml:"write_timeout_ms"` // 0 = client default
	DSN              string         `yaml:"dsn"`
	KeyPrefix        string         `yaml:"key_prefix"`
	ReadinessTimeout int            `yaml:"readiness_timeout_sec"`
	TimeoutMS        int            `yaml:"timeout_ms"` // per attempt
	Retries          int            `yaml:"retries"`    // attempts including the first
	HNSWM            int            `yaml:"hnsw_m"`
	HNSWEFConstruct  int            `yaml:"hnsw_ef_construction"`
	Memory           MemoryConfig   `yaml:"memory"`
	Postgres         PostgresConfig `yaml:"postgres"`
}

// MemoryConfig holds in-process store settings.
type MemoryConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
}

// PostgresConfig holds pgvector store settings.
type PostgresConfig struct {
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// ExtractorConfig holds feature extractor settings.
type ExtractorConfig struct {
	Provider  string       `yaml:"provider"` // onnx, openai, perceptual (default: perceptual)
	Dimension int          `yaml:"dimension"`
	Workers   int          `yaml:"workers"`   // 0 = runtime.NumCPU()
	MaxQueue  int          `yaml:"max_queue"` // 0 = unbounded
	Warmup    bool         `yaml:"warmup"`
	ONNX      ONNXConfig   `yaml:"onnx"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Cache     CacheConfig  `yaml:"cache"`
}

// ONNXConfig holds ONNX runtime settings.
type ONNXConfig struct {
	ModelPath   string `yaml:"model_path"`
	LibraryPath string `yaml:"library_path"`
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
}

// OpenAIConfig holds remote provider settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	VisionModel    string `yaml:"vision_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// CacheConfig holds feature cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	L1Size  int  `yaml:"l1_size"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// SearchConfig holds scoring and ranking settings.
type SearchConfig struct {
	BlendWeight             float64  `yaml:"blend_weight"`
	HighConfidenceThreshold float64  `yaml:"high_confidence_threshold"`
	ExactMatchThreshold     float64  `yaml:"exact_match_threshold"`
	MinScore                float64  `yaml:"min_score"`
	TopK                    int      `yaml:"top_k"`
	MaxTopK                 int      `yaml:"max_top_k"`
	Categories              []string `yaml:"categories"`
}

// DefaultBlendWeight is used when search.blend_weight is absent.
const DefaultBlendWeight = 0.5

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in data, decodes it and applies overrides and defaults.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	// zero is a valid blend weight, so its default is seeded before decoding
	cfg := Config{Search: SearchConfig{BlendWeight: DefaultBlendWeight}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("invalid environment override: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyEnvOverrides applies the core deployment variables on top of the file.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	if v, ok := lookup("EMBEDDING_DIMENSION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMBEDDING_DIMENSION: %w", err)
		}
		c.Extractor.Dimension = n
	}
	if v, ok := lookup("SIMILARITY_BLEND_WEIGHT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SIMILARITY_BLEND_WEIGHT: %w", err)
		}
		c.Search.BlendWeight = f
	}
	if v, ok := lookup("HIGH_CONFIDENCE_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HIGH_CONFIDENCE_THRESHOLD: %w", err)
		}
		c.Search.HighConfidenceThreshold = f
	}
	if v, ok := lookup("TOP_K"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOP_K: %w", err)
		}
		c.Search.TopK = n
	}
	if v, ok := lookup("CATEGORY_SET"); ok && v != "" {
		var cats []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cats = append(cats, s)
			}
		}
		c.Search.Categories = cats
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 16 << 20
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = int(c.HTTP.RateLimitRPS) + 1
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "valkey"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "vecsight:"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.TimeoutMS <= 0 {
		c.Store.TimeoutMS = 2000
	}
	if c.Store.Retries <= 0 {
		c.Store.Retries = 3
	}
	if c.Store.HNSWM <= 0 {
		c.Store.HNSWM = 16
	}
	if c.Store.HNSWEFConstruct <= 0 {
		c.Store.HNSWEFConstruct = 200
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = "images"
	}
	if c.Store.Postgres.MaxOpenConns <= 0 {
		c.Store.Postgres.MaxOpenConns = 10
	}

	if c.Extractor.Provider == "" {
		c.Extractor.Provider = "perceptual"
	}
	if c.Extractor.Dimension <= 0 {
		c.Extractor.Dimension = 2048
	}
	if c.Extractor.Workers <= 0 {
		c.Extractor.Workers = runtime.NumCPU()
	}
	if c.Extractor.ONNX.InputName == "" {
		c.Extractor.ONNX.InputName = "input"
	}
	if c.Extractor.ONNX.OutputName == "" {
		c.Extractor.ONNX.OutputName = "output"
	}
	if c.Extractor.OpenAI.VisionModel == "" {
		c.Extractor.OpenAI.VisionModel = "gpt-4o-mini"
	}
	if c.Extractor.OpenAI.EmbeddingModel == "" {
		c.Extractor.OpenAI.EmbeddingModel = "text-embedding-3-large"
	}
	if c.Extractor.Cache.L1Size <= 0 {
		c.Extractor.Cache.L1Size = 1024
	}
	if c.Extractor.Cache.TTLSec <= 0 {
		c.Extractor.Cache.TTLSec = 86400
	}

	if c.Search.HighConfidenceThreshold <= 0 {
		c.Search.HighConfidenceThreshold = 0.88
	}
	if c.Search.ExactMatchThreshold <= 0 {
		c.Search.ExactMatchThreshold = 0.999
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 10
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 100
	}
	if c.Search.MaxTopK < c.Search.TopK {
		c.Search.MaxTopK = c.Search.TopK
	}
	if len(c.Search.Categories) == 0 {
		c.Search.Categories = []string{"healthcare", "satellite", "surveillance"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.HealthTimeoutMS < 0 {
		return fmt.Errorf("http.health_timeout_ms must not be negative, got %d", c.HTTP.HealthTimeoutMS)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.Store.Driver {
	case "valkey", "redis":
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for driver %q", c.Store.Driver)
		}
		if c.Store.DB < 0 || c.Store.WriteTimeoutMS < 0 {
			return fmt.Errorf("store.db and store.write_timeout_ms must not be negative")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver \"postgres\"")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be one of valkey, redis, postgres, memory, got %q", c.Store.Driver)
	}
	switch c.Extractor.Provider {
	case "onnx":
		if c.Extractor.ONNX.ModelPath == "" {
			return fmt.Errorf("extractor.onnx.model_path is required for provider \"onnx\"")
		}
	case "openai":
		if c.Extractor.OpenAI.APIKey == "" {
			return fmt.Errorf("extractor.openai.api_key is required for provider \"openai\"")
		}
	case "perceptual":
	default:
		return fmt.Errorf("extractor.provider must be one of onnx, openai, perceptual, got %q", c.Extractor.Provider)
	}
	if c.Extractor.MaxQueue < 0 {
		return fmt.Errorf("extractor.max_queue must be >= 0, got %d", c.Extractor.MaxQueue)
	}
	if c.Search.BlendWeight < 0 || c.Search.BlendWeight > 1 {
		return fmt.Errorf("search.blend_weight must be in [0, 1], got %v", c.Search.BlendWeight)
	}
	if c.Search.HighConfidenceThreshold > 1 {
		return fmt.Errorf("search.high_confidence_threshold must be in [0, 1], got %v", c.Search.HighConfidenceThreshold)
	}
	if c.Search.ExactMatchThreshold > 1 {
		return fmt.Errorf("search.exact_match_threshold must be in [0, 1], got %v", c.Search.ExactMatchThreshold)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in [0, 1], got %v", c.Search.MinScore)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
