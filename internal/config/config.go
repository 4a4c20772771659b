package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the finsight server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Analyzer AnalyzerConfig
	Upload   UploadConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type WorkerConfig struct {
	Concurrency       int
	HardTimeout       time.Duration
	SoftTimeout       time.Duration
	Lease             time.Duration
	ReconcileInterval time.Duration
}

type AnalyzerConfig struct {
	Provider       string
	EmbeddingModel string
	OpenAI         OpenAIConfig
	Ollama         OllamaConfig
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type UploadConfig struct {
	Dir         string
	MaxFileSize int64
}

var validProviders = map[string]bool{
	"openai": true,
	"ollama": true,
	"mock":   true,
}

// Load reads configuration from the environment (plus an optional .env file)
// and returns a validated Config.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	hard := envDurationSecs("ANALYSIS_HARD_TIMEOUT_SECS", 600*time.Second)

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("FINSIGHT_PORT", 8080),
			Env:               envString("FINSIGHT_ENV", "development"),
			RequestsPerMinute: envInt("FINSIGHT_RATE_LIMIT_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", runtime.NumCPU()),
			HardTimeout: hard,
			SoftTimeout: envDurationSecs("ANALYSIS_SOFT_TIMEOUT_SECS", 540*time.Second),
			// Lease must outlive the hard timeout so a live worker never has
			// its in-flight message redelivered to another executor.
			Lease:             envDurationSecs("QUEUE_LEASE_SECS", hard+60*time.Second),
			ReconcileInterval: envDurationSecs("RECONCILE_INTERVAL_SECS", 60*time.Second),
		},
		Analyzer: AnalyzerConfig{
			Provider:       envString("ANALYZER_PROVIDER", "openai"),
			EmbeddingModel: envString("EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
		},
		Upload: UploadConfig{
			Dir:         envString("UPLOAD_DIR", "data"),
			MaxFileSize: envInt64("MAX_FILE_SIZE_BYTES", 50<<20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.SoftTimeout > c.Worker.HardTimeout {
		return fmt.Errorf("ANALYSIS_SOFT_TIMEOUT_SECS (%s) must not exceed ANALYSIS_HARD_TIMEOUT_SECS (%s)",
			c.Worker.SoftTimeout, c.Worker.HardTimeout)
	}
	if c.Worker.Lease <= c.Worker.HardTimeout {
		return fmt.Errorf("QUEUE_LEASE_SECS (%s) must exceed ANALYSIS_HARD_TIMEOUT_SECS (%s)",
			c.Worker.Lease, c.Worker.HardTimeout)
	}

	if !validProviders[c.Analyzer.Provider] {
		return fmt.Errorf("ANALYZER_PROVIDER must be one of openai, ollama, mock; got %q", c.Analyzer.Provider)
	}
	if c.Analyzer.Provider == "openai" && c.Analyzer.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when ANALYZER_PROVIDER is openai")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
