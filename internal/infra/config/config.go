package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	LLM     LLMConfig     `yaml:"llm"`
	FAQ     FAQConfig     `yaml:"faq"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Queue   QueueConfig   `yaml:"queue"`
	Source  SourceConfig  `yaml:"source"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	APIKey         string          `yaml:"apiKey"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// LLMConfig contains OpenAI settings for chat and embedding calls.
type LLMConfig struct {
	APIKey             string        `yaml:"apiKey"`
	BaseURL            string        `yaml:"baseUrl"`
	ChatModel          string        `yaml:"chatModel"`
	ClassifierModel    string        `yaml:"classifierModel"`
	EmbeddingModel     string        `yaml:"embeddingModel"`
	EmbeddingDimension int           `yaml:"embeddingDimension"`
	CallTimeout        time.Duration `yaml:"callTimeout"`
	// Offline swaps remote calls for the deterministic embedder; chat calls still need a key.
	Offline bool `yaml:"offline"`
}

// FAQConfig controls the answer pipeline.
type FAQConfig struct {
	SimilarityThreshold   float64     `yaml:"similarityThreshold"`
	DefaultCollection     string      `yaml:"defaultCollection"`
	ComplianceMessage     string      `yaml:"complianceMessage"`
	ClassifierPrompt      string      `yaml:"classifierPrompt"`
	GenerationPrompt      string      `yaml:"generationPrompt"`
	GenerationTemperature float32     `yaml:"generationTemperature"`
	GenerationMaxTokens   int         `yaml:"generationMaxTokens"`
	MaxQuestionLength     int         `yaml:"maxQuestionLength"`
	Retry                 RetryConfig `yaml:"retry"`
}

// RetryConfig configures the per-call retry policy of outbound requests.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Multiplier  time.Duration `yaml:"multiplier"`
	Floor       time.Duration `yaml:"floor"`
	Ceiling     time.Duration `yaml:"ceiling"`
}

// StorageConfig selects the corpus backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// SQLiteConfig points at the single-file corpus.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
}

// QueueConfig selects where background embedding jobs go.
type QueueConfig struct {
	Driver string `yaml:"driver"`
	Addr   string `yaml:"addr"`
	Key    string `yaml:"key"`
}

// SourceConfig points at the S3-compatible bucket holding FAQ files.
type SourceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	// CacheInProcess as cache.addr keeps embeddings in process memory.
	CacheInProcess = "memory"

	QueueImmediate = "immediate"
	QueueValkey    = "valkey"

	maxCollectionNameLength = 100
)

var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Load reads configuration from .env, a YAML file and environment variables.
func Load() (*Config, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "invalid config", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	setString(&cfg.HTTP.APIKey, "API_KEY")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.ChatModel, "CHAT_MODEL")
	setString(&cfg.LLM.ClassifierModel, "CLASSIFIER_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "EMBEDDING_MODEL")
	setInt(&cfg.LLM.EmbeddingDimension, "EMBEDDING_DIMENSION")
	setDuration(&cfg.LLM.CallTimeout, "LLM_CALL_TIMEOUT")
	setBool(&cfg.LLM.Offline, "LLM_OFFLINE")

	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FAQ.SimilarityThreshold = parsed
		}
	}
	setString(&cfg.FAQ.DefaultCollection, "DEFAULT_COLLECTION")
	setString(&cfg.FAQ.ComplianceMessage, "COMPLIANCE_MESSAGE")
	setInt(&cfg.FAQ.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.FAQ.Retry.Multiplier, "RETRY_MULTIPLIER")
	setDuration(&cfg.FAQ.Retry.Floor, "RETRY_FLOOR")
	setDuration(&cfg.FAQ.Retry.Ceiling, "RETRY_CEILING")

	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.Postgres.DSN, "DATABASE_URL")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Postgres.MaxConns = int32(parsed)
		}
	}
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")

	setBool(&cfg.Cache.Enabled, "EMBEDDING_CACHE_ENABLED")
	setString(&cfg.Cache.Addr, "VALKEY_ADDR")
	setDuration(&cfg.Cache.TTL, "EMBEDDING_CACHE_TTL")

	setString(&cfg.Queue.Driver, "QUEUE_DRIVER")
	setString(&cfg.Queue.Addr, "VALKEY_ADDR")
	setString(&cfg.Queue.Addr, "QUEUE_ADDR")

	setString(&cfg.Source.Endpoint, "SOURCE_ENDPOINT")
	setString(&cfg.Source.AccessKey, "SOURCE_ACCESS_KEY")
	setString(&cfg.Source.SecretKey, "SOURCE_SECRET_KEY")
	setString(&cfg.Source.Bucket, "SOURCE_BUCKET")
	setString(&cfg.Source.Region, "SOURCE_REGION")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 50,
				Burst:             50,
			},
		},
		LLM: LLMConfig{
			ChatModel:       "gpt-4o-mini",
			ClassifierModel: "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			CallTimeout:     30 * time.Second,
		},
		FAQ: FAQConfig{
			SimilarityThreshold:   0.85,
			DefaultCollection:     "default",
			ComplianceMessage:     "This is not really what I was trained for, therefore I cannot answer. Try again.",
			GenerationTemperature: 0.7,
			GenerationMaxTokens:   300,
			MaxQuestionLength:     1000,
			Retry: RetryConfig{
				MaxAttempts: 3,
				Multiplier:  time.Second,
				Floor:       2 * time.Second,
				Ceiling:     10 * time.Second,
			},
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			SQLite: SQLiteConfig{
				Path: "faq.db",
			},
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Queue: QueueConfig{
			Driver: QueueImmediate,
			Key:    "faq:jobs",
		},
	}
}

// EmbeddingDimensionFor resolves the vector dimension of model.
func EmbeddingDimensionFor(model string) (int, error) {
	dim, ok := embeddingDimensions[strings.TrimSpace(model)]
	if !ok {
		return 0, apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("unsupported embedding model %q", model), nil)
	}
	return dim, nil
}

// Dimension returns the configured embedding dimension.
func (c *Config) Dimension() int {
	if c.LLM.EmbeddingDimension > 0 {
		return c.LLM.EmbeddingDimension
	}
	dim, _ := EmbeddingDimensionFor(c.LLM.EmbeddingModel)
	return dim
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModel cannot be empty")
	}
	if c.LLM.EmbeddingDimension < 0 {
		return errors.New("llm.embeddingDimension cannot be negative")
	}
	if c.LLM.EmbeddingDimension == 0 {
		if _, err := EmbeddingDimensionFor(c.LLM.EmbeddingModel); err != nil {
			return err
		}
	}
	if c.FAQ.SimilarityThreshold < 0 || c.FAQ.SimilarityThreshold > 1 {
		return errors.New("faq.similarityThreshold must be within [0, 1]")
	}
	name := strings.TrimSpace(c.FAQ.DefaultCollection)
	if name == "" || len(name) > maxCollectionNameLength {
		return fmt.Errorf("faq.defaultCollection must be 1..%d characters", maxCollectionNameLength)
	}
	if c.FAQ.ComplianceMessage == "" {
		return errors.New("faq.complianceMessage cannot be empty")
	}
	if c.FAQ.Retry.MaxAttempts <= 0 {
		return errors.New("faq.retry.maxAttempts must be positive")
	}
	if c.FAQ.Retry.Floor < 0 || c.FAQ.Retry.Ceiling < 0 || c.FAQ.Retry.Multiplier < 0 {
		return errors.New("faq.retry durations cannot be negative")
	}
	if c.FAQ.Retry.Ceiling > 0 && c.FAQ.Retry.Floor > c.FAQ.Retry.Ceiling {
		return errors.New("faq.retry.floor cannot exceed faq.retry.ceiling")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn cannot be empty when driver is postgres")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.SQLite.Path) == "" {
			return errors.New("storage.sqlite.path cannot be empty when driver is sqlite")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Addr) == "" {
		return errors.New("cache.addr cannot be empty when the embedding cache is enabled")
	}
	switch c.Queue.Driver {
	case QueueImmediate:
	case QueueValkey:
		if strings.TrimSpace(c.Queue.Addr) == "" {
			return errors.New("queue.addr cannot be empty when driver is valkey")
		}
	default:
		return fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver)
	}
	return nil
}
