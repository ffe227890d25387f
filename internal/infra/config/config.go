package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Index backends.
const (
	IndexBackendSnapshot = "snapshot"
	IndexBackendPgvector = "pgvector"
)

type Config struct {
	Env        string
	Server     ServerConfig
	LLM        LLMConfig
	Embedder   EmbedderConfig
	Graph      GraphConfig
	Summary    SummaryConfig
	Index      IndexConfig
	DB         DBConfig
	Retrieval  RetrievalConfig
	Classifier ClassifierConfig
	Validator  ValidatorConfig
	Session    SessionConfig
	Log        LogConfig
	OTel       OTelConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout int // seconds
	RequestTimeout  int // seconds
}

type LLMConfig struct {
	URL           string
	Model         string
	Timeout       int // seconds
	MaxTokens     int
	NumCtx        int
	RatePerSecond float64
	Burst         int
}

type EmbedderConfig struct {
	URL       string
	Model     string
	Timeout   int // seconds
	CacheSize int
	BatchSize int
}

type GraphConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

type SummaryConfig struct {
	URI        string
	Database   string
	Collection string
}

type IndexConfig struct {
	Backend      string
	SnapshotPath string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

// DSN builds the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

type RetrievalConfig struct {
	TopK              int
	GatewayTimeout    int // seconds
	StopWords         []string
	MemoryLookupLimit int
}

type ClassifierConfig struct {
	FollowUpMode        string
	SplitMode           string
	SimilarityThreshold float64
	Timeout             int // seconds
}

type ValidatorConfig struct {
	Enabled   bool
	Timeout   int // seconds
	MaxTokens int
}

type SessionConfig struct {
	Capacity int
	MaxTurns int
	// IdleTimeout ends sessions without a turn for this long. Zero disables the reaper.
	IdleTimeout  int // minutes
	ReapInterval int // seconds
}

type LogConfig struct {
	Level       string
	OTelEnabled bool
}

type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

func Load() *Config {
	return &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "9020"),
			ShutdownTimeout: getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10),
			RequestTimeout:  getEnvInt("SERVER_REQUEST_TIMEOUT_SECONDS", 180),
		},
		LLM: LLMConfig{
			URL:           getEnvWithAlt("LLM_URL", "OLLAMA_URL", "http://localhost:11434"),
			Model:         getEnv("LLM_MODEL", "llama3.1"),
			Timeout:       getEnvInt("LLM_TIMEOUT_SECONDS", 120),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 1024),
			NumCtx:        getEnvInt("LLM_NUM_CTX", 8192),
			RatePerSecond: getEnvFloat64("LLM_RATE_PER_SECOND", 0),
			Burst:         getEnvInt("LLM_BURST", 4),
		},
		Embedder: EmbedderConfig{
			URL:       getEnvWithAlt("EMBEDDER_URL", "OLLAMA_URL", "http://localhost:11434"),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:   getEnvInt("EMBEDDER_TIMEOUT_SECONDS", 30),
			CacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 1024),
			BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 64),
		},
		Graph: GraphConfig{
			URI:      getEnv("NEO4J_URI", "neo4j://localhost:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getSecret("NEO4J_PASSWORD", "NEO4J_PASSWORD_FILE", ""),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},
		Summary: SummaryConfig{
			URI:        getSecret("MONGO_URI", "MONGO_URI_FILE", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DATABASE", "news_db"),
			Collection: getEnv("MONGO_SUMMARY_COLLECTION", "summaries"),
		},
		Index: IndexConfig{
			Backend:      getEnv("INDEX_BACKEND", IndexBackendSnapshot),
			SnapshotPath: getEnv("INDEX_SNAPSHOT_PATH", "data/articles.snapshot.json"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "news_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "news_password"),
			Name:     getEnv("DB_NAME", "news_db"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Retrieval: RetrievalConfig{
			TopK:              getEnvInt("RETRIEVAL_TOP_K", 5),
			GatewayTimeout:    getEnvInt("RETRIEVAL_GATEWAY_TIMEOUT_SECONDS", 10),
			StopWords:         getEnvList("RETRIEVAL_STOP_WORDS", nil),
			MemoryLookupLimit: getEnvInt("MEMORY_LOOKUP_LIMIT", 5),
		},
		Classifier: ClassifierConfig{
			FollowUpMode:        getEnv("CLASSIFIER_FOLLOWUP_MODE", "similarity"),
			SplitMode:           getEnv("CLASSIFIER_SPLIT_MODE", "heuristic"),
			SimilarityThreshold: getEnvFloat64("CLASSIFIER_SIMILARITY_THRESHOLD", 0.4),
			Timeout:             getEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 15),
		},
		Validator: ValidatorConfig{
			Enabled:   getEnvBool("VALIDATOR_ENABLED", true),
			Timeout:   getEnvInt("VALIDATOR_TIMEOUT_SECONDS", 60),
			MaxTokens: getEnvInt("VALIDATOR_MAX_TOKENS", 1024),
		},
		Session: SessionConfig{
			Capacity:     getEnvInt("SESSION_CAPACITY", 1000),
			MaxTurns:     getEnvInt("SESSION_MEMORY_MAX_TURNS", 0),
			IdleTimeout:  getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 30),
			ReapInterval: getEnvInt("SESSION_REAP_INTERVAL_SECONDS", 60),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			OTelEnabled: getEnvBool("LOG_OTEL_ENABLED", false),
		},
		OTel: OTelConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "news-orchestrator"),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.GatewayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_GATEWAY_TIMEOUT_SECONDS must be positive, got %d", c.Retrieval.GatewayTimeout))
	}
	if c.Retrieval.MemoryLookupLimit <= 0 {
		errs = append(errs, fmt.Errorf("MEMORY_LOOKUP_LIMIT must be positive, got %d", c.Retrieval.MemoryLookupLimit))
	}
	if c.Classifier.SimilarityThreshold < 0 || c.Classifier.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("CLASSIFIER_SIMILARITY_THRESHOLD must be in [0.0, 1.0], got %f", c.Classifier.SimilarityThreshold))
	}
	switch c.Classifier.FollowUpMode {
	case "similarity", "llm":
	default:
		errs = append(errs, fmt.Errorf("unknown CLASSIFIER_FOLLOWUP_MODE %q", c.Classifier.FollowUpMode))
	}
	switch c.Classifier.SplitMode {
	case "heuristic", "llm":
	default:
		errs = append(errs, fmt.Errorf("unknown CLASSIFIER_SPLIT_MODE %q", c.Classifier.SplitMode))
	}
	switch c.Index.Backend {
	case IndexBackendSnapshot:
		if c.Index.SnapshotPath == "" {
			errs = append(errs, errors.New("INDEX_SNAPSHOT_PATH is required for the snapshot backend"))
		}
	case IndexBackendPgvector:
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.Index.Backend))
	}
	if c.Session.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_CAPACITY must be positive, got %d", c.Session.Capacity))
	}
	if c.Session.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("SESSION_MEMORY_MAX_TURNS must not be negative, got %d", c.Session.MaxTurns))
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT_MINUTES must not be negative, got %d", c.Session.IdleTimeout))
	}
	if c.Embedder.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_CACHE_SIZE must be positive, got %d", c.Embedder.CacheSize))
	}
	if c.LLM.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("LLM_RATE_PER_SECOND must not be negative, got %f", c.LLM.RatePerSecond))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
