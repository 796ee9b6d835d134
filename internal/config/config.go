package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// loadDotenv seeds the environment from ./.env once. Variables already set win.
func loadDotenv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// Common contains storage parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
	SQLitePath         string
}

// Pipeline tunes the text analysis stages.
type Pipeline struct {
	MaxSectionWords int
	KeywordLimit    int
	LexiconFile     string
}

// Worker holds configuration for the Kafka -> analysis -> storage worker.
type Worker struct {
	Common
	Pipeline
	KafkaBrokers   []string
	KafkaTopic     string
	AnalysisTopic  string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Pipeline
	BindAddr      string
	DefaultPage   int
	MaxPage       int
	MaxBodyBytes  int64
	CacheCapacity int
	CacheTTL      time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Summarizer configures the generative explainer.
type Summarizer struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "analyses"),
		SQLitePath:         getEnv("SQLITE_PATH", "data/noise2signal.db"),
	}
}

// LoadCommon reads the storage settings alone, for tools that need no service config.
func LoadCommon() *Common {
	loadDotenv()
	c := loadCommon()
	return &c
}

// LoadPipeline reads the analysis tunables.
func LoadPipeline() (*Pipeline, error) {
	loadDotenv()
	c := &Pipeline{
		MaxSectionWords: getInt("NLP_MAX_SECTION_WORDS", 180),
		KeywordLimit:    getInt("NLP_KEYWORD_LIMIT", 12),
		LexiconFile:     getEnv("NLP_LEXICON_FILE", ""),
	}
	if c.MaxSectionWords <= 0 {
		return nil, fmt.Errorf("NLP_MAX_SECTION_WORDS must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("NLP_KEYWORD_LIMIT must be positive")
	}
	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common:         loadCommon(),
		Pipeline:       *p,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "documents"),
		AnalysisTopic:  getEnv("KAFKA_ANALYSIS_TOPIC", "analyses"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "nlp-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.KafkaTopic == c.AnalysisTopic {
		return nil, fmt.Errorf("KAFKA_ANALYSIS_TOPIC must differ from KAFKA_TOPIC")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	p, err := LoadPipeline()
	if err != nil {
		return nil, err
	}
	c := &API{
		Common:        loadCommon(),
		Pipeline:      *p,
		BindAddr:      getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:   getInt("API_PAGE_SIZE", 20),
		MaxPage:       getInt("API_MAX_PAGE_SIZE", 100),
		MaxBodyBytes:  int64(getInt("API_MAX_BODY_BYTES", 2<<20)),
		CacheCapacity: getInt("API_CACHE_CAPACITY", 1024),
		CacheTTL:      getDuration("API_CACHE_TTL", "1h"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("API_MAX_BODY_BYTES must be positive")
	}
	if c.CacheCapacity <= 0 {
		return nil, fmt.Errorf("API_CACHE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	loadDotenv()
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadSummarizer reads the Anthropic settings. The API key is only checked
// by the caller that actually talks to the model.
func LoadSummarizer() (*Summarizer, error) {
	loadDotenv()
	c := &Summarizer{
		APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		Model:       getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		MaxTokens:   getInt("SUMMARIZER_MAX_TOKENS", 800),
		Temperature: getFloat("SUMMARIZER_TEMPERATURE", 0.2),
		Timeout:     getDuration("SUMMARIZER_TIMEOUT", "60s"),
	}

	if c.MaxTokens <= 0 {
		return nil, fmt.Errorf("SUMMARIZER_MAX_TOKENS must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return nil, fmt.Errorf("SUMMARIZER_TEMPERATURE must be within [0, 1]")
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, fallback)); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
