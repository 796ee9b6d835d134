package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/noise-to-signal/internal/config"
)

func TestLoadWorkerDefaults(t *testing.T) {
	for _, key := range []string{"ELASTICSEARCH_ADDR", "ELASTICSEARCH_INDEX", "SQLITE_PATH", "KAFKA_BROKERS",
		"KAFKA_TOPIC", "KAFKA_ANALYSIS_TOPIC", "KAFKA_CONSUMER_GROUP", "NLP_MAX_SECTION_WORDS", "NLP_KEYWORD_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "analyses", cfg.ElasticsearchIndex)
	require.Equal(t, "data/noise2signal.db", cfg.SQLitePath)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "documents", cfg.KafkaTopic)
	require.Equal(t, "analyses", cfg.AnalysisTopic)
	require.Equal(t, "nlp-worker", cfg.KafkaConsumer)
	require.Equal(t, 180, cfg.MaxSectionWords)
	require.Equal(t, 12, cfg.KeywordLimit)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "docs_in")
	t.Setenv("KAFKA_ANALYSIS_TOPIC", "docs_out")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("NLP_KEYWORD_LIMIT", "8")
	t.Setenv("NLP_MAX_SECTION_WORDS", "90")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.KafkaBrokers)
	require.Equal(t, "docs_in", cfg.KafkaTopic)
	require.Equal(t, "docs_out", cfg.AnalysisTopic)
	require.Equal(t, 8, cfg.KeywordLimit)
	require.Equal(t, 90, cfg.MaxSectionWords)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
}

func TestLoadWorkerRejectsSameTopic(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "same")
	t.Setenv("KAFKA_ANALYSIS_TOPIC", "same")
	_, err := config.LoadWorker()
	require.ErrorContains(t, err, "KAFKA_ANALYSIS_TOPIC")
}

func TestLoadPipelineRejectsNonPositive(t *testing.T) {
	t.Setenv("NLP_KEYWORD_LIMIT", "0")
	_, err := config.LoadPipeline()
	require.ErrorContains(t, err, "NLP_KEYWORD_LIMIT")
}

func TestLoadAPI(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "200")
	t.Setenv("API_CACHE_TTL", "10m")
	t.Setenv("ELASTICSEARCH_ADDR", "http://api-es:9200")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 200, cfg.MaxPage)
	require.Equal(t, 10*time.Minute, cfg.CacheTTL)
	require.Equal(t, int64(2<<20), cfg.MaxBodyBytes)
	require.Equal(t, "http://api-es:9200", cfg.ElasticsearchAddr)
}

func TestLoadAPIPageBounds(t *testing.T) {
	t.Setenv("API_PAGE_SIZE", "50")
	t.Setenv("API_MAX_PAGE_SIZE", "10")
	_, err := config.LoadAPI()
	require.Error(t, err)
}

func TestLoadRetention(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/n2s.db")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, "/tmp/n2s.db", cfg.SQLitePath)
}

func TestLoadSummarizer(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "key")
	t.Setenv("SUMMARIZER_TEMPERATURE", "0.5")
	t.Setenv("SUMMARIZER_TIMEOUT", "bogus")

	cfg, err := config.LoadSummarizer()
	require.NoError(t, err)
	require.Equal(t, "key", cfg.APIKey)
	require.Equal(t, 0.5, cfg.Temperature)
	require.Equal(t, 60*time.Second, cfg.Timeout)
	require.Equal(t, 800, cfg.MaxTokens)

	t.Setenv("SUMMARIZER_TEMPERATURE", "2")
	_, err = config.LoadSummarizer()
	require.Error(t, err)
}

func TestLoadCommon(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/n2s.db")
	t.Setenv("ELASTICSEARCH_INDEX", "")

	cfg := config.LoadCommon()
	require.Equal(t, "/tmp/n2s.db", cfg.SQLitePath)
	require.Equal(t, "analyses", cfg.ElasticsearchIndex)
}
