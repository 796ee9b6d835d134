package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/dedupe"
	"github.com/DeafMist/noise-to-signal/internal/elasticsearch"
	"github.com/DeafMist/noise-to-signal/internal/logger"
	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/processing"
	"github.com/DeafMist/noise-to-signal/internal/store"
)

type analysisIndexer interface {
	IndexAnalysis(ctx context.Context, analysis models.Analysis) error
}

type eventStore interface {
	Save(ctx context.Context, rawText, source string, analysis models.Analysis) (*store.Event, error)
	ByHash(ctx context.Context, hash string) (*store.Event, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// pipeline turns one document:v1 message into an indexed, persisted and
// republished analysis:v1.
type pipeline struct {
	log      *slog.Logger
	analyzer *processing.Analyzer
	index    analysisIndexer
	events   eventStore
	out      messageWriter
	// seen maps analysis hashes to the event id they were stored under.
	seen *dedupe.Cache[string]
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	analyzer, err := processing.FromPipeline(&cfg.Pipeline)
	if err != nil {
		log.Error("init analyzer", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = esClient.EnsureIndex(indexCtx)
	cancel()
	if err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	events, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer events.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	analysisWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.AnalysisTopic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	defer analysisWriter.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	p := &pipeline{
		log:      log,
		analyzer: analyzer,
		index:    esClient,
		events:   events,
		out:      analysisWriter,
		seen:     dedupe.NewCache[string](cfg.DedupeCapacity, cfg.DedupeTTL),
	}

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("analysis_topic", cfg.AnalysisTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := p.process(ctx, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Only commit once the DLQ holds the message; otherwise it is reprocessed on restart.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func (p *pipeline) process(ctx context.Context, msg kafka.Message) error {
	doc, err := processing.DecodeDocument(msg.Value)
	if err != nil {
		return err
	}

	hash := processing.Digest(doc.Content.Text)
	if eventID, ok := p.seen.Get(hash); ok {
		p.log.Debug("duplicate document", slog.String("hash", hash), slog.String("event_id", eventID))
		return nil
	}

	analysis, err := p.analyzer.Analyze(doc)
	if err != nil {
		return err
	}

	if err := p.index.IndexAnalysis(ctx, analysis); err != nil {
		return err
	}

	event, err := p.saveOnce(ctx, msg, doc, analysis)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	out := kafka.Message{
		Key:   []byte(analysis.ID()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "label", Value: []byte(event.Label)},
		},
	}
	if err := p.out.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("publish analysis: %w", err)
	}

	p.seen.MarkSeen(hash, event.ID)
	p.log.Info("analyzed document",
		slog.String("hash", analysis.Hash),
		slog.String("event_id", event.ID),
		slog.String("label", event.Label),
		slog.Int("words", analysis.Stats.Words),
	)
	return nil
}

// saveOnce reuses the event already stored for the analysis hash, so a
// message replayed after a failed publish does not duplicate rows.
func (p *pipeline) saveOnce(ctx context.Context, msg kafka.Message, doc models.Document, analysis models.Analysis) (*store.Event, error) {
	event, err := p.events.ByHash(ctx, analysis.Hash)
	switch {
	case err == nil:
		p.log.Debug("event already stored", slog.String("hash", analysis.Hash), slog.String("event_id", event.ID))
		return event, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup event: %w", err)
	}

	event, err = p.events.Save(ctx, doc.Content.Text, messageSource(msg, doc), analysis)
	if err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}
	return event, nil
}

// messageSource prefers an explicit "source" header, then the document URL,
// then the topic the message came from.
func messageSource(msg kafka.Message, doc models.Document) string {
	for _, h := range msg.Headers {
		if h.Key == "source" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	if doc.Meta.URL != nil && *doc.Meta.URL != "" {
		return *doc.Meta.URL
	}
	return "kafka:" + msg.Topic
}

// sendToDLQ writes msg with error context to the dead letter topic, retrying
// five times with exponential backoff. It reports whether the write landed.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, backoff time.Duration) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		wait := backoff << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
