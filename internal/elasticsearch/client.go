package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ErrNotFound is returned by GetAnalysis for unknown ids.
var ErrNotFound = errors.New("analysis not found")

const (
	analyzedAtField = "meta.analyzed_at"
	keywordsField   = "keywords"
	tickersField    = "facts.tickers"
)

var keywordType = map[string]any{"type": "keyword"}

// Mapping is the explicit index mapping. Fields filtered with terms queries
// are keyword typed so values match exactly, case and hyphens included.
func Mapping() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"schema":   keywordType,
				"hash":     keywordType,
				"version":  keywordType,
				"keywords": keywordType,
				"meta": map[string]any{
					"properties": map[string]any{
						"title":             map[string]any{"type": "text"},
						"url":               keywordType,
						"source_created_at": keywordType,
						"analyzed_at":       map[string]any{"type": "date"},
					},
				},
				"facts": map[string]any{
					"properties": map[string]any{
						"dates":   keywordType,
						"tickers": keywordType,
					},
				},
			},
		},
	}
}

// Client wraps go-elasticsearch with helpers for analysis records.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the analysis search query.
type SearchParams struct {
	Query    string
	Keywords []string
	Tickers  []string
	Entity   string
	From     int
	Size     int
	Sort     string
	Start    *time.Time
	End      *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64             `json:"total"`
	Items []models.Analysis `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the index with Mapping unless it already exists.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	payload, err := json.Marshal(Mapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		// Another service won the race.
		if strings.Contains(string(data), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexAnalysis stores an analysis under its content digest, so re-analysing
// identical text overwrites instead of duplicating.
func (c *Client) IndexAnalysis(ctx context.Context, analysis models.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: analysis.ID(),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index analysis: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index analysis failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Debug("indexed analysis", slog.String("id", analysis.ID()))
	return nil
}

// GetAnalysis fetches one analysis by digest.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	res, err := c.es.Get(c.index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get analysis failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Found  bool            `json:"found"`
		Source models.Analysis `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return nil, ErrNotFound
	}
	return &parsed.Source, nil
}

// BuildSearchBody renders the bool query behind SearchAnalyses.
func BuildSearchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 2)
	filters := make([]map[string]any, 0, 4)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"meta.title^2", "keywords^2", "sections.text"},
			},
		})
	}

	if params.Entity != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Entity,
				"type":   "phrase",
				"fields": []string{"facts.entities.ORG", "facts.entities.PERSON", "facts.entities.GPE"},
			},
		})
	}

	if len(params.Keywords) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{keywordsField: params.Keywords},
		})
	}

	if len(params.Tickers) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{tickersField: params.Tickers},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{analyzedAtField: rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	field, order := analyzedAtField, "desc"
	if params.Sort != "" {
		parts := strings.SplitN(params.Sort, ":", 2)
		if parts[0] != "" {
			field = parts[0]
		}
		if len(parts) > 1 && (parts[1] == "asc" || parts[1] == "desc") {
			order = parts[1]
		}
	}

	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{{field: map[string]any{"order": order}}},
	}
}

// SearchAnalyses executes a bool query with optional filters.
func (c *Client) SearchAnalyses(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(BuildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Analysis `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Analysis, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

// DeleteOlderThan removes analyses whose analyzed_at is older than maxAge,
// looping until a batch deletes fewer than batchSize records.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{analyzedAtField: map[string]any{"lte": cutoff}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var totalDeleted int64
	for {
		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		deleted, err := decodeDeleted(res)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted

		if deleted < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

func decodeDeleted(res *esapi.Response) (int64, error) {
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
