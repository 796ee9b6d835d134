package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/noise-to-signal/internal/elasticsearch"
	"github.com/DeafMist/noise-to-signal/internal/models"
)

// fakeES serves the handful of index and document endpoints the client uses.
type fakeES struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	indices map[string]json.RawMessage
	creates int
}

func (f *fakeES) serveIndex(w http.ResponseWriter, r *http.Request, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.indices[name]
	switch r.Method {
	case http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		if exists {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"resource_already_exists_exception"},"status":400}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.indices[name] = body
		f.creates++
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && f.indices != nil {
		f.serveIndex(w, r, parts[0])
		return
	}
	if len(parts) != 3 || parts[1] != "_doc" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
		return
	}
	id := parts[2]

	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.docs[id] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case http.MethodGet:
		doc, ok := f.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"found":false}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"found": true, "_source": doc})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestIndexAndGetAnalysis(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := elasticsearch.New(srv.URL, "analyses", nil)
	require.NoError(t, err)

	analysis := models.Analysis{
		Schema:   models.AnalysisSchema,
		Keywords: []string{"rates"},
		Hash:     "sha256:abc123",
		Version:  models.AnalysisVersion,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.IndexAnalysis(ctx, analysis))
	require.Contains(t, fake.docs, "abc123")

	got, err := client.GetAnalysis(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, analysis.Hash, got.Hash)
	require.Equal(t, []string{"rates"}, got.Keywords)

	_, err = client.GetAnalysis(ctx, "missing")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}

func TestBuildSearchBodyDefaults(t *testing.T) {
	body := elasticsearch.BuildSearchBody(elasticsearch.SearchParams{Size: 1000, From: -5})

	require.Equal(t, 200, body["size"])
	require.Equal(t, 0, body["from"])
	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Contains(t, query, "must")
	require.NotContains(t, query, "filter")
	sort := body["sort"].([]map[string]any)
	require.Equal(t, map[string]any{"order": "desc"}, sort[0]["meta.analyzed_at"])
}

func TestBuildSearchBodyFilters(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	body := elasticsearch.BuildSearchBody(elasticsearch.SearchParams{
		Query:    "inflation",
		Keywords: []string{"rates"},
		Tickers:  []string{"AAPL"},
		Entity:   "Federal Reserve",
		Start:    &start,
		Size:     10,
		Sort:     "stats.words:asc",
	})

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Len(t, query["must"], 2)
	require.Len(t, query["filter"], 3)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"facts.tickers":["AAPL"]`)
	require.Contains(t, string(raw), `"gte":"2024-01-01T00:00:00Z"`)
	require.Contains(t, string(raw), `"stats.words":{"order":"asc"}`)
}

// fieldType resolves a dotted field path against an index mapping body.
func fieldType(t *testing.T, mapping map[string]any, path string) string {
	t.Helper()
	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	parts := strings.Split(path, ".")
	for i, part := range parts {
		field, ok := props[part].(map[string]any)
		require.True(t, ok, "field %s is not mapped", path)
		if i == len(parts)-1 {
			typ, _ := field["type"].(string)
			return typ
		}
		props = field["properties"].(map[string]any)
	}
	return ""
}

func TestEnsureIndexCreatesMappingOnce(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}, indices: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := elasticsearch.New(srv.URL, "analyses", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.EnsureIndex(ctx))
	require.NoError(t, client.EnsureIndex(ctx))
	require.Equal(t, 1, fake.creates)

	var created map[string]any
	require.NoError(t, json.Unmarshal(fake.indices["analyses"], &created))
	for _, field := range []string{"hash", "version", "keywords", "facts.tickers"} {
		require.Equal(t, "keyword", fieldType(t, created, field), field)
	}
	require.Equal(t, "date", fieldType(t, created, "meta.analyzed_at"))
}

func TestEnsureIndexToleratesConcurrentCreate(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}, indices: map[string]json.RawMessage{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Another service creates the index between the existence check and ours.
		if r.Method == http.MethodPut {
			fake.mu.Lock()
			fake.indices["analyses"] = json.RawMessage(`{}`)
			fake.mu.Unlock()
		}
		fake.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client, err := elasticsearch.New(srv.URL, "analyses", nil)
	require.NoError(t, err)
	require.NoError(t, client.EnsureIndex(context.Background()))
	require.Zero(t, fake.creates)
}

func TestSearchFiltersUseExactMatchFields(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	body := elasticsearch.BuildSearchBody(elasticsearch.SearchParams{
		Keywords: []string{"Rate-Hike"},
		Tickers:  []string{"AAPL"},
		Start:    &start,
	})
	mapping := elasticsearch.Mapping()

	filters := body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]map[string]any)
	var termFields []string
	for _, f := range filters {
		if terms, ok := f["terms"].(map[string]any); ok {
			for field := range terms {
				termFields = append(termFields, field)
				require.Equal(t, "keyword", fieldType(t, mapping, field), field)
			}
		}
		if r, ok := f["range"].(map[string]any); ok {
			for field := range r {
				require.Equal(t, "date", fieldType(t, mapping, field), field)
			}
		}
	}
	require.ElementsMatch(t, []string{"keywords", "facts.tickers"}, termFields)
	require.Equal(t, "date", fieldType(t, mapping, "meta.analyzed_at"))
}
