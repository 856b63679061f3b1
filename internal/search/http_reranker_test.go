package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRerankServer serves /health and /rerank with scores produced by score.
func newRerankServer(t *testing.T, score func(i int, doc string) float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := rerankResponse{Model: req.Model}
		for i, doc := range req.Documents {
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: score(i, doc)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReranker_Rerank(t *testing.T) {
	srv := newRerankServer(t, func(i int, _ string) float64 {
		return float64(10 - i)
	})

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "revenue growth",
		[]string{"doc a", "doc b", "doc c"})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 10.0, results[0].Score)
	assert.Equal(t, 8.0, results[2].Score)
	assert.True(t, r.Available(context.Background()))
}

func TestHTTPReranker_EmptyDocumentsSkipsRequest(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rerank" {
			requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "query", nil)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int64(0), requests.Load())
}

func TestHTTPReranker_ScoreCountMismatch(t *testing.T) {
	// Server drops one score from every response.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"score":0.5}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Rerank(context.Background(), "query", []string{"a", "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 documents")
}

func TestHTTPReranker_ServerErrorSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Rerank(context.Background(), "query", []string{"a"})

	require.Error(t, err)
}

func TestHTTPReranker_UnhealthyServiceFailsCreation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")
}

func TestHTTPReranker_ClosedClientErrors(t *testing.T) {
	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{
		Endpoint:        "http://localhost:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Rerank(context.Background(), "query", []string{"a"})

	require.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}
