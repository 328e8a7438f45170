package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
)

var fields = []string{"title", "author", "bibliography", "contentSubstance"}

func newServer(t *testing.T, finalize bool) *httptest.Server {
	t.Helper()
	engine, err := indexer.NewEngine(index.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []map[string]string{
		{"doc_id": "1", "title": "slipstream wing", "author": "brenckman,m."},
		{"doc_id": "2", "title": "shear flow past a flat plate"},
		{"doc_id": "3", "title": "boundary layer in shear flow"},
	} {
		if _, err := engine.AddDocument(d); err != nil {
			t.Fatal(err)
		}
	}
	if finalize {
		if _, err := engine.Finalize(); err != nil {
			t.Fatal(err)
		}
	}
	exec := executor.New(engine, executor.Options{Fields: fields, IDField: "doc_id", MaxConcurrent: 2}, nil)
	mux := http.NewServeMux()
	New(exec, engine, nil, 10, 100).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("%s: content type %q", path, ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s: decoding body: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestSearch(t *testing.T) {
	srv := newServer(t, true)
	var res executor.SearchResult
	code := get(t, srv, "/api/v1/search?q="+url.QueryEscape("shear AND flow")+"&limit=1", &res)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if res.TotalHits != 2 || len(res.Hits) != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Hits[0].ID != "2" && res.Hits[0].ID != "3" {
		t.Errorf("hit = %+v", res.Hits[0])
	}

	code = get(t, srv, "/api/v1/search?q=brenckman&fields=author", &res)
	if code != http.StatusOK || res.TotalHits != 1 || res.Hits[0].ID != "1" {
		t.Errorf("author search = %d %+v", code, res)
	}
}

func TestSearchTreatsReservedCharactersLiterally(t *testing.T) {
	srv := newServer(t, true)
	var res executor.SearchResult
	code := get(t, srv, "/api/v1/search?q="+url.QueryEscape(`"slipstream wing*"`), &res)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if res.TotalHits != 1 || res.Hits[0].ID != "1" {
		t.Errorf("result = %+v", res)
	}
}

func TestSearchErrors(t *testing.T) {
	srv := newServer(t, true)
	tests := []struct {
		name   string
		path   string
		status int
		pos    bool
	}{
		{"missing q", "/api/v1/search", http.StatusBadRequest, false},
		{"bad limit", "/api/v1/search?q=flow&limit=zero", http.StatusBadRequest, false},
		{"syntax", "/api/v1/search?q=" + url.QueryEscape("flow AND (wing"), http.StatusBadRequest, true},
		{"unknown field", "/api/v1/search?q=flow&fields=abstract", http.StatusBadRequest, true},
		{"bad document id", "/api/v1/documents/abc", http.StatusBadRequest, false},
		{"missing document", "/api/v1/documents/99", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			if code := get(t, srv, tt.path, &body); code != tt.status {
				t.Fatalf("status %d, want %d (%+v)", code, tt.status, body)
			}
			if body.Error == "" {
				t.Error("empty error message")
			}
			if tt.pos && body.Position == nil {
				t.Error("expected an error position")
			}
		})
	}
}

func TestNotReady(t *testing.T) {
	srv := newServer(t, false)
	var body errorBody
	if code := get(t, srv, "/api/v1/search?q=flow", &body); code != http.StatusServiceUnavailable {
		t.Errorf("search status %d", code)
	}
	if code := get(t, srv, "/api/v1/index", &body); code != http.StatusServiceUnavailable {
		t.Errorf("index status %d", code)
	}
}

func TestDocumentAndIndex(t *testing.T) {
	srv := newServer(t, true)
	var doc index.Document
	if code := get(t, srv, "/api/v1/documents/0", &doc); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if doc.Fields["title"] != "slipstream wing" {
		t.Errorf("doc = %+v", doc)
	}

	var stats map[string]any
	if code := get(t, srv, "/api/v1/index", &stats); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if stats["documents"] != float64(3) || stats["generation"] == "" {
		t.Errorf("stats = %v", stats)
	}

	var cacheStats map[string]string
	if code := get(t, srv, "/api/v1/cache/stats", &cacheStats); code != http.StatusOK || cacheStats["status"] != "disabled" {
		t.Errorf("cache stats = %d %v", code, cacheStats)
	}
}

func TestPatternsMatchRegisteredRoutes(t *testing.T) {
	h := New(nil, nil, nil, 10, 100)
	mux := http.NewServeMux()
	h.Register(mux)
	patterns := h.Patterns()
	if len(patterns) == 0 {
		t.Fatal("no patterns")
	}
	for _, p := range patterns {
		method, path, _ := strings.Cut(p, " ")
		req := httptest.NewRequest(method, strings.ReplaceAll(path, "{id}", "1"), nil)
		if _, got := mux.Handler(req); got != p {
			t.Errorf("%s routed to %q", p, got)
		}
	}
}
