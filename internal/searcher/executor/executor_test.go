package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

var fields = []string{"title", "author", "bibliography", "contentSubstance"}

func newEngine(t testing.TB) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngine(index.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	docs := []map[string]string{
		{"doc_id": "101", "title": "experimental investigation of the aerodynamics of a wing in a slipstream", "contentSubstance": "the slipstream wing problem"},
		{"doc_id": "102", "title": "simple shear flow past a flat plate", "contentSubstance": "shear flow boundary layer"},
		{"doc_id": "103", "title": "the boundary layer in simple shear flow", "contentSubstance": "boundary layer theory for shear flow"},
		{"title": "supersonic flow"},
	}
	for _, d := range docs {
		if _, err := e.AddDocument(d); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Finalize(); err != nil {
		t.Fatal(err)
	}
	return e
}

func newExecutor(t testing.TB, m *metrics.Metrics) *Executor {
	return New(newEngine(t), Options{Fields: fields, IDField: "doc_id", MaxConcurrent: 4}, m)
}

func TestExecute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ex := newExecutor(t, m)
	res, err := ex.Execute(context.Background(), "shear flow", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 3 || len(res.Hits) != 3 {
		t.Fatalf("hits = %+v", res)
	}
	ids := map[string]bool{}
	for _, h := range res.Hits {
		ids[h.ID] = true
	}
	if !ids["102"] || !ids["103"] {
		t.Errorf("ids = %v", ids)
	}
	if !ids["3"] {
		t.Errorf("doc without doc_id should use its internal id: %v", ids)
	}
	for i := 1; i < len(res.Hits); i++ {
		if res.Hits[i].Score > res.Hits[i-1].Score {
			t.Errorf("hits not sorted: %+v", res.Hits)
		}
	}
	if res.Query != "shear flow" || res.Parsed == "" || res.Generation == "" {
		t.Errorf("result metadata = %+v", res)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hits")); got != 1 {
		t.Errorf("search_queries_total{hits} = %v", got)
	}
}

func TestExecuteFieldScopeAndLimit(t *testing.T) {
	ex := newExecutor(t, nil)
	res, err := ex.Execute(context.Background(), "slipstream", []string{"contentSubstance"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 1 || res.Hits[0].ID != "101" {
		t.Errorf("field scoped result = %+v", res)
	}
	res, err = ex.Execute(context.Background(), "flow", nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 3 || len(res.Hits) != 1 {
		t.Errorf("limit 1: total=%d hits=%d", res.TotalHits, len(res.Hits))
	}
	res, err = ex.Execute(context.Background(), "the of", nil, 10)
	if err != nil || res.TotalHits != 0 || len(res.Hits) != 0 {
		t.Errorf("stop words only = %+v, %v", res, err)
	}
}

func TestExecuteErrors(t *testing.T) {
	ex := newExecutor(t, nil)
	ctx := context.Background()
	if _, err := ex.Execute(ctx, "(flow", nil, 10); !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("unbalanced group = %v", err)
	}
	if _, err := ex.Execute(ctx, "flow", []string{"abstract"}, 10); !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("unknown field = %v", err)
	}
	if _, err := ex.Execute(ctx, "flow", nil, -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative limit = %v", err)
	}
	if _, err := ex.Execute(ctx, "fl\xffow", nil, 10); !errors.Is(err, apperrors.ErrDecoding) {
		t.Errorf("invalid utf-8 = %v", err)
	}

	empty, err := indexer.NewEngine(index.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	notReady := New(empty, Options{Fields: fields}, nil)
	if _, err := notReady.Execute(ctx, "flow", nil, 10); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("unready index = %v", err)
	}
	if _, err := notReady.Run(ctx, []Query{{ID: "1", Text: "flow"}}, 10); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Errorf("unready batch = %v", err)
	}
}

func TestRunPreservesOrder(t *testing.T) {
	ex := newExecutor(t, nil)
	var queries []Query
	for i := 0; i < 40; i++ {
		text := []string{"shear flow", "wing slipstream", "boundary AND layer", "bad AND"}[i%4]
		queries = append(queries, Query{ID: fmt.Sprint(i + 1), Text: text})
	}
	results, err := ex.Run(context.Background(), queries, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(queries) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Query != queries[i] {
			t.Fatalf("result %d belongs to %+v", i, r.Query)
		}
		if i%4 == 3 {
			if !errors.Is(r.Err, apperrors.ErrInvalidQuery) {
				t.Errorf("query %s: err = %v", r.Query.ID, r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("query %s: %v", r.Query.ID, r.Err)
			continue
		}
		single, err := ex.Execute(context.Background(), r.Query.Text, nil, 5)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(single.Hits) != fmt.Sprint(r.Result.Hits) {
			t.Errorf("query %s: batch %v != single %v", r.Query.ID, r.Result.Hits, single.Hits)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ex := newExecutor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ex.Run(ctx, []Query{{ID: "1", Text: "flow"}}, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestDocument(t *testing.T) {
	ex := newExecutor(t, nil)
	doc, err := ex.Document(1)
	if err != nil || doc.Fields["doc_id"] != "102" {
		t.Errorf("document 1 = %+v, %v", doc, err)
	}
	if _, err := ex.Document(99); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing document = %v", err)
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*SearchResult
}

func (c *mapCache) GetOrCompute(_ context.Context, generation string, node query.Node, limit int,
	compute func() (*SearchResult, error)) (*SearchResult, bool, error) {
	key := fmt.Sprintf("%s|%s|%d", generation, node, limit)
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.entries[key]; ok {
		return r, true, nil
	}
	r, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.entries[key] = r
	return r, false, nil
}

func TestExecuteWithCache(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := &mapCache{entries: map[string]*SearchResult{}}
	ex := newExecutor(t, m).WithCache(c)
	first, err := ex.Execute(context.Background(), "shear flow", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	// Same tree, written differently.
	second, err := ex.Execute(context.Background(), "shear OR flow", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.entries) != 1 {
		t.Errorf("cache entries = %d, want 1", len(c.entries))
	}
	if second.Query != "shear OR flow" || first.Query != "shear flow" {
		t.Errorf("queries = %q, %q", first.Query, second.Query)
	}
	if testutil.CollectAndCount(m.SearchLatency) != 2 {
		t.Errorf("expected hit and miss latency series")
	}
}

func spanNames(spans []*tracing.Span) []string {
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	return names
}

func TestExecuteRecordsSpans(t *testing.T) {
	c := &mapCache{entries: map[string]*SearchResult{}}
	ex := newExecutor(t, nil).WithCache(c)
	ctx, root := tracing.StartSpan(context.Background(), "request", "trace-7")
	if _, err := ex.Execute(ctx, "shear flow", nil, 10); err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 {
		t.Fatalf("root children = %v", spanNames(root.Children))
	}
	q := root.Children[0]
	if q.Name != "query" || q.TraceID != "trace-7" || q.Attrs["total_hits"] != 3 {
		t.Errorf("query span = %q %q %v", q.Name, q.TraceID, q.Attrs)
	}
	if got := fmt.Sprint(spanNames(q.Children)); got != "[parse cache]" {
		t.Fatalf("query children = %s", got)
	}
	cache := q.Children[1]
	if cache.Attrs["status"] != "miss" || fmt.Sprint(spanNames(cache.Children)) != "[rank]" {
		t.Errorf("cache span attrs %v children %v", cache.Attrs, spanNames(cache.Children))
	}
	for _, s := range append(q.Children, q) {
		if s.EndTime.IsZero() {
			t.Errorf("span %q not ended", s.Name)
		}
	}
}

func TestRunNestsQuerySpans(t *testing.T) {
	ex := newExecutor(t, nil)
	ctx, root := tracing.StartSpan(context.Background(), "cranfield", "")
	queries := []Query{{ID: "1", Text: "shear"}, {ID: "2", Text: "wing"}, {ID: "3", Text: "plate"}}
	if _, err := ex.Run(ctx, queries, 5); err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 || root.Children[0].Name != "batch-run" {
		t.Fatalf("root children = %v", spanNames(root.Children))
	}
	batch := root.Children[0]
	if len(batch.Children) != len(queries) || batch.Attrs["queries"] != len(queries) {
		t.Errorf("batch span children %d attrs %v", len(batch.Children), batch.Attrs)
	}
}
