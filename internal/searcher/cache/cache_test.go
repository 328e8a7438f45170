package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var flow = query.Boolean{Op: query.Or, Children: []query.Node{
	query.Term{Term: "flow", Fields: []string{"title"}},
	query.Term{Term: "wing", Fields: []string{"title"}},
}}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemBackend(), time.Minute, m)
	ctx := context.Background()

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return &executor.SearchResult{Parsed: flow.String(), TotalHits: 2, Hits: []executor.Hit{{DocID: 1, ID: "2", Score: 1.5}}}, nil
	}

	res, hit, err := c.GetOrCompute(ctx, "gen-1", flow, 10, compute)
	if err != nil || hit || res.TotalHits != 2 {
		t.Fatalf("first call: %+v hit=%v err=%v", res, hit, err)
	}
	res, hit, err = c.GetOrCompute(ctx, "gen-1", flow, 10, compute)
	if err != nil || !hit || res.Hits[0].ID != "2" || res.Hits[0].Score != 1.5 {
		t.Fatalf("second call: %+v hit=%v err=%v", res, hit, err)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times", calls)
	}

	if _, hit, _ := c.GetOrCompute(ctx, "gen-2", flow, 10, compute); hit {
		t.Error("a new generation must not hit entries of the old one")
	}
	if _, hit, _ := c.GetOrCompute(ctx, "gen-1", flow, 5, compute); hit {
		t.Error("a different limit must not hit")
	}
	if calls != 3 {
		t.Errorf("compute ran %d times, want 3", calls)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 3 {
		t.Errorf("stats = %d/%d", hits, misses)
	}
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute(context.Background(), "g", flow, 10, func() (*executor.SearchResult, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get(context.Background(), "g", flow, 10); ok {
		t.Error("failed computation was cached")
	}
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.fail = errors.New("connection refused")
	c := New(backend, time.Minute, nil)
	for i := 0; i < 10; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), "g", flow, 10, func() (*executor.SearchResult, error) {
			return &executor.SearchResult{TotalHits: 7}, nil
		})
		if err != nil || hit || res.TotalHits != 7 {
			t.Fatalf("call %d: %+v %v %v", i, res, hit, err)
		}
	}
}

func TestSingleflight(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return &executor.SearchResult{TotalHits: 1}, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(context.Background(), "g", flow, 10, compute)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("compute ran %d times", n)
	}
	if _, ok := c.Get(context.Background(), "g", flow, 10); !ok {
		t.Error("result not cached")
	}
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	c.Set(context.Background(), "g", flow, 10, &executor.SearchResult{})
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(backend.data) != 0 {
		t.Errorf("entries left: %v", backend.data)
	}
}

func TestKey(t *testing.T) {
	same := query.Boolean{Op: query.Or, Children: []query.Node{
		query.Term{Term: "flow", Fields: []string{"title"}},
		query.Term{Term: "wing", Fields: []string{"title"}},
	}}
	if Key("g", flow, 10) != Key("g", same, 10) {
		t.Error("equal trees produced different keys")
	}
	and := query.Boolean{Op: query.And, Children: same.Children}
	if Key("g", flow, 10) == Key("g", and, 10) {
		t.Error("AND and OR share a key")
	}
}
