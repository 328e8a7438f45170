// Package executor runs free-text queries end to end: it parses them with
// the analysis schema of the published index, ranks the query tree, and
// resolves internal ids to the documents' external ids. Batches run
// concurrently against one pinned index snapshot.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

type Hit struct {
	DocID index.DocID `json:"doc_id"`
	// ID is the document's external id, taken from the configured id field.
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type SearchResult struct {
	Query      string `json:"query"`
	Parsed     string `json:"parsed"`
	TotalHits  int    `json:"total_hits"`
	Hits       []Hit  `json:"hits"`
	Generation string `json:"generation"`
}

// Query is one entry of a batch run.
type Query struct {
	ID   string
	Text string
}

// BatchResult pairs a batch query with its outcome. Exactly one of Result
// and Err is set.
type BatchResult struct {
	Query  Query
	Result *SearchResult
	Err    error
}

// StoreSource publishes the index to search. *indexer.Engine implements it.
type StoreSource interface {
	Store() *index.Store
}

// ResultCache memoizes results per index generation and parsed query.
type ResultCache interface {
	GetOrCompute(ctx context.Context, generation string, node query.Node, limit int,
		compute func() (*SearchResult, error)) (*SearchResult, bool, error)
}

type Options struct {
	Fields          []string
	DefaultOperator query.Op
	// IDField holds the external document id. Documents without it are
	// reported by their decimal internal id.
	IDField string
	// MaxConcurrent bounds the queries a batch runs at once.
	MaxConcurrent int
	// Timeout bounds ranking a single query; zero disables it.
	Timeout time.Duration
}

type Executor struct {
	src     StoreSource
	opts    Options
	cache   ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an executor over src. m may be nil.
func New(src StoreSource, opts Options, m *metrics.Metrics) *Executor {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Executor{
		src:     src,
		opts:    opts,
		metrics: m,
		logger:  logger.WithComponent("query-executor"),
	}
}

// WithCache enables result caching.
func (e *Executor) WithCache(c ResultCache) *Executor {
	e.cache = c
	return e
}

// Execute parses raw against fields (or the configured fields when empty)
// and returns the top limit hits.
func (e *Executor) Execute(ctx context.Context, raw string, fields []string, limit int) (*SearchResult, error) {
	store := e.src.Store()
	if !store.Ready() {
		e.count("error")
		return nil, apperrors.ErrIndexNotReady
	}
	return e.execute(ctx, store, raw, fields, limit)
}

// Run executes queries concurrently against a single index snapshot and
// returns one BatchResult per query in input order. Per-query failures are
// reported in their BatchResult; Run itself fails only when the index is
// not ready or ctx ends.
func (e *Executor) Run(ctx context.Context, queries []Query, limit int) ([]BatchResult, error) {
	store := e.src.Store()
	if !store.Ready() {
		return nil, apperrors.ErrIndexNotReady
	}
	ctx, span := tracing.StartChildSpan(ctx, "batch-run")
	defer span.End()
	out := make([]BatchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrent)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.execute(gctx, store, q.Text, nil, limit)
			out[i] = BatchResult{Query: q, Result: res, Err: err}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch run: %w", err)
	}
	failed := 0
	for _, r := range out {
		if r.Err != nil {
			failed++
			e.logger.Warn("query failed", "query_id", r.Query.ID, "error", r.Err)
		}
	}
	span.SetAttr("queries", len(queries))
	span.SetAttr("failed", failed)
	span.End()
	e.logger.Info("batch run complete",
		"queries", len(queries),
		"failed", failed,
		"generation", store.Generation(),
		"duration_ms", span.Duration.Milliseconds(),
	)
	return out, nil
}

// Document returns the stored fields of an internal id.
func (e *Executor) Document(id index.DocID) (index.Document, error) {
	store := e.src.Store()
	if !store.Ready() {
		return index.Document{}, apperrors.ErrIndexNotReady
	}
	return store.Document(id)
}

func (e *Executor) execute(ctx context.Context, store *index.Store, raw string, fields []string, limit int) (*SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query")
	defer span.End()
	if limit < 0 {
		e.count("error")
		return nil, fmt.Errorf("%w: limit must be >= 0, got %d", apperrors.ErrInvalidInput, limit)
	}
	p := parser.New(store.Schema(), parser.Options{
		DefaultOperator: e.opts.DefaultOperator,
		Fields:          e.opts.Fields,
	})
	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	node, err := p.Parse(raw, fields)
	parseSpan.End()
	if err != nil {
		e.count("error")
		span.SetAttr("error", err.Error())
		return nil, err
	}

	cacheStatus := "none"
	var res *SearchResult
	if e.cache != nil {
		cctx, cacheSpan := tracing.StartChildSpan(ctx, "cache")
		var hit bool
		res, hit, err = e.cache.GetOrCompute(cctx, store.Generation(), node, limit, func() (*SearchResult, error) {
			return e.rank(cctx, store, node, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		cacheSpan.SetAttr("status", cacheStatus)
		cacheSpan.End()
	} else {
		res, err = e.rank(ctx, store, node, limit)
	}
	if err != nil {
		e.count("error")
		span.SetAttr("error", err.Error())
		return nil, err
	}
	span.SetAttr("total_hits", res.TotalHits)
	span.End()

	// Cached results are shared; hand out a copy carrying this caller's text.
	out := *res
	out.Query = raw
	if e.metrics != nil {
		e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(span.Duration.Seconds())
		e.metrics.SearchResultsCount.Observe(float64(out.TotalHits))
	}
	if out.TotalHits == 0 {
		e.count("empty")
	} else {
		e.count("hits")
	}
	e.logger.Debug("query executed",
		"query", raw,
		"parsed", out.Parsed,
		"total_hits", out.TotalHits,
		"cache", cacheStatus,
		"duration_ms", span.Duration.Milliseconds(),
	)
	return &out, nil
}

func (e *Executor) rank(ctx context.Context, store *index.Store, node query.Node, limit int) (*SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "rank")
	defer span.End()
	var ranked ranker.Result
	err := resilience.WithTimeout(ctx, e.opts.Timeout, "rank", func(ctx context.Context) error {
		var err error
		ranked, err = ranker.RankContext(ctx, store, node, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(ranked.Hits))
	for i, h := range ranked.Hits {
		hits[i] = Hit{DocID: h.DocID, ID: e.externalID(store, h.DocID), Score: h.Score}
	}
	return &SearchResult{
		Parsed:     node.String(),
		TotalHits:  ranked.TotalHits,
		Hits:       hits,
		Generation: store.Generation(),
	}, nil
}

func (e *Executor) externalID(store *index.Store, id index.DocID) string {
	if e.opts.IDField != "" {
		if doc, err := store.Document(id); err == nil {
			if v := doc.Fields[e.opts.IDField]; v != "" {
				return v
			}
		}
	}
	return strconv.FormatUint(uint64(id), 10)
}

func (e *Executor) count(resultType string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
