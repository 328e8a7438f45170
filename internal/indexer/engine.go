// Package indexer owns the index lifecycle. An Engine moves from Empty to
// Building as documents arrive and to Ready once finalized, after which it
// serves searches from an immutable Store published through an atomic
// pointer.
package indexer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
)

type State int32

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Engine struct {
	// mu serialises the writer side: AddDocument, Finalize, Compact and
	// Replace. Readers only touch state and store.
	mu      sync.Mutex
	opts    index.Options
	builder *index.Builder
	state   atomic.Int32
	store   atomic.Pointer[index.Store]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine returns an Empty engine. m may be nil.
func NewEngine(opts index.Options, m *metrics.Metrics) (*Engine, error) {
	b, err := index.NewBuilder(opts)
	if err != nil {
		return nil, fmt.Errorf("creating index builder: %w", err)
	}
	return &Engine{
		opts:    opts,
		builder: b,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}, nil
}

// Open loads a saved index and returns an engine that is already Ready.
func Open(path string, m *metrics.Metrics) (*Engine, error) {
	start := time.Now()
	store, err := segment.Load(path)
	if err != nil {
		if m != nil {
			m.IndexOperations.WithLabelValues("open", "error").Inc()
		}
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	e := &Engine{
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	e.publish(store)
	e.state.Store(int32(StateReady))
	if m != nil {
		m.IndexOperations.WithLabelValues("open", "ok").Inc()
	}
	e.logger.Info("index loaded",
		"path", path,
		"docs", store.NumDocs(),
		"generation", store.Generation(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return e, nil
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Store returns the published store, or nil before the engine is Ready.
func (e *Engine) Store() *index.Store {
	return e.store.Load()
}

// AddDocument indexes fields under the next DocID. Documents that fail to
// analyze are rejected without consuming an id.
func (e *Engine) AddDocument(fields map[string]string) (index.DocID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == StateReady {
		return 0, apperrors.ErrAlreadyFinalized
	}
	sealedBefore := e.builder.Segments()
	id, err := e.builder.AddDocument(fields)
	if err != nil {
		if e.metrics != nil {
			e.metrics.DocsRejectedTotal.Inc()
		}
		return 0, err
	}
	e.state.Store(int32(StateBuilding))
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
		if sealed := e.builder.Segments() - sealedBefore; sealed > 0 {
			e.metrics.SegmentsSealedTotal.Add(float64(sealed))
		}
	}
	return id, nil
}

// Finalize seals the index and makes it searchable. Finalizing an Empty
// engine yields an empty Ready index. A second call returns
// ErrAlreadyFinalized and leaves the Ready index untouched.
func (e *Engine) Finalize() (*index.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == StateReady {
		e.observe("finalize", apperrors.ErrAlreadyFinalized)
		return nil, apperrors.ErrAlreadyFinalized
	}
	store, err := e.builder.Finalize()
	if err != nil {
		e.observe("finalize", err)
		return nil, fmt.Errorf("finalizing index: %w", err)
	}
	e.builder = nil
	e.publish(store)
	e.state.Store(int32(StateReady))
	e.observe("finalize", nil)
	return store, nil
}

// Search ranks node against the Ready index.
func (e *Engine) Search(node query.Node, topK int) ([]ranker.Hit, error) {
	if e.State() != StateReady {
		return nil, apperrors.ErrIndexNotReady
	}
	return ranker.Search(e.store.Load(), node, topK)
}

// Compact merges the published store's segments and swaps the result in.
// In-flight searches keep using the store they started with.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() != StateReady {
		return apperrors.ErrIndexNotReady
	}
	before := e.store.Load()
	after := before.Compact()
	e.publish(after)
	e.observe("compact", nil)
	e.logger.Info("index compacted",
		"segments_before", before.Segments(),
		"segments_after", after.Segments(),
	)
	return nil
}

// Save persists the Ready index to path.
func (e *Engine) Save(path string) (segment.Header, error) {
	if e.State() != StateReady {
		return segment.Header{}, apperrors.ErrIndexNotReady
	}
	store := e.store.Load()
	header, err := segment.Write(path, store)
	e.observe("save", err)
	if err != nil {
		return segment.Header{}, fmt.Errorf("saving index: %w", err)
	}
	e.logger.Info("index saved",
		"path", path,
		"terms", header.TermCount,
		"docs", header.DocCount,
		"generation", store.Generation(),
	)
	return header, nil
}

// Replace swaps in a store built elsewhere, for example a freshly loaded
// file. Only Ready engines accept a replacement.
func (e *Engine) Replace(store *index.Store) error {
	if !store.Ready() {
		return fmt.Errorf("%w: replacement store is not finalized", apperrors.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() != StateReady {
		return apperrors.ErrIndexNotReady
	}
	old := e.store.Load()
	e.publish(store)
	e.logger.Info("index replaced",
		"old_generation", old.Generation(),
		"new_generation", store.Generation(),
		"docs", store.NumDocs(),
	)
	return nil
}

func (e *Engine) publish(store *index.Store) {
	e.store.Store(store)
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(store.NumDocs()))
		e.metrics.IndexSegments.Set(float64(store.Segments()))
	}
}

func (e *Engine) observe(op string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.IndexOperations.WithLabelValues(op, status).Inc()
}
