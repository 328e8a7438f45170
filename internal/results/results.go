// Package results writes ranked hits for batch query runs: TREC run files
// for trec_eval and JSON events on Kafka.
package results

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

// Writer receives the ranked hits of each query, best first.
type Writer interface {
	Write(ctx context.Context, queryID string, hits []executor.Hit) error
	Close() error
}

// TRECWriter emits one "qid 0 docid rank score tag" line per hit. Ranks
// start at 0.
type TRECWriter struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	tag     string
	metrics *metrics.Metrics
}

// NewTRECWriter writes to w. m may be nil.
func NewTRECWriter(w io.Writer, tag string, m *metrics.Metrics) *TRECWriter {
	tw := &TRECWriter{w: bufio.NewWriter(w), tag: tag, metrics: m}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	return tw
}

// CreateTRECFile creates (or truncates) path and its parent directories.
func CreateTRECFile(path, tag string, m *metrics.Metrics) (*TRECWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating results directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating results file %s: %w", path, err)
	}
	return NewTRECWriter(f, tag, m), nil
}

func (t *TRECWriter) Write(_ context.Context, queryID string, hits []executor.Hit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var line []byte
	for rank, h := range hits {
		line = line[:0]
		line = append(line, queryID...)
		line = append(line, " 0 "...)
		line = append(line, h.ID...)
		line = append(line, ' ')
		line = strconv.AppendInt(line, int64(rank), 10)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, h.Score, 'f', -1, 32)
		line = append(line, ' ')
		line = append(line, t.tag...)
		line = append(line, '\n')
		if _, err := t.w.Write(line); err != nil {
			return fmt.Errorf("writing results for query %s: %w", queryID, err)
		}
	}
	if t.metrics != nil {
		t.metrics.ResultsWrittenTotal.WithLabelValues("trec").Add(float64(len(hits)))
	}
	return nil
}

// Close flushes buffered lines and closes the underlying writer if it is
// an io.Closer.
func (t *TRECWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.w.Flush()
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	if err != nil {
		return fmt.Errorf("closing results: %w", err)
	}
	return nil
}

// Publisher is the subset of *kafka.Producer the Kafka writer needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

// Event is the JSON payload published for each query.
type Event struct {
	QueryID   string         `json:"query_id"`
	RunTag    string         `json:"run_tag"`
	Hits      []executor.Hit `json:"hits"`
	Timestamp time.Time      `json:"timestamp"`
}

// KafkaWriter publishes one Event per query keyed by query id, retrying
// transient broker failures.
type KafkaWriter struct {
	pub     Publisher
	tag     string
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewKafkaWriter(pub Publisher, tag string, m *metrics.Metrics) *KafkaWriter {
	return &KafkaWriter{
		pub:     pub,
		tag:     tag,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		metrics: m,
		now:     time.Now,
	}
}

func (k *KafkaWriter) Write(ctx context.Context, queryID string, hits []executor.Hit) error {
	ev := kafka.Event{
		Key: queryID,
		Value: Event{
			QueryID:   queryID,
			RunTag:    k.tag,
			Hits:      hits,
			Timestamp: k.now().UTC(),
		},
	}
	err := resilience.Retry(ctx, "publish-results", k.retry, func() error {
		return k.pub.Publish(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("publishing results for query %s: %w", queryID, err)
	}
	if k.metrics != nil {
		k.metrics.ResultsWrittenTotal.WithLabelValues("kafka").Add(float64(len(hits)))
	}
	return nil
}

func (k *KafkaWriter) Close() error {
	return k.pub.Close()
}

// MultiWriter fans every Write out to all writers in order, stopping at
// the first error.
type MultiWriter []Writer

func (m MultiWriter) Write(ctx context.Context, queryID string, hits []executor.Hit) error {
	for _, w := range m {
		if err := w.Write(ctx, queryID, hits); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}
