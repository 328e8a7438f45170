// Package corpus reads documents and queries from their on-disk or
// database representations. It is the only package that knows the
// Cranfield record syntax.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
)

// IDField names the field holding a document's external id.
const IDField = "doc_id"

// Record is one document: field name to raw text, including IDField.
type Record struct {
	Fields map[string]string
}

// ID returns the record's external id.
func (r Record) ID() string {
	return r.Fields[IDField]
}

// Source streams records. Next returns io.EOF after the last record.
type Source interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Query is one entry of a query file.
type Query struct {
	ID   string
	Text string
}

// DocumentAdder is the indexing side of *indexer.Engine.
type DocumentAdder interface {
	AddDocument(fields map[string]string) (index.DocID, error)
}

// LoadStats summarises a Load.
type LoadStats struct {
	Indexed  int
	Rejected int
	Duration time.Duration
}

// Load feeds every record of src to dst. Records that fail to decode are
// logged and counted as rejected; any other error stops the load.
func Load(ctx context.Context, src Source, dst DocumentAdder) (LoadStats, error) {
	log := logger.WithComponent("corpus-loader")
	start := time.Now()
	var stats LoadStats
	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading record %d: %w", stats.Indexed+stats.Rejected+1, err)
		}
		if _, err := dst.AddDocument(rec.Fields); err != nil {
			if errors.Is(err, apperrors.ErrDecoding) {
				stats.Rejected++
				log.Warn("document rejected", "doc_id", rec.ID(), "error", err)
				continue
			}
			return stats, fmt.Errorf("indexing document %s: %w", rec.ID(), err)
		}
		stats.Indexed++
		if stats.Indexed%500 == 0 {
			log.Debug("indexing progress", "indexed", stats.Indexed)
		}
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records ...Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	s.pos++
	return s.records[s.pos-1], nil
}

func (s *SliceSource) Close() error { return nil }
