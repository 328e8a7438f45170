package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Document is a stored document: its id and the raw text of every field it
// was indexed with.
type Document struct {
	ID     DocID             `json:"id"`
	Fields map[string]string `json:"fields"`
}

// FieldStats summarises one field over the collection.
type FieldStats struct {
	DocCount  int   `json:"doc_count"`
	SumLength int64 `json:"sum_length"`
}

// AvgLength is the mean field length over documents that have the field.
func (fs FieldStats) AvgLength() float64 {
	if fs.DocCount == 0 {
		return 0
	}
	return float64(fs.SumLength) / float64(fs.DocCount)
}

// Store is a finalized, read-only index. Every method is safe for
// concurrent use because nothing mutates a Store after it is built. The
// zero Store is not ready and every search against it fails with
// ErrIndexNotReady.
type Store struct {
	ready        bool
	generation   string
	schema       *tokenizer.Schema
	simCfg       similarity.Config
	sim          similarity.Similarity
	segments     []*Segment
	docs         []Document
	fieldStats   map[string]FieldStats
	fieldLengths map[string][]uint32
	n            int
}

// Ready reports whether the store was produced by Finalize or a load.
func (s *Store) Ready() bool {
	return s != nil && s.ready
}

// Generation identifies the build that produced the store. It survives
// compaction and persistence, so it can key caches of search results.
func (s *Store) Generation() string { return s.generation }

func (s *Store) Schema() *tokenizer.Schema { return s.schema }

func (s *Store) Similarity() similarity.Similarity { return s.sim }

func (s *Store) SimilarityConfig() similarity.Config { return s.simCfg }

// NumDocs is the number of documents added, including empty ones.
func (s *Store) NumDocs() int { return len(s.docs) }

// N is the number of documents with at least one non-empty indexed field.
func (s *Store) N() int { return s.n }

// Segments is the number of postings segments backing the store.
func (s *Store) Segments() int { return len(s.segments) }

// Fields lists every field that holds at least one term, sorted.
func (s *Store) Fields() []string {
	fields := make([]string, 0, len(s.fieldStats))
	for f, st := range s.fieldStats {
		if st.DocCount > 0 {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

// HasField reports whether field holds at least one term.
func (s *Store) HasField(field string) bool {
	return s.fieldStats[field].DocCount > 0
}

func (s *Store) FieldStats(field string) FieldStats {
	return s.fieldStats[field]
}

// FieldLength is the number of terms doc has in field.
func (s *Store) FieldLength(field string, doc DocID) int {
	lengths := s.fieldLengths[field]
	if int(doc) >= len(lengths) {
		return 0
	}
	return int(lengths[doc])
}

// Document returns the stored fields of id.
func (s *Store) Document(id DocID) (Document, error) {
	if int(id) >= len(s.docs) {
		return Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return s.docs[id], nil
}

// Postings returns the non-empty posting lists for (field, term), one per
// segment, in ascending DocID order.
func (s *Store) Postings(field, term string) []*PostingList {
	var lists []*PostingList
	for _, seg := range s.segments {
		if pl := seg.Lookup(field, term); pl != nil {
			lists = append(lists, pl)
		}
	}
	return lists
}

// TermStats aggregates (field, term) over all segments.
func (s *Store) TermStats(field, term string) TermStats {
	var ts TermStats
	for _, seg := range s.segments {
		if pl := seg.Lookup(field, term); pl != nil {
			ts.DocFreq += pl.DocFreq()
			ts.TotalTermFreq += pl.TotalTermFreq
		}
	}
	return ts
}

// ScoringStats is the input the similarity needs for (field, term).
func (s *Store) ScoringStats(field, term string) similarity.Stats {
	ts := s.TermStats(field, term)
	fs := s.fieldStats[field]
	return similarity.Stats{
		N:              s.n,
		DocFreq:        ts.DocFreq,
		TotalTermFreq:  ts.TotalTermFreq,
		SumFieldLength: fs.SumLength,
		AvgFieldLength: fs.AvgLength(),
	}
}

// Entries lists every (field, term) pair with its postings merged across
// segments, sorted by field then term.
func (s *Store) Entries() []TermEntry {
	merged := s.Compact()
	if len(merged.segments) == 0 {
		return nil
	}
	return merged.segments[0].Entries()
}

// FieldLengths returns a copy of the per-document lengths of field.
func (s *Store) FieldLengths(field string) []uint32 {
	return append([]uint32(nil), s.fieldLengths[field]...)
}

// Documents returns the stored documents in DocID order. Callers must not
// modify them.
func (s *Store) Documents() []Document {
	return s.docs
}
