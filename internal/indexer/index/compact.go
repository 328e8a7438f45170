package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Compact returns a store whose postings live in a single segment. The
// receiver is left untouched and stays usable; both stores rank every
// query identically. A store with at most one segment is returned as is.
func (s *Store) Compact() *Store {
	if len(s.segments) <= 1 {
		return s
	}
	acc := make(map[string]map[string][]Posting)
	merged := &Segment{}
	// Segments cover ascending, disjoint DocID ranges, so appending keeps
	// every merged list sorted.
	for _, seg := range s.segments {
		merged.docCount += seg.docCount
		for field, byTerm := range seg.postings {
			dst, ok := acc[field]
			if !ok {
				dst = make(map[string][]Posting, len(byTerm))
				acc[field] = dst
			}
			for term, pl := range byTerm {
				dst[term] = append(dst[term], pl.Postings...)
			}
		}
	}
	merged.postings = make(map[string]map[string]*PostingList, len(acc))
	for field, byTerm := range acc {
		lists := make(map[string]*PostingList, len(byTerm))
		for term, postings := range byTerm {
			lists[term] = NewPostingList(postings)
		}
		merged.postings[field] = lists
	}
	out := *s
	out.segments = []*Segment{merged}
	return &out
}

// Snapshot is the serialisable form of a Store. Field statistics and N are
// not part of it; they are derived from FieldLengths on restore.
type Snapshot struct {
	Generation      string                      `json:"generation"`
	DefaultAnalyzer tokenizer.Config            `json:"default_analyzer"`
	FieldAnalyzers  map[string]tokenizer.Config `json:"field_analyzers"`
	Similarity      similarity.Config           `json:"similarity"`
	Documents       []Document                  `json:"documents"`
	FieldLengths    map[string][]uint32         `json:"field_lengths"`
	Entries         []TermEntry                 `json:"-"`
}

// Snapshot captures the store for persistence.
func (s *Store) Snapshot() Snapshot {
	lengths := make(map[string][]uint32, len(s.fieldLengths))
	for field := range s.fieldLengths {
		lengths[field] = s.FieldLengths(field)
	}
	return Snapshot{
		Generation:      s.generation,
		DefaultAnalyzer: s.schema.Default(),
		FieldAnalyzers:  s.schema.Overrides(),
		Similarity:      s.simCfg,
		Documents:       s.docs,
		FieldLengths:    lengths,
		Entries:         s.Entries(),
	}
}

// FromSnapshot rebuilds a ready Store with a single segment. Postings that
// reference unknown documents, are out of order or have a zero frequency
// are rejected with ErrCorruptIndex.
func FromSnapshot(snap Snapshot) (*Store, error) {
	schema, err := tokenizer.NewSchema(snap.DefaultAnalyzer, snap.FieldAnalyzers)
	if err != nil {
		return nil, fmt.Errorf("restoring analyzers: %w", err)
	}
	sim, err := similarity.New(snap.Similarity)
	if err != nil {
		return nil, fmt.Errorf("restoring similarity: %w", err)
	}
	numDocs := len(snap.Documents)
	for i, doc := range snap.Documents {
		if int(doc.ID) != i {
			return nil, fmt.Errorf("%w: document %d stored at position %d", apperrors.ErrCorruptIndex, doc.ID, i)
		}
	}

	s := &Store{
		ready:        true,
		generation:   snap.Generation,
		schema:       schema,
		simCfg:       snap.Similarity,
		sim:          sim,
		docs:         snap.Documents,
		fieldStats:   make(map[string]FieldStats, len(snap.FieldLengths)),
		fieldLengths: make(map[string][]uint32, len(snap.FieldLengths)),
	}
	hasField := make([]bool, numDocs)
	for field, lengths := range snap.FieldLengths {
		if len(lengths) > numDocs {
			return nil, fmt.Errorf("%w: field %q has %d lengths for %d documents", apperrors.ErrCorruptIndex, field, len(lengths), numDocs)
		}
		padded := make([]uint32, numDocs)
		copy(padded, lengths)
		var fs FieldStats
		for doc, l := range padded {
			if l > 0 {
				fs.DocCount++
				fs.SumLength += int64(l)
				hasField[doc] = true
			}
		}
		s.fieldLengths[field] = padded
		s.fieldStats[field] = fs
	}
	for _, ok := range hasField {
		if ok {
			s.n++
		}
	}

	if len(snap.Entries) > 0 {
		seg := &Segment{
			postings: make(map[string]map[string]*PostingList),
			docCount: numDocs,
		}
		for _, e := range snap.Entries {
			if err := validatePostings(e, numDocs); err != nil {
				return nil, err
			}
			byTerm, ok := seg.postings[e.Field]
			if !ok {
				byTerm = make(map[string]*PostingList)
				seg.postings[e.Field] = byTerm
			}
			byTerm[e.Term] = NewPostingList(e.Postings)
		}
		s.segments = []*Segment{seg}
	}
	return s, nil
}

func validatePostings(e TermEntry, numDocs int) error {
	for i, p := range e.Postings {
		if int(p.DocID) >= numDocs || p.Frequency == 0 || (i > 0 && p.DocID <= e.Postings[i-1].DocID) {
			return fmt.Errorf("%w: bad posting %d for %s:%q", apperrors.ErrCorruptIndex, i, e.Field, e.Term)
		}
	}
	return nil
}
