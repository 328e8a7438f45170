// Package index holds the inverted index: the single-writer Builder that
// ingests documents one at a time, and the immutable Store it produces.
package index

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// DefaultSegmentMaxSize is the MemoryIndex size at which a Builder seals
// the current segment.
const DefaultSegmentMaxSize int64 = 64 << 20

type Options struct {
	// Schema maps fields to analyzers. Defaults to CranfieldSchema.
	Schema *tokenizer.Schema
	// Similarity picks the scoring model. The zero value is BM25 with its
	// default parameters.
	Similarity similarity.Config
	// SegmentMaxSize bounds the mutable segment. Zero uses the default.
	SegmentMaxSize int64
	// StoredFields lists the fields whose raw text is kept for retrieval.
	// Empty keeps every field.
	StoredFields []string
}

// Builder ingests documents into a fresh index. It is single-writer: calls
// to AddDocument must be serialised by the caller. Only the partially built
// postings and the document being added are held in memory; the raw text
// survives only for the fields listed in Options.StoredFields.
type Builder struct {
	schema       *tokenizer.Schema
	simCfg       similarity.Config
	sim          similarity.Similarity
	maxSize      int64
	stored       map[string]bool
	mem          *MemoryIndex
	sealed       []*Segment
	docs         []Document
	fieldLengths map[string][]uint32
	fieldStats   map[string]FieldStats
	n            int
	finalized    bool
	logger       *slog.Logger
}

// NewBuilder validates opts and resolves the scoring model.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Schema == nil {
		opts.Schema = tokenizer.CranfieldSchema()
	}
	if opts.Similarity.Model == "" {
		opts.Similarity = similarity.DefaultConfig()
	}
	sim, err := similarity.New(opts.Similarity)
	if err != nil {
		return nil, fmt.Errorf("resolving scoring model: %w", err)
	}
	if opts.SegmentMaxSize <= 0 {
		opts.SegmentMaxSize = DefaultSegmentMaxSize
	}
	var stored map[string]bool
	if len(opts.StoredFields) > 0 {
		stored = make(map[string]bool, len(opts.StoredFields))
		for _, name := range opts.StoredFields {
			stored[name] = true
		}
	}
	return &Builder{
		schema:       opts.Schema,
		simCfg:       opts.Similarity,
		sim:          sim,
		maxSize:      opts.SegmentMaxSize,
		stored:       stored,
		mem:          NewMemoryIndex(),
		fieldLengths: make(map[string][]uint32),
		fieldStats:   make(map[string]FieldStats),
		logger:       slog.Default().With("component", "index-builder"),
	}, nil
}

// AddDocument analyzes every field and assigns the next DocID. The document
// is added whole or not at all: if any field fails to analyze, no id is
// consumed and the index is unchanged.
func (b *Builder) AddDocument(fields map[string]string) (DocID, error) {
	if b.finalized {
		return 0, apperrors.ErrAlreadyFinalized
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fieldTerms := make(map[string]map[string]uint32, len(fields))
	lengths := make(map[string]uint32, len(fields))
	for _, name := range names {
		seq, err := b.schema.Analyzer(name).Terms(name, fields[name])
		if err != nil {
			return 0, fmt.Errorf("analyzing document %d: %w", len(b.docs), err)
		}
		var length uint32
		counts := make(map[string]uint32)
		for tok := range seq {
			counts[tok.Term]++
			length++
		}
		if length > 0 {
			fieldTerms[name] = counts
			lengths[name] = length
		}
	}

	id := DocID(len(b.docs))
	stored := make(map[string]string, len(fields))
	for name, text := range fields {
		if b.stored == nil || b.stored[name] {
			// Cloned so the caller's buffer is not pinned by a substring.
			stored[name] = strings.Clone(text)
		}
	}
	b.docs = append(b.docs, Document{ID: id, Fields: stored})
	for name, length := range lengths {
		col := b.fieldLengths[name]
		for len(col) < int(id) {
			col = append(col, 0)
		}
		b.fieldLengths[name] = append(col, length)
		fs := b.fieldStats[name]
		fs.DocCount++
		fs.SumLength += int64(length)
		b.fieldStats[name] = fs
	}
	if len(lengths) > 0 {
		b.n++
	}

	b.mem.AddDocument(id, fieldTerms)
	if b.mem.Size() >= b.maxSize {
		b.logger.Debug("memory index reached max size, sealing segment",
			"size", b.mem.Size(),
			"threshold", b.maxSize,
		)
		b.seal()
	}
	return id, nil
}

func (b *Builder) seal() {
	seg := b.mem.Seal()
	if seg == nil {
		return
	}
	b.sealed = append(b.sealed, seg)
	b.logger.Debug("segment sealed",
		"terms", seg.Terms(),
		"docs", seg.DocCount(),
		"segments", len(b.sealed),
	)
}

// DocCount is the number of documents added so far.
func (b *Builder) DocCount() int {
	return len(b.docs)
}

// Segments is the number of sealed segments so far.
func (b *Builder) Segments() int {
	return len(b.sealed)
}

// Finalize seals the last segment and hands every structure over to a
// ready Store. The builder keeps no reference to them afterwards. A second
// call returns ErrAlreadyFinalized.
func (b *Builder) Finalize() (*Store, error) {
	if b.finalized {
		return nil, apperrors.ErrAlreadyFinalized
	}
	b.finalized = true
	b.seal()

	numDocs := len(b.docs)
	for name, col := range b.fieldLengths {
		for len(col) < numDocs {
			col = append(col, 0)
		}
		b.fieldLengths[name] = col
	}
	store := &Store{
		ready:        true,
		generation:   uuid.NewString(),
		schema:       b.schema,
		simCfg:       b.simCfg,
		sim:          b.sim,
		segments:     b.sealed,
		docs:         b.docs,
		fieldStats:   b.fieldStats,
		fieldLengths: b.fieldLengths,
		n:            b.n,
	}
	b.mem = nil
	b.sealed = nil
	b.docs = nil
	b.fieldLengths = nil
	b.fieldStats = nil

	b.logger.Info("index finalized",
		"docs", store.NumDocs(),
		"segments", store.Segments(),
		"scoring_model", store.sim.Name(),
		"generation", store.generation,
	)
	return store, nil
}
