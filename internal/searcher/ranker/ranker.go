// Package ranker evaluates query trees against a finalized index and ranks
// the matching documents with the index's similarity model.
package ranker

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Hit is one ranked document.
type Hit struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// Result is a ranked page of hits plus the size of the full match set.
type Result struct {
	Hits      []Hit `json:"hits"`
	TotalHits int   `json:"total_hits"`
}

// Search returns at most topK hits for node, by descending score and then
// ascending DocID.
func Search(store *index.Store, node query.Node, topK int) ([]Hit, error) {
	res, err := Rank(store, node, topK)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// Rank is Search that also reports how many documents matched.
func Rank(store *index.Store, node query.Node, topK int) (Result, error) {
	return RankContext(context.Background(), store, node, topK)
}

// checkEvery is how many postings RankContext scores between context
// checks.
const checkEvery = 4096

// RankContext is Rank that stops scoring once ctx is done and returns
// ctx.Err().
func RankContext(ctx context.Context, store *index.Store, node query.Node, topK int) (Result, error) {
	if !store.Ready() {
		return Result{}, apperrors.ErrIndexNotReady
	}
	if topK < 0 {
		return Result{}, fmt.Errorf("%w: topK must be >= 0, got %d", apperrors.ErrInvalidInput, topK)
	}
	if node == nil {
		return Result{}, fmt.Errorf("%w: nil query", apperrors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	matches := Match(store, node)
	res := Result{Hits: []Hit{}, TotalHits: int(matches.GetCardinality())}
	if topK == 0 || matches.IsEmpty() {
		return res, nil
	}

	scores := make(map[index.DocID]float64, matches.GetCardinality())
	sim := store.Similarity()
	scored := 0
	for _, leaf := range query.Terms(node) {
		for _, field := range leaf.Fields {
			lists := store.Postings(field, leaf.Term)
			if len(lists) == 0 {
				continue
			}
			stats := store.ScoringStats(field, leaf.Term)
			for _, pl := range lists {
				for _, p := range pl.Postings {
					if scored++; scored%checkEvery == 0 {
						if err := ctx.Err(); err != nil {
							return Result{}, err
						}
					}
					if !matches.Contains(p.DocID) {
						continue
					}
					scores[p.DocID] += sim.Score(stats, int(p.Frequency), store.FieldLength(field, p.DocID))
				}
			}
		}
	}

	top := newTopK(topK)
	it := matches.Iterator()
	for it.HasNext() {
		doc := it.Next()
		top.offer(Hit{DocID: doc, Score: scores[doc]})
	}
	res.Hits = top.sorted()
	return res, nil
}

// Match returns the set of documents node matches. The caller owns the
// returned bitmap.
func Match(store *index.Store, node query.Node) *roaring.Bitmap {
	switch n := node.(type) {
	case query.Term:
		out := roaring.New()
		for _, field := range n.Fields {
			for _, pl := range store.Postings(field, n.Term) {
				out.Or(pl.Docs())
			}
		}
		return out
	case query.Boolean:
		if n.Op == query.Not || n.Op == query.Should {
			return roaring.New()
		}
		var positive, excluded *roaring.Bitmap
		for _, child := range n.Children {
			if b, ok := child.(query.Boolean); ok {
				switch b.Op {
				case query.Not:
					excluded = orInto(excluded, unionOf(store, b.Children))
					continue
				case query.Should:
					continue
				}
			}
			m := Match(store, child)
			switch {
			case positive == nil:
				positive = m
			case n.Op == query.And:
				positive.And(m)
			default:
				positive.Or(m)
			}
		}
		if positive == nil {
			return roaring.New()
		}
		if excluded != nil {
			positive.AndNot(excluded)
		}
		return positive
	default:
		return roaring.New()
	}
}

func unionOf(store *index.Store, nodes []query.Node) *roaring.Bitmap {
	out := roaring.New()
	for _, n := range nodes {
		out.Or(Match(store, n))
	}
	return out
}

func orInto(dst, src *roaring.Bitmap) *roaring.Bitmap {
	if dst == nil {
		return src
	}
	dst.Or(src)
	return dst
}
