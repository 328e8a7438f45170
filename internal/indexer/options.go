package indexer

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
)

// OptionsFromConfig builds index options from the analysis, scoring and
// indexer sections.
func OptionsFromConfig(cfg *config.Config) (index.Options, error) {
	schema, err := cfg.Analysis.Schema()
	if err != nil {
		return index.Options{}, fmt.Errorf("building analysis schema: %w", err)
	}
	return index.Options{
		Schema:         schema,
		Similarity:     cfg.Scoring,
		SegmentMaxSize: cfg.Indexer.SegmentMaxSize,
		StoredFields:   cfg.Indexer.StoredFields,
	}, nil
}
