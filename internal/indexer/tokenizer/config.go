package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/kljensen/snowball/english"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

const (
	SegmentUnicode    = "unicode"
	SegmentWhitespace = "whitespace"
	SegmentLetter     = "letter"
	SegmentKeyword    = "keyword"
)

const (
	StemPorter   = "porter"
	StemSnowball = "snowball"
	StemLight    = "light"
	StemNone     = "none"
)

// Config toggles the analysis stages for one field.
type Config struct {
	Normalize bool   `json:"normalize" yaml:"normalize"`
	Segmenter string `json:"segmenter" yaml:"segmenter"`
	Lowercase bool   `json:"lowercase" yaml:"lowercase"`
	StopWords bool   `json:"stop_words" yaml:"stopWords"`
	Stemmer   string `json:"stemmer" yaml:"stemmer"`
}

var presets = map[string]Config{
	"english": {
		Normalize: true,
		Segmenter: SegmentUnicode,
		Lowercase: true,
		StopWords: true,
		Stemmer:   StemPorter,
	},
	"standard": {
		Normalize: true,
		Segmenter: SegmentUnicode,
		Lowercase: true,
		Stemmer:   StemNone,
	},
	"simple": {
		Segmenter: SegmentLetter,
		Lowercase: true,
		Stemmer:   StemNone,
	},
	"whitespace": {
		Segmenter: SegmentWhitespace,
		Stemmer:   StemNone,
	},
	"keyword": {
		Segmenter: SegmentKeyword,
		Stemmer:   StemNone,
	},
}

// Preset returns the named analyzer configuration: english, standard,
// simple, whitespace or keyword.
func Preset(name string) (Config, error) {
	cfg, ok := presets[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown analyzer %q", apperrors.ErrInvalidInput, name)
	}
	return cfg, nil
}

// MustPreset is Preset for names known at compile time.
func MustPreset(name string) Config {
	cfg, err := Preset(name)
	if err != nil {
		panic(err)
	}
	return cfg
}

func stemmerFor(name string) (func(string) string, error) {
	switch name {
	case "", StemNone:
		return nil, nil
	case StemPorter:
		return porterstemmer.StemString, nil
	case StemSnowball:
		return func(w string) string { return english.Stem(w, true) }, nil
	case StemLight:
		return lightStem, nil
	default:
		return nil, fmt.Errorf("%w: unknown stemmer %q", apperrors.ErrInvalidInput, name)
	}
}

// Schema assigns an Analyzer to every field. Fields without an explicit
// entry use the default analyzer.
type Schema struct {
	def       *Analyzer
	analyzers map[string]*Analyzer
}

// NewSchema compiles def and the per-field configs.
func NewSchema(def Config, fields map[string]Config) (*Schema, error) {
	defAnalyzer, err := NewAnalyzer(def)
	if err != nil {
		return nil, fmt.Errorf("default analyzer: %w", err)
	}
	s := &Schema{
		def:       defAnalyzer,
		analyzers: make(map[string]*Analyzer, len(fields)),
	}
	for field, cfg := range fields {
		a, err := NewAnalyzer(cfg)
		if err != nil {
			return nil, fmt.Errorf("analyzer for field %q: %w", field, err)
		}
		s.analyzers[field] = a
	}
	return s, nil
}

// CranfieldSchema is the schema of the Cranfield collection: doc_id is an
// unanalysed keyword and every text field uses the english analyzer.
func CranfieldSchema() *Schema {
	s, err := NewSchema(MustPreset("english"), map[string]Config{
		"doc_id": MustPreset("keyword"),
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Analyzer returns the analyzer for field.
func (s *Schema) Analyzer(field string) *Analyzer {
	if a, ok := s.analyzers[field]; ok {
		return a
	}
	return s.def
}

// Default returns the configuration used for fields without an override.
func (s *Schema) Default() Config {
	return s.def.cfg
}

// Overrides returns the per-field configurations.
func (s *Schema) Overrides() map[string]Config {
	out := make(map[string]Config, len(s.analyzers))
	for field, a := range s.analyzers {
		out[field] = a.cfg
	}
	return out
}

// Fields lists the fields with an explicit analyzer, sorted.
func (s *Schema) Fields() []string {
	fields := make([]string, 0, len(s.analyzers))
	for f := range s.analyzers {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
