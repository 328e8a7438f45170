// Package similarity implements the scoring models a Store can be built
// with. A model is chosen by name in Config and resolved once, when the
// Store is finalized or loaded; the ranker only sees the Similarity
// interface.
package similarity

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

const (
	ModelBM25            = "bm25"
	ModelClassic         = "classic"
	ModelLMDirichlet     = "lm-dirichlet"
	ModelLMJelinekMercer = "lm-jelinek-mercer"
	ModelMulti           = "multi"
)

// Stats carries the collection statistics needed to score one term in one
// field.
type Stats struct {
	// N is the number of documents with at least one non-empty field.
	N int
	// DocFreq is the number of documents containing the term in the field.
	DocFreq int
	// TotalTermFreq is the number of occurrences of the term in the field
	// across all documents.
	TotalTermFreq int64
	// SumFieldLength is the number of terms in the field across all documents.
	SumFieldLength int64
	// AvgFieldLength is SumFieldLength over the documents with the field.
	AvgFieldLength float64
}

// Similarity scores one (term, field, document) match.
type Similarity interface {
	Name() string
	Score(st Stats, tf int, fieldLen int) float64
}

// Config selects and parameterises a model.
type Config struct {
	Model  string   `json:"model" yaml:"model"`
	K1     float64  `json:"k1" yaml:"k1"`
	B      float64  `json:"b" yaml:"b"`
	Mu     float64  `json:"mu" yaml:"mu"`
	Lambda float64  `json:"lambda" yaml:"lambda"`
	Models []string `json:"models,omitempty" yaml:"models"`
}

// DefaultConfig is BM25 with k1 = 1.2 and b = 0.75. Mu and Lambda are the
// defaults of the language-model alternatives.
func DefaultConfig() Config {
	return Config{
		Model:  ModelBM25,
		K1:     1.2,
		B:      0.75,
		Mu:     2000,
		Lambda: 0.7,
	}
}

// New resolves cfg into a Similarity.
func New(cfg Config) (Similarity, error) {
	switch strings.ToLower(cfg.Model) {
	case "", ModelBM25:
		if cfg.K1 < 0 || cfg.B < 0 || cfg.B > 1 {
			return nil, fmt.Errorf("%w: bm25 needs k1 >= 0 and 0 <= b <= 1 (k1=%g b=%g)", apperrors.ErrInvalidInput, cfg.K1, cfg.B)
		}
		return BM25{K1: cfg.K1, B: cfg.B}, nil
	case ModelClassic:
		return Classic{}, nil
	case ModelLMDirichlet:
		if cfg.Mu <= 0 {
			return nil, fmt.Errorf("%w: lm-dirichlet needs mu > 0", apperrors.ErrInvalidInput)
		}
		return LMDirichlet{Mu: cfg.Mu}, nil
	case ModelLMJelinekMercer:
		if cfg.Lambda <= 0 || cfg.Lambda >= 1 {
			return nil, fmt.Errorf("%w: lm-jelinek-mercer needs 0 < lambda < 1", apperrors.ErrInvalidInput)
		}
		return LMJelinekMercer{Lambda: cfg.Lambda}, nil
	case ModelMulti:
		if len(cfg.Models) == 0 {
			return nil, fmt.Errorf("%w: multi needs at least one model", apperrors.ErrInvalidInput)
		}
		multi := Multi{}
		for _, name := range cfg.Models {
			if strings.EqualFold(name, ModelMulti) {
				return nil, fmt.Errorf("%w: multi cannot nest multi", apperrors.ErrInvalidInput)
			}
			sub := cfg
			sub.Model = name
			sub.Models = nil
			s, err := New(sub)
			if err != nil {
				return nil, err
			}
			multi.Models = append(multi.Models, s)
		}
		return multi, nil
	default:
		return nil, fmt.Errorf("%w: unknown scoring model %q", apperrors.ErrInvalidInput, cfg.Model)
	}
}

// BM25 is Okapi BM25 with the "+1" IDF that never goes negative.
type BM25 struct {
	K1 float64
	B  float64
}

func (BM25) Name() string { return ModelBM25 }

func (s BM25) Score(st Stats, tf int, fieldLen int) float64 {
	return s.IDF(st.N, st.DocFreq) * s.tfNorm(float64(tf), float64(fieldLen), st.AvgFieldLength)
}

// IDF is ln(1 + (N - df + 0.5) / (df + 0.5)).
func (BM25) IDF(n, df int) float64 {
	numerator := float64(n) - float64(df) + 0.5
	denominator := float64(df) + 0.5
	return math.Log(1 + numerator/denominator)
}

func (s BM25) tfNorm(tf, fieldLen, avgFieldLen float64) float64 {
	if avgFieldLen == 0 {
		return 0
	}
	lengthRatio := fieldLen / avgFieldLen
	denominator := tf + s.K1*(1-s.B+s.B*lengthRatio)
	return (tf * (s.K1 + 1)) / denominator
}

// Classic is the vector-space TF-IDF model: sqrt(tf) * idf^2 / sqrt(len).
type Classic struct{}

func (Classic) Name() string { return ModelClassic }

func (Classic) Score(st Stats, tf int, fieldLen int) float64 {
	if fieldLen == 0 {
		return 0
	}
	idf := 1 + math.Log(float64(st.N+1)/float64(st.DocFreq+1))
	return math.Sqrt(float64(tf)) * idf * idf / math.Sqrt(float64(fieldLen))
}

// LMDirichlet is query likelihood with Bayesian smoothing using Dirichlet
// priors. Negative scores are clamped to zero.
type LMDirichlet struct {
	Mu float64
}

func (LMDirichlet) Name() string { return ModelLMDirichlet }

func (s LMDirichlet) Score(st Stats, tf int, fieldLen int) float64 {
	p := collectionProbability(st)
	score := math.Log(1+float64(tf)/(s.Mu*p)) + math.Log(s.Mu/(float64(fieldLen)+s.Mu))
	if score < 0 {
		return 0
	}
	return score
}

// LMJelinekMercer is query likelihood with linear interpolation between
// the document and collection models.
type LMJelinekMercer struct {
	Lambda float64
}

func (LMJelinekMercer) Name() string { return ModelLMJelinekMercer }

func (s LMJelinekMercer) Score(st Stats, tf int, fieldLen int) float64 {
	if fieldLen == 0 {
		return 0
	}
	p := collectionProbability(st)
	return math.Log(1 + ((1-s.Lambda)*float64(tf)/float64(fieldLen))/(s.Lambda*p))
}

// Multi sums the scores of several models.
type Multi struct {
	Models []Similarity
}

func (m Multi) Name() string {
	names := make([]string, len(m.Models))
	for i, s := range m.Models {
		names[i] = s.Name()
	}
	return ModelMulti + "(" + strings.Join(names, ",") + ")"
}

func (m Multi) Score(st Stats, tf int, fieldLen int) float64 {
	var total float64
	for _, s := range m.Models {
		total += s.Score(st, tf, fieldLen)
	}
	return total
}

func collectionProbability(st Stats) float64 {
	return float64(st.TotalTermFreq+1) / float64(st.SumFieldLength+1)
}
