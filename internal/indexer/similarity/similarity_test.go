package similarity

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

const tolerance = 1e-9

func TestBM25MatchesFormula(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	st := Stats{N: 2, DocFreq: 2, AvgFieldLength: 3.5}
	got := s.Score(st, 1, 4)

	idf := math.Log(1 + (2.0-2.0+0.5)/(2.0+0.5))
	want := idf * (1 * 2.2) / (1 + 1.2*(1-0.75+0.75*4/3.5))
	if math.Abs(got-want) > tolerance {
		t.Errorf("Score = %.12f, want %.12f", got, want)
	}
}

func TestBM25Monotonicity(t *testing.T) {
	s := BM25{K1: 1.2, B: 0.75}
	st := Stats{N: 100, DocFreq: 10, AvgFieldLength: 10}
	if s.Score(st, 2, 10) <= s.Score(st, 1, 10) {
		t.Errorf("higher tf should score higher")
	}
	if s.Score(st, 1, 5) <= s.Score(st, 1, 20) {
		t.Errorf("shorter fields should score higher")
	}
	rare := Stats{N: 100, DocFreq: 1, AvgFieldLength: 10}
	if s.Score(rare, 1, 10) <= s.Score(st, 1, 10) {
		t.Errorf("rarer terms should score higher")
	}
	if s.IDF(1, 1) <= 0 {
		t.Errorf("idf must stay positive even when every document matches")
	}
}

func TestAlternativeModels(t *testing.T) {
	st := Stats{N: 1400, DocFreq: 30, TotalTermFreq: 45, SumFieldLength: 120000, AvgFieldLength: 85}
	for _, model := range []string{ModelClassic, ModelLMDirichlet, ModelLMJelinekMercer} {
		cfg := DefaultConfig()
		cfg.Model = model
		s, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if s.Name() != model {
			t.Errorf("Name() = %q, want %q", s.Name(), model)
		}
		score := s.Score(st, 3, 80)
		if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
			t.Errorf("%s: bad score %v", model, score)
		}
		if s.Score(st, 3, 80) <= s.Score(st, 1, 80) {
			t.Errorf("%s: higher tf should score higher", model)
		}
	}
}

func TestMultiSumsModels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelMulti
	cfg.Models = []string{ModelBM25, ModelLMJelinekMercer}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	st := Stats{N: 50, DocFreq: 5, TotalTermFreq: 9, SumFieldLength: 500, AvgFieldLength: 10}
	want := BM25{K1: 1.2, B: 0.75}.Score(st, 2, 12) + LMJelinekMercer{Lambda: 0.7}.Score(st, 2, 12)
	if got := s.Score(st, 2, 12); math.Abs(got-want) > tolerance {
		t.Errorf("multi score = %v, want %v", got, want)
	}
	if s.Name() != "multi(bm25,lm-jelinek-mercer)" {
		t.Errorf("unexpected name %q", s.Name())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []Config{
		{Model: "dfr"},
		{Model: ModelBM25, K1: 1.2, B: 1.5},
		{Model: ModelLMDirichlet},
		{Model: ModelLMJelinekMercer, Lambda: 1},
		{Model: ModelMulti},
		{Model: ModelMulti, Models: []string{ModelMulti}},
	}
	for _, cfg := range tests {
		if _, err := New(cfg); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("New(%+v) = %v, want ErrInvalidInput", cfg, err)
		}
	}
}
