package tokenizer

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

func terms(t *testing.T, a *Analyzer, text string) []string {
	t.Helper()
	tokens, err := a.Analyze("body", text)
	if err != nil {
		t.Fatalf("Analyze(%q): %v", text, err)
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Term)
	}
	return out
}

func mustAnalyzer(t testing.TB, preset string) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(MustPreset(preset))
	if err != nil {
		t.Fatalf("NewAnalyzer(%s): %v", preset, err)
	}
	return a
}

func TestEnglishAnalyzer(t *testing.T) {
	a := mustAnalyzer(t, "english")
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stop words removed", "the flow of the fluid", []string{"flow", "fluid"}},
		{"case folded", "Turbulent FLOW", []string{"turbul", "flow"}},
		{"porter stemming", "flows boundary analysis", []string{"flow", "boundari", "analysi"}},
		{"punctuation segments", "boundary-layer, flow.", []string{"boundari", "layer", "flow"}},
		{"digits kept", "mach 2.5 flow", []string{"mach", "2.5", "flow"}},
		{"empty", "", []string{}},
		{"only stop words", "the and of", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := terms(t, a, tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		preset string
		text   string
		want   []string
	}{
		{"standard", "The Flows", []string{"the", "flows"}},
		{"simple", "heat-transfer2x", []string{"heat", "transfer", "x"}},
		{"whitespace", "Heat-Transfer  rates.", []string{"Heat-Transfer", "rates."}},
		{"keyword", "  1400 ", []string{"1400"}},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			got := terms(t, mustAnalyzer(t, tt.preset), tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStemmerChoices(t *testing.T) {
	cfg := MustPreset("english")
	for _, stemmer := range []string{StemPorter, StemSnowball, StemLight} {
		cfg.Stemmer = stemmer
		a, err := NewAnalyzer(cfg)
		if err != nil {
			t.Fatalf("stemmer %s: %v", stemmer, err)
		}
		got := terms(t, a, "flows")
		if len(got) != 1 || got[0] != "flow" {
			t.Errorf("stemmer %s: got %v, want [flow]", stemmer, got)
		}
	}
	cfg.Stemmer = "lancaster"
	if _, err := NewAnalyzer(cfg); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown stemmer, got %v", err)
	}
}

func TestTermsIsRestartableAndDeterministic(t *testing.T) {
	a := mustAnalyzer(t, "english")
	seq, err := a.Terms("title", "supersonic flow over a flat plate")
	if err != nil {
		t.Fatal(err)
	}
	var first, second []Token
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}
	if len(first) == 0 || !reflect.DeepEqual(first, second) {
		t.Errorf("ranging twice gave different tokens:\n%v\n%v", first, second)
	}
}

func TestTermsStopsEarly(t *testing.T) {
	a := mustAnalyzer(t, "english")
	seq, err := a.Terms("title", "one two three four")
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("expected early exit after 2 tokens, got %d", n)
	}
}

func TestOffsetsAndPositions(t *testing.T) {
	a := mustAnalyzer(t, "english")
	text := "the wing, the tail"
	tokens, err := a.Analyze("body", text)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}
	if text[tokens[0].Start:tokens[0].End] != "wing" || text[tokens[1].Start:tokens[1].End] != "tail" {
		t.Errorf("byte spans do not cover the source words: %+v", tokens)
	}
	// Removed stop words still occupy a position.
	if tokens[0].Position != 1 || tokens[1].Position != 3 {
		t.Errorf("unexpected positions: %+v", tokens)
	}
}

func TestDecodingError(t *testing.T) {
	a := mustAnalyzer(t, "english")
	_, err := a.Terms("title", "ok \xff bad")
	if !errors.Is(err, apperrors.ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
	var de *apperrors.DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodingError, got %T", err)
	}
	if de.Field != "title" || de.Offset != 3 {
		t.Errorf("unexpected error context: %+v", de)
	}
}

func TestSchema(t *testing.T) {
	s := CranfieldSchema()
	if got := s.Analyzer("doc_id").Config().Segmenter; got != SegmentKeyword {
		t.Errorf("doc_id segmenter = %q, want keyword", got)
	}
	if got := s.Analyzer("contentSubstance").Config(); got != MustPreset("english") {
		t.Errorf("contentSubstance should use the default english analyzer, got %+v", got)
	}
	if fields := s.Fields(); !reflect.DeepEqual(fields, []string{"doc_id"}) {
		t.Errorf("Fields() = %v", fields)
	}
	if _, err := Preset("klingon"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown preset, got %v", err)
	}
}

func TestConcurrentAnalysis(t *testing.T) {
	a := mustAnalyzer(t, "english")
	want := terms(t, a, "shock waves in hypersonic flows")
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := a.Analyze("body", "shock waves in hypersonic flows")
			if err != nil {
				errs <- err.Error()
				return
			}
			for i, tok := range tokens {
				if tok.Term != want[i] {
					errs <- tok.Term
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent analysis mismatch: %s", e)
	}
}

func BenchmarkEnglishAnalyzer(b *testing.B) {
	a, _ := NewAnalyzer(MustPreset("english"))
	text := "experimental investigation of the aerodynamics of a wing in a slipstream . " +
		"an experimental study of a wing in a propeller slipstream was made in order to determine " +
		"the spanwise distribution of the lift increase due to slipstream at different angles of attack"
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tokens, _ := a.Analyze("contentSubstance", text)
		_ = tokens
	}
}

func TestStopWordsWithoutLowercase(t *testing.T) {
	a, err := NewAnalyzer(Config{Segmenter: SegmentUnicode, StopWords: true, Stemmer: StemNone})
	if err != nil {
		t.Fatal(err)
	}
	got := terms(t, a, "The wing of the plate")
	want := []string{"The", "wing", "plate"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
