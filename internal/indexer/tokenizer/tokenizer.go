// Package tokenizer turns raw field text into normalised terms. An Analyzer
// runs a fixed pipeline (Unicode normalisation, segmentation, lowercase
// folding, stop-word removal, stemming) whose stages are toggled per field
// through a Config. The same analyzers are used at index time and at query
// time so that query terms line up with indexed terms.
package tokenizer

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Token is a single normalised term. Position counts word segments in the
// source text, including ones removed as stop words; Start and End are the
// byte span of the segment in the (normalised) text.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Analyzer applies one Config. It holds no mutable state and is safe for
// concurrent use.
type Analyzer struct {
	cfg  Config
	stem func(string) string
}

// NewAnalyzer validates cfg and returns an Analyzer for it.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	stem, err := stemmerFor(cfg.Stemmer)
	if err != nil {
		return nil, err
	}
	switch cfg.Segmenter {
	case SegmentUnicode, SegmentWhitespace, SegmentLetter, SegmentKeyword:
	default:
		return nil, fmt.Errorf("%w: unknown segmenter %q", apperrors.ErrInvalidInput, cfg.Segmenter)
	}
	return &Analyzer{cfg: cfg, stem: stem}, nil
}

// Config returns the configuration the analyzer was built from.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Terms validates text and returns a lazy sequence of its terms. The
// sequence can be ranged over any number of times and always yields the
// same tokens. Invalid UTF-8 fails up front with a *errors.DecodingError.
func (a *Analyzer) Terms(field, text string) (iter.Seq[Token], error) {
	if !utf8.ValidString(text) {
		return nil, &apperrors.DecodingError{Field: field, Offset: invalidOffset(text)}
	}
	if a.cfg.Normalize {
		text = norm.NFKC.String(text)
	}
	return func(yield func(Token) bool) {
		pos := 0
		for seg := range a.segments(text) {
			word := seg.text
			if a.cfg.Lowercase {
				word = strings.ToLower(word)
			}
			position := pos
			pos++
			if a.cfg.StopWords && isStopWord(word) {
				continue
			}
			if a.stem != nil {
				word = a.stem(word)
			}
			if word == "" {
				continue
			}
			if !yield(Token{Term: word, Position: position, Start: seg.start, End: seg.end}) {
				return
			}
		}
	}, nil
}

// Analyze collects Terms into a slice.
func (a *Analyzer) Analyze(field, text string) ([]Token, error) {
	seq, err := a.Terms(field, text)
	if err != nil {
		return nil, err
	}
	tokens := make([]Token, 0, len(text)/6)
	for tok := range seq {
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

type segment struct {
	text       string
	start, end int
}

// segments splits text into candidate words. Separators are skipped but
// still advance the byte offsets, so every input byte belongs either to a
// yielded segment or to a gap between two of them.
func (a *Analyzer) segments(text string) iter.Seq[segment] {
	return func(yield func(segment) bool) {
		switch a.cfg.Segmenter {
		case SegmentKeyword:
			trimmed := strings.TrimSpace(text)
			if trimmed == "" {
				return
			}
			start := strings.Index(text, trimmed)
			yield(segment{text: trimmed, start: start, end: start + len(trimmed)})
		case SegmentWhitespace:
			splitFunc(text, unicode.IsSpace, yield)
		case SegmentLetter:
			splitFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }, yield)
		default:
			offset := 0
			toks := words.FromString(text)
			for toks.Next() {
				value := toks.Value()
				start := offset
				offset += len(value)
				if !hasWordRune(value) {
					continue
				}
				if !yield(segment{text: value, start: start, end: offset}) {
					return
				}
			}
		}
	}
}

func splitFunc(text string, isSep func(rune) bool, yield func(segment) bool) {
	start := -1
	for i, r := range text {
		if isSep(r) {
			if start >= 0 {
				if !yield(segment{text: text[start:i], start: start, end: i}) {
					return
				}
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		yield(segment{text: text[start:], start: start, end: len(text)})
	}
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func invalidOffset(s string) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(s)
}
