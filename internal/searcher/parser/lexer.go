package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokField
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// reserved is every character Escape protects.
const reserved = `\+-!():^[]"{}~*?|&/`

func lex(raw string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case r == '+':
			toks = append(toks, token{kind: tokPlus, pos: i})
			i++
		case r == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++
		case r == '!':
			toks = append(toks, token{kind: tokNot, pos: i})
			i++
		case strings.HasPrefix(raw[i:], "&&"):
			toks = append(toks, token{kind: tokAnd, pos: i})
			i += 2
		case strings.HasPrefix(raw[i:], "||"):
			toks = append(toks, token{kind: tokOr, pos: i})
			i += 2
		case r == ':':
			return nil, invalid(raw, i, "field separator without a field name")
		default:
			tok, next, err := lexWord(raw, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(raw)}), nil
}

// lexWord reads a word starting at i. Backslash escapes the next rune.
// A word followed directly by an unescaped ':' becomes a field token.
// Syntax characters without a meaning here (quotes, wildcards, fuzzy and
// boost marks, brackets, slashes) stay part of the word; the analyzer
// decides what survives of them.
func lexWord(raw string, start int) (token, int, error) {
	var sb strings.Builder
	escaped := false
	i := start
	for i < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[i:])
		if r == '\\' {
			if i+1 >= len(raw) {
				return token{}, 0, invalid(raw, i, "dangling escape character")
			}
			nr, nsize := utf8.DecodeRuneInString(raw[i+1:])
			sb.WriteRune(nr)
			escaped = true
			i += 1 + nsize
			continue
		}
		if unicode.IsSpace(r) || r == '(' || r == ')' {
			break
		}
		if r == ':' {
			if sb.Len() == 0 {
				return token{}, 0, invalid(raw, i, "field separator without a field name")
			}
			return token{kind: tokField, text: sb.String(), pos: start}, i + 1, nil
		}
		sb.WriteRune(r)
		i += size
	}
	text := sb.String()
	if !escaped {
		switch text {
		case "AND":
			return token{kind: tokAnd, pos: start}, i, nil
		case "OR":
			return token{kind: tokOr, pos: start}, i, nil
		case "NOT":
			return token{kind: tokNot, pos: start}, i, nil
		}
	}
	return token{kind: tokWord, text: text, pos: start}, i, nil
}

// Escape backslash-escapes every reserved character in raw, and the
// keywords AND, OR and NOT, so that the result parses as plain words.
func Escape(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw) + len(raw)/8)
	for _, word := range splitKeepSpace(raw) {
		if word == "AND" || word == "OR" || word == "NOT" {
			sb.WriteByte('\\')
		}
		for _, r := range word {
			if strings.ContainsRune(reserved, r) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// splitKeepSpace splits s into alternating runs of space and non-space.
func splitKeepSpace(s string) []string {
	var parts []string
	start := 0
	inSpace := false
	for i, r := range s {
		sp := unicode.IsSpace(r)
		if i > start && sp != inSpace {
			parts = append(parts, s[start:i])
			start = i
		}
		inSpace = sp
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func invalid(raw string, pos int, reason string) error {
	return &apperrors.InvalidQueryError{Query: raw, Pos: pos, Reason: reason}
}
