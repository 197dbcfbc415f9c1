// Package analysis provides text tokenization for the lexgo engine.
//
// The analyzer is deterministic and locale-independent: input is
// lower-cased via unicode simple case folding and split on any rune
// that is neither a letter nor a digit. There is no stemming, stop-word
// removal, or other linguistic normalization; identical input always
// yields identical tokens, which keeps index-time and query-time
// analysis in lockstep.
package analysis

import (
	"strings"
	"unicode"
)

// Token is a single normalized term together with its ordinal position
// in the source text.
type Token struct {
	Term     string
	Position uint32
}

// Tokenize splits text into normalized tokens.
//
// Empty input, or input without any letter/digit runes (e.g. binary
// garbage), yields an empty slice. Tokenize never fails.
func Tokenize(text string) []Token {
	if text == "" {
		return nil
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(words))
	for i, w := range words {
		tokens = append(tokens, Token{Term: w, Position: uint32(i)})
	}
	return tokens
}

// Terms returns just the term strings of the tokenized text, in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
