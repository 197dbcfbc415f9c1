package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Token
	}{
		{
			name: "simple words",
			text: "the quick fox",
			want: []Token{{"the", 0}, {"quick", 1}, {"fox", 2}},
		},
		{
			name: "lowercasing and punctuation",
			text: "Hello, World! (again)",
			want: []Token{{"hello", 0}, {"world", 1}, {"again", 2}},
		},
		{
			name: "digits kept",
			text: "version 2 of file2",
			want: []Token{{"version", 0}, {"2", 1}, {"of", 2}, {"file2", 3}},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "punctuation only",
			text: "--- ... !!!",
			want: nil,
		},
		{
			name: "binary-ish input degrades to nothing",
			text: "\x00\x01\x02",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	text := "The Quick, quick FOX jumps; over 2 lazy-dogs."
	first := Tokenize(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Tokenize(text))
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Terms("A b. C"))
	assert.Nil(t, Terms(""))
}
