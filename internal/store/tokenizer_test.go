package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain prose",
			input: "Hybrid search blends lexical scoring",
			want:  []string{"hybrid", "search", "blends", "lexical", "scoring"},
		},
		{
			name:  "markdown punctuation separates",
			input: "**bold** and [link](https://example.com)",
			want:  []string{"bold", "and", "link", "https", "example", "com"},
		},
		{
			name:  "single-character tokens dropped",
			input: "a b cd",
			want:  []string{"cd"},
		},
		{
			name:  "numbers kept",
			input: "Q3 2024 planning",
			want:  []string{"q3", "2024", "planning"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeText(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"the", "and"})
	got := FilterStopWords([]string{"the", "search", "AND", "ranking"}, stop)
	assert.Equal(t, []string{"search", "ranking"}, got)
}

func TestBuildStopWordMap_LowercasesKeys(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "AND"})
	_, hasThe := m["the"]
	_, hasAnd := m["and"]
	assert.True(t, hasThe)
	assert.True(t, hasAnd)
	assert.Len(t, m, 2)
}
