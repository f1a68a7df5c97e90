// Package textproc provides plain-text extraction, paragraph-based chunking,
// and query normalization for the document cache's embedding pipeline.
package textproc

import (
	"encoding/json"
	"strings"
	"unicode"
)

const (
	// ChunkTargetChars is the greedy pack threshold, in runes, before a chunk is emitted.
	ChunkTargetChars = 800
	// ChunkOverlapChars is the trailing context, in runes, carried into the next chunk.
	ChunkOverlapChars = 200
)

// Chunk is one retrievable unit of a document, as produced by ChunkDocument.
type Chunk struct {
	Index int
	Text  string
}

// structuredNode mirrors a rich-document JSON tree: an object with optional
// child content and leaf text, or a hard line break marker.
type structuredNode struct {
	Type    string           `json:"type,omitempty"`
	Text    string           `json:"text,omitempty"`
	Content []structuredNode `json:"content,omitempty"`
}

// ExtractPlainText flattens a structured-document JSON tree into plain text,
// joining leaf text nodes and turning hardBreak nodes into newlines. If body
// does not parse as such a tree, it is treated as raw markdown/plain text.
func ExtractPlainText(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}

	var root structuredNode
	if looksLikeStructuredTree(trimmed) {
		if err := json.Unmarshal([]byte(trimmed), &root); err == nil {
			var sb strings.Builder
			flattenNode(root, &sb)
			return normalizeWhitespace(sb.String())
		}
	}

	return normalizeWhitespace(body)
}

func looksLikeStructuredTree(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

func flattenNode(n structuredNode, sb *strings.Builder) {
	if n.Type == "hardBreak" {
		sb.WriteByte('\n')
		return
	}
	if n.Text != "" {
		sb.WriteString(n.Text)
	}
	for _, child := range n.Content {
		flattenNode(child, sb)
	}
}

// normalizeWhitespace collapses runs of whitespace to single spaces, except
// it preserves paragraph breaks (double newlines) used by ChunkDocument.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	joined := strings.Join(out, "\n")

	// Collapse two or more consecutive blank lines down to exactly one paragraph break.
	for strings.Contains(joined, "\n\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(joined)
}

// ChunkDocument splits a document's plain-text body into overlapping chunks
// of roughly ChunkTargetChars runes, each prefixed by the document title for
// embedding context. Paragraphs (split on a blank line) are packed greedily;
// a paragraph is never split mid-paragraph. An empty body yields a single
// chunk containing only the title.
func ChunkDocument(title, plainBody string) []Chunk {
	title = strings.TrimSpace(title)
	body := strings.TrimSpace(plainBody)

	if body == "" {
		return []Chunk{{Index: 0, Text: title}}
	}

	if utf8RuneCount(body)+utf8RuneCount(title)+2 <= ChunkTargetChars {
		return []Chunk{{Index: 0, Text: withTitle(title, body)}}
	}

	paragraphs := splitParagraphs(body)

	var chunks []Chunk
	var buf []rune
	for _, para := range paragraphs {
		paraRunes := []rune(para)
		if len(buf) > 0 && len(buf)+2+len(paraRunes) > ChunkTargetChars {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: withTitle(title, string(buf))})
			buf = overlapTail(buf)
		}
		if len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, paraRunes...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: withTitle(title, string(buf))})
	}

	if len(chunks) == 0 {
		return []Chunk{{Index: 0, Text: title}}
	}
	return chunks
}

func withTitle(title, body string) string {
	if title == "" {
		return body
	}
	return title + "\n\n" + body
}

// overlapTail returns the trailing ChunkOverlapChars runes of buf, used to
// seed the next chunk's buffer so consecutive chunks share context.
func overlapTail(buf []rune) []rune {
	if len(buf) <= ChunkOverlapChars {
		tail := make([]rune, len(buf))
		copy(tail, buf)
		return tail
	}
	start := len(buf) - ChunkOverlapChars
	tail := make([]rune, ChunkOverlapChars)
	copy(tail, buf[start:])
	return tail
}

func splitParagraphs(body string) []string {
	raw := strings.Split(body, "\n\n")
	var out []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func utf8RuneCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// FormatQuery normalizes a user-supplied search query prior to tokenization.
func FormatQuery(q string) string {
	return strings.TrimFunc(q, unicode.IsSpace)
}
