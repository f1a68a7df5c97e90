package docstore

import (
	"strings"
	"unicode"
)

// NormalizeTag strips leading '#' characters (and any whitespace around
// them), lowercases, collapses internal whitespace to single spaces, then
// replaces spaces with underscores.
// Normalization is idempotent: NormalizeTag(NormalizeTag(x)) == NormalizeTag(x).
func NormalizeTag(tag string) string {
	tag = strings.TrimLeftFunc(tag, func(r rune) bool { return r == '#' || unicode.IsSpace(r) })
	tag = strings.TrimSpace(tag)
	tag = strings.ToLower(tag)
	tag = strings.Join(strings.Fields(tag), " ")
	tag = strings.ReplaceAll(tag, " ", "_")
	return tag
}

// NormalizeTags normalizes every tag, drops empties, and deduplicates while
// preserving the order of first occurrence.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// TagUpdateMode selects how UpdateTags combines the provided tags with the
// document's existing tags.
type TagUpdateMode int

const (
	// TagReplace substitutes the existing tag list wholesale.
	TagReplace TagUpdateMode = iota
	// TagAdd preserves existing order and appends new tags.
	TagAdd
	// TagRemove drops tags matching (case-insensitive, post-normalization) the given list.
	TagRemove
)

// ApplyTagUpdate combines existing and incoming tags per mode.
func ApplyTagUpdate(existing, incoming []string, mode TagUpdateMode) []string {
	normIncoming := NormalizeTags(incoming)

	switch mode {
	case TagReplace:
		return normIncoming
	case TagAdd:
		result := append([]string{}, existing...)
		seen := make(map[string]bool, len(existing))
		for _, t := range existing {
			seen[NormalizeTag(t)] = true
		}
		for _, t := range normIncoming {
			if !seen[t] {
				seen[t] = true
				result = append(result, t)
			}
		}
		return result
	case TagRemove:
		toRemove := make(map[string]bool, len(normIncoming))
		for _, t := range normIncoming {
			toRemove[t] = true
		}
		result := make([]string, 0, len(existing))
		for _, t := range existing {
			if !toRemove[NormalizeTag(t)] {
				result = append(result, t)
			}
		}
		return result
	default:
		return existing
	}
}
