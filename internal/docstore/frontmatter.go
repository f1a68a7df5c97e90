package docstore

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frontmatter is the strict, line-oriented metadata block at the top of a
// document file. This is a hand-rolled scanner, not a general YAML parser,
// because the on-disk format is a bit-exact five-field block
// (§6 EXTERNAL INTERFACES), not arbitrary user-authored YAML.
type Frontmatter struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Tags       []string
	TagsLocked bool
}

const isoLayout = time.RFC3339

// ParseDocument splits raw file content into (frontmatter, body). ok is
// false when the content has no well-formed "---\n...\n---\n" block, in
// which case frontmatter fields are all zero-valued and the whole content
// is treated as body. When the block is well-formed, the single trailing
// newline that WriteDocument appends is dropped from the returned body.
func ParseDocument(raw string) (fm Frontmatter, body string, ok bool) {
	const delim = "---"
	if !strings.HasPrefix(raw, delim+"\n") {
		return Frontmatter{}, raw, false
	}

	rest := raw[len(delim)+1:]
	endIdx := strings.Index(rest, "\n"+delim)
	if endIdx < 0 {
		return Frontmatter{}, raw, false
	}

	block := rest[:endIdx]
	after := rest[endIdx+len(delim)+1:]
	after = strings.TrimPrefix(after, "\n")
	after = strings.TrimSuffix(after, "\n")

	fm = parseFrontmatterLines(block)
	return fm, after, true
}

func parseFrontmatterLines(block string) Frontmatter {
	var fm Frontmatter
	scanner := bufio.NewScanner(strings.NewReader(block))
	for scanner.Scan() {
		line := scanner.Text()
		key, val, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "id":
			// An unquoted literal null means "no id", so the read path
			// synthesizes a fresh one and heals the file.
			if val == "null" {
				break
			}
			fm.ID = unquote(val)
		case "created_at":
			if t, err := time.Parse(isoLayout, unquote(val)); err == nil {
				fm.CreatedAt = t
			}
		case "updated_at":
			if t, err := time.Parse(isoLayout, unquote(val)); err == nil {
				fm.UpdatedAt = t
			}
		case "tags":
			fm.Tags = parseTagArray(val)
		case "tags_locked":
			fm.TagsLocked = strconv.FormatBool(true) == val || val == "true"
		}
	}
	return fm
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseTagArray parses an inline JSON-ish array like ["a", "b"].
func parseTagArray(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := unquote(strings.TrimSpace(p))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// WriteDocument serializes frontmatter + title heading + body into the
// on-disk format (§6 EXTERNAL INTERFACES, bit-exact).
func WriteDocument(fm Frontmatter, title, body string) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "id: %q\n", fm.ID)
	fmt.Fprintf(&sb, "created_at: %q\n", fm.CreatedAt.UTC().Format(isoLayout))
	fmt.Fprintf(&sb, "updated_at: %q\n", fm.UpdatedAt.UTC().Format(isoLayout))
	sb.WriteString("tags: ")
	sb.WriteString(formatTagArray(fm.Tags))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "tags_locked: %t\n", fm.TagsLocked)
	sb.WriteString("---\n\n")
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatTagArray(tags []string) string {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = strconv.Quote(t)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// StripTitleHeading removes a leading "# <stem>" heading (case-insensitive,
// whitespace-normalized against stem) and any following blank lines.
func StripTitleHeading(body, stem string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return body
	}

	headingText := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), "#"))
	if !strings.EqualFold(normalizeHeading(headingText), normalizeHeading(stem)) || !strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
		return body
	}
	i++
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}

func normalizeHeading(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
