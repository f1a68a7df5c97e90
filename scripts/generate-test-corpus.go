//go:build ignore

// Package main generates a synthetic markdown note corpus for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
//
// Every file is a valid kb document: frontmatter with id/timestamps/tags,
// an H1 heading matching the file stem, and a multi-paragraph body long
// enough to exercise the chunker's overlap path.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var folderNames = []string{
	"", "inbox", "projects", "projects/alpha", "projects/beta",
	"meetings", "reference", "journal", "archive",
}

var titleWords = []string{
	"Planning", "Retrospective", "Design", "Search", "Weekly", "Roadmap",
	"Ideas", "Reading", "Summary", "Checklist", "Review", "Interview",
	"Migration", "Budget", "Sketch", "Notes",
}

var tagPool = []string{
	"search", "planning", "team", "draft", "important", "followup",
	"reference", "idea", "archive", "meeting",
}

var sentencePool = []string{
	"Hybrid search blends lexical scoring with semantic matching.",
	"The sidecar cache is derived state and can be rebuilt at any time.",
	"Content hashes gate embedding inference so unchanged notes cost nothing.",
	"Folder structure mirrors how the work is actually organized.",
	"Chunk overlap keeps context flowing across paragraph boundaries.",
	"Trash retention gives thirty days to recover a deleted note.",
	"Prefix lookup makes short ids practical on the command line.",
	"The markdown tree stays authoritative over every index.",
	"Batched writes keep the database transaction count low.",
	"A quiet debounce window collapses bursts of saves into one reindex.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output dir: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *numFiles; i++ {
		if err := generateNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate note %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Generated %d documents under %s\n", *numFiles, *outputDir)
}

func generateNote(rng *rand.Rand, index int) error {
	folder := folderNames[rng.Intn(len(folderNames))]
	title := fmt.Sprintf("%s %s %d",
		titleWords[rng.Intn(len(titleWords))],
		titleWords[rng.Intn(len(titleWords))],
		index)

	dir := filepath.Join(*outputDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(rng.Intn(365*24)) * time.Hour)
	updated := created.Add(time.Duration(rng.Intn(90*24)) * time.Hour)

	tagCount := rng.Intn(4)
	tags := make([]string, 0, tagCount)
	for len(tags) < tagCount {
		tag := tagPool[rng.Intn(len(tagPool))]
		if !contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	paragraphs := 2 + rng.Intn(8)
	var body strings.Builder
	for p := 0; p < paragraphs; p++ {
		sentences := 3 + rng.Intn(5)
		for s := 0; s < sentences; s++ {
			body.WriteString(sentencePool[rng.Intn(len(sentencePool))])
			body.WriteByte(' ')
		}
		body.WriteString("\n\n")
	}

	quoted := make([]string, len(tags))
	for i, tag := range tags {
		quoted[i] = fmt.Sprintf("%q", tag)
	}

	content := fmt.Sprintf(`---
id: "%016x%04x"
created_at: %q
updated_at: %q
tags: [%s]
tags_locked: false
---

# %s

%s`,
		created.UnixNano(), index,
		created.Format(time.RFC3339),
		updated.Format(time.RFC3339),
		strings.Join(quoted, ", "),
		title,
		strings.TrimSpace(body.String())+"\n")

	return os.WriteFile(filepath.Join(dir, title+".md"), []byte(content), 0o644)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
