package kb

import (
	"context"
	"log/slog"
	"strings"

	"github.com/localkb/knowledgebase/internal/cache"
	"github.com/localkb/knowledgebase/internal/embed"
	"github.com/localkb/knowledgebase/internal/textproc"
)

// syncItem is one document's embedding-sync plan, produced by the prefilter
// pass. A document with neither part dirty is unchanged and never reaches
// the embedder.
type syncItem struct {
	row         cache.Row
	sourceText  string
	docHash     string
	docDirty    bool
	chunks      []textproc.Chunk
	chunkHash   string
	chunksDirty bool
}

// sourceTextOf builds the document-level embedding input: trimmed title and
// extracted plain body joined by a blank line, or either alone when the
// other is empty.
func sourceTextOf(title, body string) string {
	t := strings.TrimSpace(title)
	p := textproc.ExtractPlainText(body)
	switch {
	case t == "":
		return p
	case p == "":
		return t
	default:
		return t + "\n\n" + p
	}
}

// planSync runs the prefilter pass: for every candidate row, decide via
// content hashes whether the document embedding and/or chunk embeddings
// need recomputing. When the stored document hash matches AND a chunk hash
// exists for the model, chunk extraction is skipped entirely (the fast
// path). Emits the first Phase2Start/Progress sequence, covering all
// candidates.
func planSync(ctx context.Context, rows []cache.Row, docHashes map[string]string, chunkHashes map[string]string, model string, bus *Bus) ([]syncItem, error) {
	bus.Emit(Phase2Start{Total: len(rows)})

	var dirty []syncItem
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bus.Emit(Phase2Progress{Current: i + 1, Total: len(rows), DocumentID: row.ID})

		sourceText := sourceTextOf(row.Title, row.Body)
		if strings.TrimSpace(sourceText) == "" {
			continue
		}
		docHash := embed.ContentHash(sourceText, model)

		storedDocHash, haveDoc := docHashes[row.ID]
		storedChunkHash, haveChunks := chunkHashes[row.ID]

		if haveDoc && storedDocHash == docHash && haveChunks {
			continue
		}

		plain := textproc.ExtractPlainText(row.Body)
		chunks := textproc.ChunkDocument(row.Title, plain)
		texts := make([]string, len(chunks))
		for j, c := range chunks {
			texts[j] = c.Text
		}
		chunkHash := embed.ChunkContentHash(texts, model)

		item := syncItem{
			row:         row,
			sourceText:  sourceText,
			docHash:     docHash,
			docDirty:    !haveDoc || storedDocHash != docHash,
			chunks:      chunks,
			chunkHash:   chunkHash,
			chunksDirty: !haveChunks || storedChunkHash != chunkHash,
		}
		if item.docDirty || item.chunksDirty {
			dirty = append(dirty, item)
		}
	}
	return dirty, nil
}

// executeSync embeds every dirty document and applies the writes in batches
// of batchSize documents. A failed batch falls back to per-document
// application so one poisoned document does not block the run. Emits the
// second Phase2Start/Progress sequence (covering only dirty candidates);
// the final Phase2Complete is emitted by the caller. Returns (synced,
// failed) counts over the dirty set; unchanged documents are the caller's
// to count.
func executeSync(ctx context.Context, db *cache.Cache, embedder embed.Embedder, items []syncItem, batchSize int, bus *Bus, logger *slog.Logger) (synced, failed int, err error) {
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	bus.Emit(Phase2Start{Total: len(items)})

	model := embedder.ModelName()
	var pending []cache.DocumentWrite

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if berr := db.ApplyEmbeddingSyncBatch(pending); berr != nil {
			logger.Warn("embedding sync batch failed; retrying per document",
				slog.Int("batch_size", len(pending)), slog.String("error", berr.Error()))
			for _, w := range pending {
				if perr := db.ApplyEmbeddingSyncBatch([]cache.DocumentWrite{w}); perr != nil {
					logger.Warn("embedding write failed for document",
						slog.String("document_id", w.DocumentID), slog.String("error", perr.Error()))
					failed++
				} else {
					synced++
				}
			}
		} else {
			synced += len(pending)
		}
		pending = pending[:0]
	}

	for i, item := range items {
		if cerr := ctx.Err(); cerr != nil {
			flush()
			return synced, failed, cerr
		}
		bus.Emit(Phase2Progress{Current: i + 1, Total: len(items), DocumentID: item.row.ID})

		write := cache.DocumentWrite{DocumentID: item.row.ID, Model: model}

		if item.docDirty {
			vec, eerr := embedder.Embed(ctx, item.sourceText)
			if eerr != nil {
				logger.Warn("document embedding failed",
					slog.String("document_id", item.row.ID), slog.String("error", eerr.Error()))
				failed++
				continue
			}
			write.DocumentVector = vec
			write.DocumentHash = item.docHash
		}

		if item.chunksDirty {
			texts := make([]string, len(item.chunks))
			for j, c := range item.chunks {
				texts[j] = c.Text
			}
			vecs, eerr := embedder.EmbedBatch(ctx, texts)
			if eerr != nil {
				logger.Warn("chunk embedding failed",
					slog.String("document_id", item.row.ID), slog.String("error", eerr.Error()))
				failed++
				continue
			}
			rows := make([]cache.ChunkEmbeddingWrite, len(item.chunks))
			for j, c := range item.chunks {
				rows[j] = cache.ChunkEmbeddingWrite{
					ChunkIndex:  c.Index,
					ChunkText:   c.Text,
					ContentHash: item.chunkHash,
					Vector:      vecs[j],
				}
			}
			write.ChunkEmbeddings = rows
			write.ChunkHash = item.chunkHash
		}

		pending = append(pending, write)
		if len(pending) >= batchSize {
			flush()
		}
	}
	flush()

	return synced, failed, nil
}
