package study

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/tareas/internal/model"
	"github.com/dukerupert/tareas/internal/provider"
)

const (
	embedBatchSize = 5
	embedPause     = time.Second
)

type chunkWriter interface {
	Insert(chunks []model.DocumentChunk) error
}

// IndexStats counts the outcome of an index run.
type IndexStats struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Indexer embeds document chunks in small concurrent batches and stores
// them. Batches run one after another with a pause between them.
type Indexer struct {
	embedder  provider.Embedder
	chunks    chunkWriter
	batchSize int
	pause     time.Duration
	logger    *slog.Logger
}

func NewIndexer(embedder provider.Embedder, chunks chunkWriter, logger *slog.Logger) *Indexer {
	return &Indexer{
		embedder:  embedder,
		chunks:    chunks,
		batchSize: embedBatchSize,
		pause:     embedPause,
		logger:    logger,
	}
}

// Index embeds texts as chunks of base's session. A chunk that fails to
// embed is logged and skipped; storage errors and cancellation stop the run.
func (ix *Indexer) Index(ctx context.Context, base model.DocumentChunk, texts []string) (IndexStats, error) {
	stats := IndexStats{Total: len(texts)}
	if ix.embedder == nil {
		return stats, fmt.Errorf("index document: no embedding backend configured")
	}

	for start := 0; start < len(texts); start += ix.batchSize {
		end := min(start+ix.batchSize, len(texts))
		batch := make([]*model.DocumentChunk, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := ix.embedder.Embed(ctx, texts[i])
				if err != nil {
					ix.logger.Warn("embed chunk", "session_id", base.SessionID, "chunk", i, "error", err)
					return nil
				}
				c := base
				c.ChunkIndex = i
				c.Content = texts[i]
				c.Embedding = vec
				c.TokenCount = (len(texts[i]) + 3) / 4
				batch[i-start] = &c
				return nil
			})
		}
		g.Wait()

		ready := make([]model.DocumentChunk, 0, len(batch))
		for _, c := range batch {
			if c == nil {
				stats.Failed++
				continue
			}
			ready = append(ready, *c)
		}
		if len(ready) > 0 {
			if err := ix.chunks.Insert(ready); err != nil {
				return stats, fmt.Errorf("store chunks: %w", err)
			}
			stats.Indexed += len(ready)
		}

		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if end < len(texts) && ix.pause > 0 {
			t := time.NewTimer(ix.pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return stats, ctx.Err()
			case <-t.C:
			}
		}
	}

	ix.logger.Info("document indexed", "session_id", base.SessionID, "chunks", stats.Indexed, "failed", stats.Failed)
	return stats, nil
}
