package ingestion_engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkWords is the window size used when none is configured.
const DefaultChunkWords = 400

// Chunk is one window of words and its zero-based position in the source.
type Chunk struct {
	Position int
	Text     string
}

// ChunkWords splits text on whitespace and returns contiguous windows of
// wordsPerChunk words joined by single spaces. The last window may be
// shorter. Windows never overlap.
func ChunkWords(text string, wordsPerChunk int) []string {
	if wordsPerChunk <= 0 {
		wordsPerChunk = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, (len(words)+wordsPerChunk-1)/wordsPerChunk)
	for start := 0; start < len(words); start += wordsPerChunk {
		end := min(start+wordsPerChunk, len(words))
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

// streamChunks emits texts in order, numbering them from firstPos, and closes
// the channel when done or when ctx is cancelled.
func streamChunks(ctx context.Context, g *errgroup.Group, texts []string, firstPos int) <-chan Chunk {
	out := make(chan Chunk, 8)

	g.Go(func() error {
		defer close(out)
		for i, t := range texts {
			select {
			case out <- Chunk{Position: firstPos + i, Text: t}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out
}
