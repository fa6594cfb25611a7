package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultIndexPath is the fixed on-disk location of the persisted index.
const DefaultIndexPath = "faiss_index"

// NoResultsSentinel is returned by FormatResults for an empty result set.
const NoResultsSentinel = "No relevant information found in the knowledge base."

// ScoredChunk is one query hit, ranked by similarity.
type ScoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// indexData is the persisted index: the full ordered chunk sequence and the
// vector for each chunk, replaced wholesale on every rebuild.
type indexData struct {
	Chunks    []string    `json:"chunks"`
	Vectors   [][]float64 `json:"vectors"`
	CreatedAt string      `json:"created_at"`
}

// Base is the knowledge base over one swappable index.
//
// Concurrency contract: concurrent CreateIndex calls race on the persisted
// file and the last writer wins; Query during a rebuild may read the previous
// index. Eventual consistency is accepted, reads are never blocked on a
// rebuild's embedding calls.
type Base struct {
	embedder  Embedder
	path      string
	chunkSize int
	overlap   int

	mu    sync.RWMutex
	index *indexData // nil until first create or lazy load
}

// NewBase creates a knowledge base persisting at path (DefaultIndexPath when
// empty).
func NewBase(embedder Embedder, path string, chunkSize, overlap int) *Base {
	if path == "" {
		path = DefaultIndexPath
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Base{embedder: embedder, path: path, chunkSize: chunkSize, overlap: overlap}
}

// CreateIndex chunks text, embeds every chunk and replaces the index, in
// memory and on disk. No merging with a previous index happens.
func (b *Base) CreateIndex(ctx context.Context, text string) error {
	chunks := SplitText(text, b.chunkSize, b.overlap)
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from text")
	}
	slog.Info("building knowledge index", "chunks", len(chunks), "chunk_size", b.chunkSize, "overlap", b.overlap)

	vectors, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	idx := &indexData{
		Chunks:    chunks,
		Vectors:   vectors,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := b.save(idx); err != nil {
		return err
	}

	b.mu.Lock()
	b.index = idx
	b.mu.Unlock()

	slog.Info("knowledge index created", "path", b.path, "chunks", len(chunks))
	return nil
}

// save persists idx to the fixed path, creating parent directories.
func (b *Base) save(idx *indexData) error {
	if dir := filepath.Dir(b.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// load reads the persisted index. A missing file returns (nil, nil) so
// queries can fail soft.
func (b *Base) load() (*indexData, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}
	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return &idx, nil
}

// Query embeds the query text and returns the k most similar chunks in
// descending score order. With no in-memory index it lazily loads the
// persisted one; with no persisted index either it returns an empty set and
// no error.
func (b *Base) Query(ctx context.Context, text string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 3
	}

	b.mu.RLock()
	idx := b.index
	b.mu.RUnlock()

	if idx == nil {
		loaded, err := b.load()
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			slog.Warn("knowledge index not found, returning empty result", "path", b.path)
			return []ScoredChunk{}, nil
		}
		b.mu.Lock()
		if b.index == nil {
			b.index = loaded
		}
		idx = b.index
		b.mu.Unlock()
	}

	queryVecs, err := b.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv := queryVecs[0]

	results := make([]ScoredChunk, 0, len(idx.Chunks))
	for i, chunk := range idx.Chunks {
		if i >= len(idx.Vectors) {
			break
		}
		results = append(results, ScoredChunk{Text: chunk, Score: cosine(qv, idx.Vectors[i])})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// FormatResults renders ranked chunks numbered from 1.
func FormatResults(chunks []ScoredChunk) string {
	if len(chunks) == 0 {
		return NoResultsSentinel
	}
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("Result %d:\n%s\n", i+1, c.Text))
	}
	return strings.Join(parts, "\n")
}

// cosine computes cosine similarity; mismatched or zero vectors score 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
