// Package kb maintains the semantic vector index over knowledge-base entries
// and answers top-k nearest-neighbor queries. The index is a derived,
// in-memory cache over kb_entries rows and is rebuildable at any time.
package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mailcoach/internal/cache"
	"mailcoach/internal/models"
)

// Embedder encodes texts into fixed-dimension vectors, deterministic for
// identical input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EntryStore is the subset of persistence the retriever needs.
type EntryStore interface {
	ListKBEntries(ctx context.Context) ([]models.KBEntry, error)
	UpdateKBEmbedding(ctx context.Context, id int64, embeddingJSON, checksum string) error
	KBVersion(ctx context.Context) (int64, error)
}

// index is an immutable snapshot: a rebuild constructs a fresh one and swaps
// the pointer, so in-flight queries always see a fully-old or fully-new
// index, never a partial one. version records the KB version the snapshot
// was built from, so queries detect entries written by another process.
type index struct {
	contents []string
	vectors  [][]float32
	version  int64
}

const queryCacheTTL = 5 * time.Minute

// Retriever answers top-k similarity queries over the knowledge base.
type Retriever struct {
	store    EntryStore
	embedder Embedder
	logger   zerolog.Logger

	current    atomic.Pointer[index]
	generation atomic.Uint64
	rebuildMu  sync.Mutex

	queryCache *cache.Cache[[]float32]
}

// NewRetriever creates a retriever in the empty state; the index is built on
// the first query or an explicit Rebuild.
func NewRetriever(store EntryStore, embedder Embedder, logger zerolog.Logger) *Retriever {
	return &Retriever{
		store:      store,
		embedder:   embedder,
		logger:     logger.With().Str("component", "kb").Logger(),
		queryCache: cache.New[[]float32](),
	}
}

// Generation returns the rebuild counter. Callers compare it across calls to
// detect staleness after KB mutations.
func (r *Retriever) Generation() uint64 {
	return r.generation.Load()
}

// Rebuild re-encodes every KB entry and atomically installs a new index.
// Rebuild is not incremental. Cached per-entry embeddings are reused when
// the content checksum still matches.
func (r *Retriever) Rebuild(ctx context.Context) error {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	// The version is read before the entries: a mutation landing between
	// the two reads leaves the snapshot stamped with the older version,
	// which just triggers one more rebuild on the next query.
	version, err := r.store.KBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read kb version: %w", err)
	}

	entries, err := r.store.ListKBEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load kb entries: %w", err)
	}

	idx := &index{
		contents: make([]string, 0, len(entries)),
		vectors:  make([][]float32, 0, len(entries)),
		version:  version,
	}

	var missing []int // positions in entries that need embedding
	vectors := make([][]float32, len(entries))
	for i, entry := range entries {
		checksum := ContentChecksum(entry.Content)
		if entry.Embedding != nil && entry.EmbeddingChecksum != nil && *entry.EmbeddingChecksum == checksum {
			if v, err := DecodeVector(*entry.Embedding); err == nil {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = entries[i].Content
		}
		embedded, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed kb entries: %w", err)
		}
		if len(embedded) != len(missing) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(missing))
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
			encoded, err := EncodeVector(embedded[j])
			if err != nil {
				return err
			}
			// Cache write failures are non-fatal: the index is already
			// correct, the entry just gets re-embedded next rebuild.
			if err := r.store.UpdateKBEmbedding(ctx, entries[i].ID, encoded, ContentChecksum(entries[i].Content)); err != nil {
				r.logger.Warn().Err(err).Int64("entry_id", entries[i].ID).Msg("failed to cache kb embedding")
			}
		}
	}

	for i, entry := range entries {
		if vectors[i] == nil {
			continue
		}
		idx.contents = append(idx.contents, entry.Content)
		idx.vectors = append(idx.vectors, vectors[i])
	}

	r.current.Store(idx)
	generation := r.generation.Add(1)
	r.logger.Info().
		Int("entries", len(idx.contents)).
		Int("embedded", len(missing)).
		Uint64("generation", generation).
		Msg("knowledge index rebuilt")
	return nil
}

// TopK returns the k most relevant KB snippet texts for the query, most
// relevant first. An empty knowledge base yields an empty result. The index
// is rebuilt before answering when it has never been built or when the
// stored knowledge base changed since the last build, so entries created by
// another process become retrievable without a restart.
func (r *Retriever) TopK(ctx context.Context, query string, k int) ([]string, error) {
	version, err := r.store.KBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read kb version: %w", err)
	}

	idx := r.current.Load()
	if idx == nil || idx.version != version {
		if err := r.Rebuild(ctx); err != nil {
			return nil, err
		}
		idx = r.current.Load()
	}
	if len(idx.contents) == 0 || k <= 0 {
		return nil, nil
	}

	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type hit struct {
		pos      int
		distance float64
	}
	hits := make([]hit, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		d := l2Distance(queryVec, v)
		if d < 0 {
			continue // dimension mismatch, stale vector
		}
		hits = append(hits, hit{pos: i, distance: d})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	if k > len(hits) {
		k = len(hits)
	}
	snippets := make([]string, 0, k)
	for _, h := range hits[:k] {
		snippets = append(snippets, idx.contents[h.pos])
	}
	return snippets, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := ContentChecksum(query)
	if v, ok := r.queryCache.Get(key); ok {
		return v, nil
	}
	embedded, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embedded) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(embedded))
	}
	r.queryCache.Set(key, embedded[0], queryCacheTTL)
	return embedded[0], nil
}
