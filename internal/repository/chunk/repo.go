// Package chunk is the vector index over ingested chunks: upsert, delete, and
// filtered KNN search with a fixed embedding model and dimensionality.
package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/raredex/internal/db"
	"github.com/kailas-cloud/raredex/internal/domain"
)

const (
	indexName      = domain.KeyPrefix + "chunks:idx"
	chunkKeyPrefix = domain.KeyPrefix + "chunk:"
	metaKey        = domain.KeyPrefix + "chunks:meta"
)

// store is the consumer interface for the chunk index (ISP).
type store interface {
	db.HashStore
	db.KVStore
	db.IndexManager
	db.Searcher
}

// Hit is a single index hit: the stored chunk and its similarity score.
type Hit struct {
	Chunk domain.Chunk
	Score float64
}

// HNSWConfig holds HNSW index tuning parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// meta pins the embedding configuration the index was built with.
type meta struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
}

// Repo implements the chunk index over a db.Store. Mutations are serialized
// behind mu (single-writer discipline); searches go straight to the store and
// may run concurrently.
type Repo struct {
	store store
	model string
	dims  int
	hnsw  HNSWConfig

	mu sync.Mutex // guards upsert/delete/clear
}

// New creates a chunk index bound to one embedding model and dimensionality.
func New(s store, model string, dims int) *Repo {
	return &Repo{store: s, model: model, dims: dims}
}

// WithHNSW configures HNSW tuning parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the index on first use and verifies the recorded
// embedding configuration on every later start. A model change without a full
// reindex is a configuration error.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	data, err := r.store.Get(ctx, metaKey)
	switch {
	case err == nil:
		var m meta
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse index meta: %w", err)
		}
		if m.Model != r.model {
			return fmt.Errorf("index built with model %q, configured %q: %w",
				m.Model, r.model, domain.ErrEmbeddingModelMismatch)
		}
		if m.Dimensions != r.dims {
			return fmt.Errorf("index built with %d dimensions, configured %d: %w",
				m.Dimensions, r.dims, domain.ErrVectorDimMismatch)
		}
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		// first start, fall through to create
	default:
		return r.storeErr("get index meta", err)
	}

	def, err := db.NewIndex(indexName).
		Prefix(chunkKeyPrefix).
		Tag(fieldSourceType).
		Tag(fieldDiseaseRef).
		Tag(fieldPaperRef).
		Vector(fieldVector, r.dims, db.VectorHNSW, db.DistanceCosine).
		As(fieldVectorAlias).
		HNSW(r.hnsw.M, r.hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return r.storeErr("create index", err)
	}

	data, err = json.Marshal(meta{Model: r.model, Dimensions: r.dims, Metric: string(db.DistanceCosine)})
	if err != nil {
		return fmt.Errorf("marshal index meta: %w", err)
	}
	if err := r.store.Set(ctx, metaKey, data); err != nil {
		return r.storeErr("write index meta", err)
	}
	return nil
}

// Upsert stores a chunk and its vector, replacing any previous value under the
// same chunk id.
func (r *Repo) Upsert(ctx context.Context, c domain.Chunk, vector []float32) error {
	if err := r.checkDims(vector); err != nil {
		return fmt.Errorf("chunk %s: %w", c.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.HSet(ctx, chunkKeyPrefix+c.ID(), buildHashFields(c, vector)); err != nil {
		return r.storeErr(fmt.Sprintf("upsert chunk %s", c.ID()), err)
	}
	return nil
}

// BatchUpsert stores multiple chunks in a single pipelined write.
func (r *Repo) BatchUpsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks and %d vectors", len(chunks), len(vectors))
	}

	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		if err := r.checkDims(vectors[i]); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID(), err)
		}
		items[i] = db.HashSetItem{
			Key:    chunkKeyPrefix + c.ID(),
			Fields: buildHashFields(c, vectors[i]),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return r.storeErr("batch upsert", err)
	}
	return nil
}

// Delete removes a chunk by id.
func (r *Repo) Delete(ctx context.Context, chunkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Del(ctx, chunkKeyPrefix+chunkID); err != nil {
		return r.storeErr(fmt.Sprintf("delete chunk %s", chunkID), err)
	}
	return nil
}

// Clear removes every stored chunk. Used by full reindex.
func (r *Repo) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.store.Scan(ctx, chunkKeyPrefix+"*")
	if err != nil {
		return r.storeErr("scan chunks", err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return r.storeErr(fmt.Sprintf("delete %s", key), err)
		}
	}
	return nil
}

// Get fetches a single chunk by id.
func (r *Repo) Get(ctx context.Context, chunkID string) (domain.Chunk, error) {
	fields, err := r.store.HGetAll(ctx, chunkKeyPrefix+chunkID)
	if err != nil {
		return domain.Chunk{}, r.storeErr(fmt.Sprintf("get chunk %s", chunkID), err)
	}
	if len(fields) == 0 {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	return parseHashFields(chunkID, fields), nil
}

// SearchKNN returns up to k chunks by descending similarity, ties broken by
// chunk id ascending. The filter is applied before ranking; total reports how
// many candidates matched so callers can tell a thin index from a thin cutoff.
func (r *Repo) SearchKNN(
	ctx context.Context, vector []float32, k int, f domain.ChunkFilter,
) (hits []Hit, total int, err error) {
	if err := r.checkDims(vector); err != nil {
		return nil, 0, fmt.Errorf("query vector: %w", err)
	}
	if k <= 0 {
		return nil, 0, nil
	}

	q := &db.KNNQuery{
		IndexName: indexName,
		Vector:    vector,
		K:         k,
		Filters:   filterToTags(f),
		ReturnFields: []string{
			fieldText, fieldSourceType, fieldDiseaseRef, fieldPaperRef, fieldSection, fieldScore,
		},
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, 0, r.storeErr("search knn", err)
	}

	hits = make([]Hit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		id := strings.TrimPrefix(entry.Key, chunkKeyPrefix)
		hits = append(hits, Hit{Chunk: parseHashFields(id, entry.Fields), Score: entry.Score})
	}

	// Redis orders KNN hits by score but leaves ties unspecified; re-sort so
	// both drivers produce the same ordering.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID() < hits[j].Chunk.ID()
	})

	return hits, res.Total, nil
}

// Count returns the number of indexed chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName, "*")
	if err != nil {
		return 0, r.storeErr("count chunks", err)
	}
	return n, nil
}

// HealthCheck verifies the backing store is reachable.
func (r *Repo) HealthCheck(ctx context.Context) error {
	if _, err := r.store.IndexExists(ctx, indexName); err != nil {
		return r.storeErr("index info", err)
	}
	return nil
}

func (r *Repo) checkDims(vector []float32) error {
	if len(vector) != r.dims {
		return fmt.Errorf("got %d dimensions, index has %d: %w",
			len(vector), r.dims, domain.ErrVectorDimMismatch)
	}
	return nil
}

// storeErr wraps driver failures as ErrIndexUnavailable so callers see one
// error kind for an unreachable backing store.
func (r *Repo) storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}

func filterToTags(f domain.ChunkFilter) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	tags := make(map[string]string, 3)
	if f.SourceType != "" {
		tags[fieldSourceType] = string(f.SourceType)
	}
	if f.DiseaseRef != "" {
		tags[fieldDiseaseRef] = f.DiseaseRef
	}
	if f.PaperRef != "" {
		tags[fieldPaperRef] = f.PaperRef
	}
	return tags
}
