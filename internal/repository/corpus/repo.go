// Package corpus stores the normalized source records (diseases and papers)
// as JSON documents, keyed so answer assembly can fetch them back by the
// references carried on index chunks.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/raredex/internal/db"
	"github.com/kailas-cloud/raredex/internal/domain"
)

const (
	diseaseKeyPrefix = domain.KeyPrefix + "disease:"
	paperKeyPrefix   = domain.KeyPrefix + "paper:"
)

// store is the consumer interface for the corpus repository (ISP).
type store interface {
	db.JSONStore
	db.HashStore
}

// Repo persists disease records and research papers as JSON documents.
type Repo struct {
	store store
}

func New(s store) *Repo {
	return &Repo{store: s}
}

// PutDisease stores a disease record keyed by its Orpha code.
func (r *Repo) PutDisease(ctx context.Context, rec domain.DiseaseRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal disease %s: %w", rec.OrphaCode, err)
	}
	if err := r.store.JSONSet(ctx, diseaseKeyPrefix+rec.OrphaCode, "$", data); err != nil {
		return fmt.Errorf("store disease %s: %w: %w", rec.OrphaCode, domain.ErrIndexUnavailable, err)
	}
	return nil
}

// GetDisease fetches a disease record by Orpha code.
func (r *Repo) GetDisease(ctx context.Context, orphaCode string) (domain.DiseaseRecord, error) {
	data, err := r.store.JSONGet(ctx, diseaseKeyPrefix+orphaCode)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.DiseaseRecord{}, fmt.Errorf("disease %s: %w", orphaCode, domain.ErrNotFound)
		}
		return domain.DiseaseRecord{}, fmt.Errorf("get disease %s: %w: %w", orphaCode, domain.ErrIndexUnavailable, err)
	}

	var rec domain.DiseaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.DiseaseRecord{}, fmt.Errorf("parse disease %s: %w", orphaCode, err)
	}
	return rec, nil
}

// PutPaper stores a research paper keyed by its content-derived id.
func (r *Repo) PutPaper(ctx context.Context, p domain.ResearchPaper) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal paper %s: %w", p.ID(), err)
	}
	if err := r.store.JSONSet(ctx, paperKeyPrefix+p.ID(), "$", data); err != nil {
		return fmt.Errorf("store paper %s: %w: %w", p.ID(), domain.ErrIndexUnavailable, err)
	}
	return nil
}

// GetPaper fetches a research paper by id.
func (r *Repo) GetPaper(ctx context.Context, id string) (domain.ResearchPaper, error) {
	data, err := r.store.JSONGet(ctx, paperKeyPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ResearchPaper{}, fmt.Errorf("paper %s: %w", id, domain.ErrNotFound)
		}
		return domain.ResearchPaper{}, fmt.Errorf("get paper %s: %w: %w", id, domain.ErrIndexUnavailable, err)
	}

	var p domain.ResearchPaper
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ResearchPaper{}, fmt.Errorf("parse paper %s: %w", id, err)
	}
	return p, nil
}

// Clear removes every stored disease and paper. Used by full reindex.
func (r *Repo) Clear(ctx context.Context) error {
	for _, pattern := range []string{diseaseKeyPrefix + "*", paperKeyPrefix + "*"} {
		keys, err := r.store.Scan(ctx, pattern)
		if err != nil {
			return fmt.Errorf("scan corpus: %w: %w", domain.ErrIndexUnavailable, err)
		}
		for _, key := range keys {
			if err := r.store.Del(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w: %w", key, domain.ErrIndexUnavailable, err)
			}
		}
	}
	return nil
}
