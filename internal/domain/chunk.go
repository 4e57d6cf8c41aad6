package domain

import "fmt"

// SourceType discriminates which source entity a chunk was derived from.
type SourceType string

// Chunk source types.
const (
	SourceDiseaseFeature SourceType = "disease_feature"
	SourceDiseaseGenetic SourceType = "disease_genetic"
	SourcePaperFinding   SourceType = "paper_finding"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceDiseaseFeature, SourceDiseaseGenetic, SourcePaperFinding:
		return true
	}
	return false
}

// Chunk is the atomic retrievable unit: a bounded piece of text with
// provenance back to exactly one source entity. Created at ingestion time,
// never mutated, destroyed only on full reindex.
type Chunk struct {
	id         string
	sourceType SourceType
	text       string
	diseaseRef string
	paperRef   string
	section    string // category label for feature chunks, finding index for paper chunks
}

// NewChunk validates and creates a Chunk. Exactly one of diseaseRef/paperRef
// must be set, consistent with the source type.
func NewChunk(id string, st SourceType, text, diseaseRef, paperRef, section string) (Chunk, error) {
	if id == "" {
		return Chunk{}, fmt.Errorf("chunk id is required")
	}
	if text == "" {
		return Chunk{}, fmt.Errorf("chunk %s: text is required", id)
	}
	if !st.Valid() {
		return Chunk{}, fmt.Errorf("chunk %s: unknown source type %q", id, st)
	}

	switch st {
	case SourceDiseaseFeature, SourceDiseaseGenetic:
		if diseaseRef == "" || paperRef != "" {
			return Chunk{}, fmt.Errorf("chunk %s: %s requires a disease reference only", id, st)
		}
	case SourcePaperFinding:
		if paperRef == "" || diseaseRef != "" {
			return Chunk{}, fmt.Errorf("chunk %s: %s requires a paper reference only", id, st)
		}
	}

	return Chunk{
		id: id, sourceType: st, text: text,
		diseaseRef: diseaseRef, paperRef: paperRef, section: section,
	}, nil
}

// ReconstructChunk rebuilds a Chunk from storage without validation.
func ReconstructChunk(id string, st SourceType, text, diseaseRef, paperRef, section string) Chunk {
	return Chunk{
		id: id, sourceType: st, text: text,
		diseaseRef: diseaseRef, paperRef: paperRef, section: section,
	}
}

// ID returns the chunk identifier.
func (c Chunk) ID() string { return c.id }

// SourceType returns the chunk's source type.
func (c Chunk) SourceType() SourceType { return c.sourceType }

// Text returns the embedded text.
func (c Chunk) Text() string { return c.text }

// DiseaseRef returns the orpha code reference, empty for paper chunks.
func (c Chunk) DiseaseRef() string { return c.diseaseRef }

// PaperRef returns the paper id reference, empty for disease chunks.
func (c Chunk) PaperRef() string { return c.paperRef }

// Section returns the sub-entity label: the clinical-feature category for
// feature chunks, the finding index ("0", "1", ... or "all") for paper chunks.
func (c Chunk) Section() string { return c.section }

// SourceRef returns whichever source reference is set. Chunks from one source
// entity share the same SourceRef, which drives retrieval deduplication.
func (c Chunk) SourceRef() string {
	if c.diseaseRef != "" {
		return "d:" + c.diseaseRef
	}
	return "p:" + c.paperRef
}
