package chunk

import (
	"encoding/binary"
	"math"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// Hash field names. Underscore-prefixed fields are internal; the rest are
// filterable tags.
const (
	fieldText        = "__text"
	fieldVector      = "__vector"
	fieldVectorAlias = "vector" // KNN queries reference the field by this alias
	fieldScore       = "__vector_score"
	fieldSourceType  = "source_type"
	fieldDiseaseRef  = "disease_ref"
	fieldPaperRef    = "paper_ref"
	fieldSection     = "section"
)

// buildHashFields converts a chunk and its vector into a flat map for HSET.
// Empty references are left out so TAG filters never match them.
func buildHashFields(c domain.Chunk, vector []float32) map[string]string {
	m := map[string]string{
		fieldText:       c.Text(),
		fieldVector:     vectorToBytes(vector),
		fieldSourceType: string(c.SourceType()),
	}
	if c.DiseaseRef() != "" {
		m[fieldDiseaseRef] = c.DiseaseRef()
	}
	if c.PaperRef() != "" {
		m[fieldPaperRef] = c.PaperRef()
	}
	if c.Section() != "" {
		m[fieldSection] = c.Section()
	}
	return m
}

// parseHashFields converts a flat hash map back into a domain Chunk.
func parseHashFields(id string, m map[string]string) domain.Chunk {
	return domain.ReconstructChunk(
		id,
		domain.SourceType(m[fieldSourceType]),
		m[fieldText],
		m[fieldDiseaseRef],
		m[fieldPaperRef],
		m[fieldSection],
	)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
