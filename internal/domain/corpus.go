package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyPrefix namespaces all persisted keys.
const KeyPrefix = "raredex:"

// GeneticInfo holds the inheritance pattern, gene symbol, and mutation
// description of a disease record.
type GeneticInfo struct {
	Inheritance string `json:"inheritance,omitempty"`
	Gene        string `json:"gene,omitempty"`
	Mutations   string `json:"mutations,omitempty"`
}

// IsEmpty reports whether no genetic field is populated.
func (g GeneticInfo) IsEmpty() bool {
	return g.Inheritance == "" && g.Gene == "" && g.Mutations == ""
}

// DiseaseRecord is a structured Orphanet-style disease entry, immutable once
// ingested. The orpha code is its unique key; clinical features map a category
// label to an ordered list of feature strings.
type DiseaseRecord struct {
	OrphaCode        string              `json:"orpha_code,omitempty"`
	Name             string              `json:"name"`
	ClinicalFeatures map[string][]string `json:"clinical_features,omitempty"`
	GeneticInfo      GeneticInfo         `json:"genetic_info,omitempty"`
}

// ResearchPaper is a PubMed-style paper entry. LinkedOrphaCode is a weak
// reference: a paper may discuss a disease without belonging to it.
type ResearchPaper struct {
	Title           string   `json:"title"`
	PublicationYear string   `json:"publication_year,omitempty"`
	KeyFindings     []string `json:"key_findings,omitempty"`
	LinkedOrphaCode string   `json:"linked_orpha_code,omitempty"`
}

// ID derives a stable paper identifier from the title. Papers carry no id in
// the source corpus; hashing keeps reindexing deterministic.
func (p ResearchPaper) ID() string {
	h := sha256.Sum256([]byte(p.Title))
	return hex.EncodeToString(h[:])[:16]
}
