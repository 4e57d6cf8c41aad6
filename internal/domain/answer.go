package domain

// DiseaseInfo is the structured disease section of an Answer, reconstructed
// from the corpus record and restricted to what the evidence actually covers.
type DiseaseInfo struct {
	Name             string              `json:"name"`
	OrphaCode        string              `json:"orpha_code"`
	ClinicalFeatures map[string][]string `json:"clinical_features,omitempty"`
	GeneticInfo      *GeneticInfo        `json:"genetic_info,omitempty"`
}

// PaperEvidence is one research paper in an Answer, restricted to the key
// findings that were retrieved as evidence.
type PaperEvidence struct {
	Title           string   `json:"title"`
	KeyFindings     []string `json:"key_findings"`
	PublicationYear string   `json:"publication_year,omitempty"`
}

// Answer is the final output of the grounded responder. Fields absent from the
// retrieved evidence are omitted, never fabricated; Sources lists the chunk
// ids the answer was grounded on.
type Answer struct {
	DiseaseInfo          *DiseaseInfo    `json:"disease_info,omitempty"`
	ResearchPapers       []PaperEvidence `json:"research_papers"`
	Summary              string          `json:"summary,omitempty"`
	InsufficientEvidence bool            `json:"insufficient_evidence,omitempty"`
	Sources              []string        `json:"sources,omitempty"`
}

// InsufficientEvidenceAnswer is the fail-safe Answer returned when no evidence
// clears the similarity cutoff. Well-formed, never an error.
func InsufficientEvidenceAnswer() Answer {
	return Answer{
		ResearchPapers:       []PaperEvidence{},
		InsufficientEvidence: true,
	}
}
