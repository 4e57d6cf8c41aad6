// Package normalize turns raw disease records and research papers into flat,
// embeddable text chunks with stable ids. It performs no I/O: malformed
// records are collected and reported, never fatal to the batch.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// Config tunes chunking behavior.
type Config struct {
	// MaxChunkChars bounds a single chunk's text length.
	MaxChunkChars int
	// PaperSplitThreshold: papers whose combined findings fit under this
	// length become one chunk instead of one chunk per finding.
	PaperSplitThreshold int
}

// Normalizer builds chunks from corpus records.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize converts diseases and papers into chunks. Output order is
// deterministic: diseases by orpha code with sorted feature categories, then
// papers and findings in input order. Malformed records are skipped and
// reported in the second return value.
func (n *Normalizer) Normalize(
	diseases map[string]domain.DiseaseRecord, papers []domain.ResearchPaper,
) ([]domain.Chunk, []*domain.RecordError) {
	var chunks []domain.Chunk
	var failures []*domain.RecordError

	orphaCodes := make([]string, 0, len(diseases))
	for code := range diseases {
		orphaCodes = append(orphaCodes, code)
	}
	sort.Strings(orphaCodes)

	for _, code := range orphaCodes {
		rec := diseases[code]
		// The source corpus is keyed by orpha code; the record itself may omit it.
		if rec.OrphaCode == "" {
			rec.OrphaCode = code
		}
		diseaseChunks, err := n.normalizeDisease(rec)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		chunks = append(chunks, diseaseChunks...)
	}

	for i, paper := range papers {
		paperChunks, err := n.normalizePaper(i, paper)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		chunks = append(chunks, paperChunks...)
	}

	return chunks, failures
}

func (n *Normalizer) normalizeDisease(rec domain.DiseaseRecord) ([]domain.Chunk, *domain.RecordError) {
	if rec.OrphaCode == "" {
		return nil, recordErr("disease:"+rec.Name, "missing orpha_code")
	}
	if rec.Name == "" {
		return nil, recordErr("disease:"+rec.OrphaCode, "missing name")
	}

	var chunks []domain.Chunk

	categories := make([]string, 0, len(rec.ClinicalFeatures))
	for cat := range rec.ClinicalFeatures {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		features := rec.ClinicalFeatures[cat]
		if len(features) == 0 {
			continue
		}
		text := fmt.Sprintf("Disease: %s (ORPHA:%s). Clinical features, %s: %s.",
			rec.Name, rec.OrphaCode, cat, strings.Join(features, "; "))
		id := fmt.Sprintf("d:%s:f:%s", rec.OrphaCode, slugify(cat))

		split, err := n.buildChunks(id, domain.SourceDiseaseFeature, text, rec.OrphaCode, "", cat)
		if err != nil {
			return nil, recordErr("disease:"+rec.OrphaCode, err.Error())
		}
		chunks = append(chunks, split...)
	}

	if !rec.GeneticInfo.IsEmpty() {
		text := geneticText(rec)
		id := fmt.Sprintf("d:%s:g", rec.OrphaCode)

		split, err := n.buildChunks(id, domain.SourceDiseaseGenetic, text, rec.OrphaCode, "", "genetic")
		if err != nil {
			return nil, recordErr("disease:"+rec.OrphaCode, err.Error())
		}
		chunks = append(chunks, split...)
	}

	return chunks, nil
}

func (n *Normalizer) normalizePaper(pos int, paper domain.ResearchPaper) ([]domain.Chunk, *domain.RecordError) {
	if strings.TrimSpace(paper.Title) == "" {
		return nil, recordErr(fmt.Sprintf("paper[%d]", pos), "missing title")
	}
	if len(paper.KeyFindings) == 0 {
		return nil, recordErr("paper:"+paper.ID(), "no key findings")
	}

	paperID := paper.ID()
	header := paperHeader(paper)

	totalLen := 0
	for _, finding := range paper.KeyFindings {
		totalLen += len(finding)
	}

	// Short papers stay whole: one chunk carrying all findings.
	if n.cfg.PaperSplitThreshold <= 0 || totalLen <= n.cfg.PaperSplitThreshold {
		text := header + " Key findings: " + strings.Join(paper.KeyFindings, " ")
		id := fmt.Sprintf("p:%s:k:all", paperID)

		chunks, err := n.buildChunks(id, domain.SourcePaperFinding, text, "", paperID, "all")
		if err != nil {
			return nil, recordErr("paper:"+paperID, err.Error())
		}
		return chunks, nil
	}

	var chunks []domain.Chunk
	for i, finding := range paper.KeyFindings {
		if strings.TrimSpace(finding) == "" {
			continue
		}
		text := header + " Key finding: " + finding
		id := fmt.Sprintf("p:%s:k:%d", paperID, i)

		split, err := n.buildChunks(id, domain.SourcePaperFinding, text, "", paperID, fmt.Sprintf("%d", i))
		if err != nil {
			return nil, recordErr("paper:"+paperID, err.Error())
		}
		chunks = append(chunks, split...)
	}
	return chunks, nil
}

// buildChunks splits over-long text at sentence boundaries; fragments inherit
// the source reference and get #n id suffixes.
func (n *Normalizer) buildChunks(
	id string, st domain.SourceType, text, diseaseRef, paperRef, section string,
) ([]domain.Chunk, error) {
	fragments := splitText(text, n.cfg.MaxChunkChars)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("chunk %s: empty text", id)
	}

	chunks := make([]domain.Chunk, 0, len(fragments))
	for i, fragment := range fragments {
		fragID := id
		if len(fragments) > 1 {
			fragID = fmt.Sprintf("%s#%d", id, i)
		}
		c, err := domain.NewChunk(fragID, st, fragment, diseaseRef, paperRef, section)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", fragID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func geneticText(rec domain.DiseaseRecord) string {
	var parts []string
	if rec.GeneticInfo.Inheritance != "" {
		parts = append(parts, "inheritance: "+rec.GeneticInfo.Inheritance)
	}
	if rec.GeneticInfo.Gene != "" {
		parts = append(parts, "gene: "+rec.GeneticInfo.Gene)
	}
	if rec.GeneticInfo.Mutations != "" {
		parts = append(parts, "known mutations: "+rec.GeneticInfo.Mutations)
	}
	return fmt.Sprintf("Disease: %s (ORPHA:%s). Genetic information: %s.",
		rec.Name, rec.OrphaCode, strings.Join(parts, "; "))
}

func paperHeader(p domain.ResearchPaper) string {
	if p.PublicationYear != "" {
		return fmt.Sprintf("Study: %s (%s).", p.Title, p.PublicationYear)
	}
	return fmt.Sprintf("Study: %s.", p.Title)
}

// slugify lowercases a category label and replaces non-alphanumeric runs with
// a single underscore, keeping chunk ids TAG-safe.
func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func recordErr(recordID, reason string) *domain.RecordError {
	return domain.NewRecordError(recordID, reason)
}
