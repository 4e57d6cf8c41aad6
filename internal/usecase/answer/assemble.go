package answer

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// assemble rebuilds the structured answer sections from the corpus records the
// evidence chunks point back to. Only retrieved categories, genetic info, and
// findings appear; nothing is filled in from the full record beyond that.
func (s *Service) assemble(ctx context.Context, evidence []evidenceItem, summary string) domain.Answer {
	out := domain.Answer{
		ResearchPapers: []domain.PaperEvidence{},
		Summary:        summary,
	}

	for _, item := range evidence {
		out.Sources = append(out.Sources, item.chunk.ID())
	}

	out.DiseaseInfo = s.assembleDisease(ctx, evidence)
	out.ResearchPapers = s.assemblePapers(ctx, evidence)

	return out
}

// assembleDisease returns the top-ranked disease restricted to its retrieved
// sections. Evidence arrives rank-ordered, so the first disease chunk wins.
func (s *Service) assembleDisease(ctx context.Context, evidence []evidenceItem) *domain.DiseaseInfo {
	var orphaCode string
	categories := make(map[string]struct{})
	genetic := false

	for _, item := range evidence {
		c := item.chunk
		if c.DiseaseRef() == "" {
			continue
		}
		if orphaCode == "" {
			orphaCode = c.DiseaseRef()
		}
		if c.DiseaseRef() != orphaCode {
			continue
		}
		switch c.SourceType() {
		case domain.SourceDiseaseFeature:
			categories[c.Section()] = struct{}{}
		case domain.SourceDiseaseGenetic:
			genetic = true
		}
	}

	if orphaCode == "" {
		return nil
	}

	rec, err := s.corpus.GetDisease(ctx, orphaCode)
	if err != nil {
		// The index referenced a record the corpus no longer holds. The
		// summary is still grounded; only the structured section degrades.
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Failed to load disease record", zap.String("orpha_code", orphaCode), zap.Error(err))
		}
		return nil
	}

	info := &domain.DiseaseInfo{
		Name:      rec.Name,
		OrphaCode: rec.OrphaCode,
	}

	if len(categories) > 0 {
		info.ClinicalFeatures = make(map[string][]string, len(categories))
		for cat := range categories {
			if features, ok := rec.ClinicalFeatures[cat]; ok {
				info.ClinicalFeatures[cat] = features
			}
		}
	}
	if genetic && !rec.GeneticInfo.IsEmpty() {
		gi := rec.GeneticInfo
		info.GeneticInfo = &gi
	}

	return info
}

// assemblePapers returns each retrieved paper restricted to the findings that
// were actually retrieved, in rank order.
func (s *Service) assemblePapers(ctx context.Context, evidence []evidenceItem) []domain.PaperEvidence {
	papers := []domain.PaperEvidence{}
	sections := make(map[string]map[string]struct{}) // paperRef -> retrieved sections
	var order []string

	for _, item := range evidence {
		c := item.chunk
		if c.PaperRef() == "" {
			continue
		}
		if _, seen := sections[c.PaperRef()]; !seen {
			sections[c.PaperRef()] = make(map[string]struct{})
			order = append(order, c.PaperRef())
		}
		sections[c.PaperRef()][c.Section()] = struct{}{}
	}

	for _, paperRef := range order {
		rec, err := s.corpus.GetPaper(ctx, paperRef)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("Failed to load paper record", zap.String("paper_id", paperRef), zap.Error(err))
			}
			continue
		}

		papers = append(papers, domain.PaperEvidence{
			Title:           rec.Title,
			KeyFindings:     selectFindings(rec.KeyFindings, sections[paperRef]),
			PublicationYear: rec.PublicationYear,
		})
	}

	return papers
}

// selectFindings picks the findings named by the retrieved sections: "all"
// keeps every finding, a numeric section keeps that finding only.
func selectFindings(findings []string, retrieved map[string]struct{}) []string {
	if _, ok := retrieved["all"]; ok {
		return findings
	}

	var selected []string
	for i, finding := range findings {
		if _, ok := retrieved[strconv.Itoa(i)]; ok {
			selected = append(selected, finding)
		}
	}
	return selected
}
