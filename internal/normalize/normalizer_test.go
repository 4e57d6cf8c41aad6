package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/raredex/internal/domain"
)

func testDisease() domain.DiseaseRecord {
	return domain.DiseaseRecord{
		OrphaCode: "79408",
		Name:      "CLN2 disease",
		ClinicalFeatures: map[string][]string{
			"neurological": {"seizures", "progressive ataxia"},
			"ocular":       {"retinal degeneration"},
		},
		GeneticInfo: domain.GeneticInfo{
			Inheritance: "autosomal recessive",
			Gene:        "TPP1",
			Mutations:   "c.622C>T",
		},
	}
}

func TestNormalize_DiseaseChunks(t *testing.T) {
	n := New(Config{MaxChunkChars: 1200, PaperSplitThreshold: 1200})

	chunks, failures := n.Normalize(map[string]domain.DiseaseRecord{"79408": testDisease()}, nil)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	// Two feature categories (sorted) plus one genetic chunk.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunkIDs(chunks))
	}

	wantIDs := []string{"d:79408:f:neurological", "d:79408:f:ocular", "d:79408:g"}
	for i, want := range wantIDs {
		if chunks[i].ID() != want {
			t.Errorf("chunks[%d].ID = %s, want %s", i, chunks[i].ID(), want)
		}
	}

	neuro := chunks[0]
	if neuro.SourceType() != domain.SourceDiseaseFeature {
		t.Errorf("source type = %s", neuro.SourceType())
	}
	if neuro.DiseaseRef() != "79408" {
		t.Errorf("disease ref = %s", neuro.DiseaseRef())
	}
	if neuro.Section() != "neurological" {
		t.Errorf("section = %s", neuro.Section())
	}
	if !strings.Contains(neuro.Text(), "CLN2 disease") || !strings.Contains(neuro.Text(), "seizures") {
		t.Errorf("feature text missing expected content: %s", neuro.Text())
	}

	genetic := chunks[2]
	if genetic.SourceType() != domain.SourceDiseaseGenetic {
		t.Errorf("genetic source type = %s", genetic.SourceType())
	}
	if !strings.Contains(genetic.Text(), "TPP1") || !strings.Contains(genetic.Text(), "autosomal recessive") {
		t.Errorf("genetic text missing expected content: %s", genetic.Text())
	}
	if !strings.Contains(genetic.Text(), "known mutations: c.622C>T") {
		t.Errorf("genetic text missing mutations: %s", genetic.Text())
	}
}

func TestNormalize_DiseasesSortedByOrphaCode(t *testing.T) {
	n := New(Config{MaxChunkChars: 1200})

	a := testDisease()
	a.OrphaCode = "100"
	b := testDisease()
	b.OrphaCode = "99"

	chunks, _ := n.Normalize(map[string]domain.DiseaseRecord{"100": a, "99": b}, nil)
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	// Lexicographic order: "100" before "99".
	if chunks[0].DiseaseRef() != "100" {
		t.Errorf("first chunk disease ref = %s, want 100", chunks[0].DiseaseRef())
	}
}

func TestNormalize_PaperPerFinding(t *testing.T) {
	n := New(Config{MaxChunkChars: 1200, PaperSplitThreshold: 40})

	paper := domain.ResearchPaper{
		Title:           "Enzyme replacement in CLN2 disease",
		PublicationYear: "2018",
		KeyFindings: []string{
			"cerliponase alfa slowed motor decline in 87% of patients",
			"treatment was well tolerated over 96 weeks of follow-up",
		},
	}

	chunks, failures := n.Normalize(nil, []domain.ResearchPaper{paper})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].ID() != "p:"+paper.ID()+":k:0" {
		t.Errorf("chunks[0].ID = %s", chunks[0].ID())
	}
	if chunks[1].ID() != "p:"+paper.ID()+":k:1" {
		t.Errorf("chunks[1].ID = %s", chunks[1].ID())
	}
	for _, c := range chunks {
		if c.SourceType() != domain.SourcePaperFinding {
			t.Errorf("source type = %s", c.SourceType())
		}
		if c.PaperRef() != paper.ID() {
			t.Errorf("paper ref = %s", c.PaperRef())
		}
		if !strings.Contains(c.Text(), paper.Title) {
			t.Errorf("chunk text missing title: %s", c.Text())
		}
	}
}

func TestNormalize_ShortPaperSingleChunk(t *testing.T) {
	n := New(Config{MaxChunkChars: 1200, PaperSplitThreshold: 1200})

	paper := domain.ResearchPaper{
		Title:           "Case report",
		PublicationYear: "2021",
		KeyFindings:     []string{"finding one", "finding two"},
	}

	chunks, failures := n.Normalize(nil, []domain.ResearchPaper{paper})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID() != "p:"+paper.ID()+":k:all" {
		t.Errorf("chunk id = %s", chunks[0].ID())
	}
	if !strings.Contains(chunks[0].Text(), "finding one") || !strings.Contains(chunks[0].Text(), "finding two") {
		t.Errorf("single chunk missing findings: %s", chunks[0].Text())
	}
	if !strings.Contains(chunks[0].Text(), "(2021)") {
		t.Errorf("chunk header missing publication year: %s", chunks[0].Text())
	}
}

func TestNormalize_MalformedRecordsCollected(t *testing.T) {
	n := New(Config{MaxChunkChars: 1200})

	noCode := testDisease()
	noCode.OrphaCode = ""
	noName := testDisease()
	noName.OrphaCode = "42"
	noName.Name = ""

	diseases := map[string]domain.DiseaseRecord{
		"":      noCode,
		"42":    noName,
		"79408": testDisease(),
	}
	papers := []domain.ResearchPaper{
		{Title: "", KeyFindings: []string{"orphan finding"}},
	}

	chunks, failures := n.Normalize(diseases, papers)

	if len(failures) != 3 {
		t.Fatalf("expected 3 failures, got %d: %v", len(failures), failures)
	}
	for _, f := range failures {
		if !errors.Is(f, domain.ErrMalformedRecord) {
			t.Errorf("failure %v does not wrap ErrMalformedRecord", f)
		}
	}

	// The valid disease still produced its chunks.
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks from the valid record, got %d", len(chunks))
	}
}

func TestNormalize_OverlongChunkSplitsWithSuffixes(t *testing.T) {
	n := New(Config{MaxChunkChars: 120})

	rec := domain.DiseaseRecord{
		OrphaCode: "1",
		Name:      "Test disease",
		ClinicalFeatures: map[string][]string{
			"neurological": {
				"first symptom appears in infancy. second symptom develops later. third symptom is progressive. fourth symptom is rare",
			},
		},
	}

	chunks, failures := n.Normalize(map[string]domain.DiseaseRecord{"1": rec}, nil)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected split into multiple chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if len(c.Text()) > 120 {
			t.Errorf("chunk %d exceeds max length: %d chars", i, len(c.Text()))
		}
		if !strings.HasPrefix(c.ID(), "d:1:f:neurological#") {
			t.Errorf("fragment id = %s, want d:1:f:neurological#n", c.ID())
		}
		if c.DiseaseRef() != "1" {
			t.Errorf("fragment %d lost its disease ref", i)
		}
	}
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     int
	}{
		{"short text stays whole", "One sentence.", 100, 1},
		{"empty text", "   ", 100, 0},
		{"splits at sentence boundary", "First sentence here. Second sentence here.", 25, 2},
		{"no limit", strings.Repeat("word ", 100), 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := splitText(tc.text, tc.maxChars)
			if len(got) != tc.want {
				t.Fatalf("splitText() produced %d fragments, want %d: %q", len(got), tc.want, got)
			}
			for _, f := range got {
				if tc.maxChars > 0 && len(f) > tc.maxChars {
					t.Errorf("fragment exceeds max: %q", f)
				}
			}
		})
	}
}

func TestSplitText_NeverMidWord(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta"
	for _, f := range splitText(text, 12) {
		for _, w := range strings.Fields(f) {
			if !strings.Contains(text, w) {
				t.Errorf("word %q was cut mid-word", w)
			}
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Neurological", "neurological"},
		{"Eyes & Vision", "eyes_vision"},
		{"cardio-vascular", "cardio_vascular"},
	}
	for _, tc := range tests {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID()
	}
	return ids
}
