package answer

import (
	"fmt"
	"regexp"
	"strings"
)

// geneTokenRe matches gene-symbol-shaped tokens: an uppercase letter followed
// by uppercase letters or digits (TPP1, SMN1, COL1A1).
var geneTokenRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,9}\b`)

// figureRe matches numeric claims: integers, decimals, and percentages.
var figureRe = regexp.MustCompile(`\b\d+(?:\.\d+)?%?`)

// geneStoplist holds all-caps tokens that look like gene symbols but are
// ordinary clinical or prose abbreviations.
var geneStoplist = map[string]struct{}{
	"A": {}, "I": {}, "DNA": {}, "RNA": {}, "MRI": {}, "CT": {}, "EEG": {},
	"ORPHA": {}, "JSON": {}, "II": {}, "III": {}, "IV": {}, "CNS": {},
	"ERT": {}, "FDA": {}, "EMA": {}, "OMIM": {}, "ICD": {}, "NOT": {},
}

// diseaseNameRe matches disease-name-shaped phrases: a capitalized word,
// optionally followed by a few more, ending in a clinical noun
// (Gaucher disease, Rett syndrome, Niemann-Pick disease).
var diseaseNameRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9'-]*(?: [A-Z][A-Za-z0-9'-]*){0,3} (?:disease|syndrome|disorder|deficiency)\b`)

// diseaseLeadStoplist holds capitalized sentence starters and determiners that
// precede a clinical noun without naming a disease ("This disorder", "In
// Gaucher disease").
var diseaseLeadStoplist = map[string]struct{}{
	"This": {}, "The": {}, "That": {}, "These": {}, "Those": {}, "A": {},
	"An": {}, "Such": {}, "In": {}, "With": {}, "For": {}, "Of": {},
	"And": {}, "Or": {}, "But": {}, "Both": {}, "No": {}, "Any": {},
}

// validateGrounding checks that every checkable claim in the summary appears
// in the evidence text: disease names, gene-shaped tokens, and figures must
// be traceable. Returns a list of ungrounded claims, empty when the summary
// passes.
func validateGrounding(summary string, evidence []evidenceItem) []string {
	if strings.TrimSpace(summary) == "" {
		return nil
	}

	corpus := strings.ToUpper(joinEvidence(evidence))
	var violations []string

	for _, name := range dedupeStrings(diseaseNames(summary)) {
		if !strings.Contains(corpus, strings.ToUpper(name)) {
			violations = append(violations, fmt.Sprintf("disease name %q not in evidence", name))
		}
	}

	for _, token := range dedupeStrings(geneTokenRe.FindAllString(summary, -1)) {
		if _, skip := geneStoplist[token]; skip {
			continue
		}
		if !strings.Contains(corpus, token) {
			violations = append(violations, fmt.Sprintf("gene token %q not in evidence", token))
		}
	}

	for _, figure := range dedupeStrings(figureRe.FindAllString(summary, -1)) {
		if !strings.Contains(corpus, strings.ToUpper(figure)) {
			violations = append(violations, fmt.Sprintf("figure %q not in evidence", figure))
		}
	}

	return violations
}

// diseaseNames extracts disease-name-shaped phrases from the summary,
// trimming stoplisted lead words so sentence position does not change the
// extracted name.
func diseaseNames(summary string) []string {
	var out []string
	for _, m := range diseaseNameRe.FindAllString(summary, -1) {
		words := strings.Fields(m)
		for len(words) > 1 {
			if _, skip := diseaseLeadStoplist[words[0]]; !skip {
				break
			}
			words = words[1:]
		}
		// After trimming, the phrase must still open with a proper noun.
		if len(words) < 2 || words[0][0] < 'A' || words[0][0] > 'Z' {
			continue
		}
		out = append(out, strings.Join(words, " "))
	}
	return out
}

func joinEvidence(evidence []evidenceItem) string {
	var b strings.Builder
	for _, item := range evidence {
		b.WriteString(item.text)
		b.WriteByte('\n')
	}
	return b.String()
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
