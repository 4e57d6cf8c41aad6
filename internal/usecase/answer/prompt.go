package answer

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a clinical information assistant for rare diseases.
Answer using ONLY the numbered evidence passages provided by the user.
Do not use outside knowledge. Do not mention genes, statistics, or diseases
that are absent from the evidence. If the evidence does not cover the
question, say so.
Respond with a JSON object: {"summary": "<your answer>"}.`

const strictSystemPrompt = systemPrompt + `
Your previous answer contained claims not present in the evidence. Restrict
this answer strictly to facts stated verbatim in the passages. Omit any gene
name, number, or disease not literally present in the evidence.`

// trimEvidence drops the lowest-ranked results until the combined text length
// fits the budget. The top result is always kept, whatever its length.
func trimEvidence(results []evidenceItem, maxChars int) []evidenceItem {
	if maxChars <= 0 {
		return results
	}

	total := 0
	for i, item := range results {
		total += len(item.text)
		if total > maxChars && i > 0 {
			return results[:i]
		}
	}
	return results
}

// buildUserPrompt renders the query and the numbered evidence passages.
func buildUserPrompt(query string, evidence []evidenceItem) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nEvidence:\n")
	for i, item := range evidence {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, item.text)
	}
	return b.String()
}
