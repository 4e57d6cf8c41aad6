package normalize

import "strings"

// splitText breaks text into fragments no longer than maxChars, preferring
// sentence boundaries and falling back to word boundaries for run-on
// sentences. A single token longer than maxChars is kept whole rather than
// cut mid-word.
func splitText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var fragments []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(text) {
		pieces := []string{sentence}
		if len(sentence) > maxChars {
			pieces = splitWords(sentence, maxChars)
		}
		for _, piece := range pieces {
			if current.Len() > 0 && current.Len()+1+len(piece) > maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(piece)
		}
	}
	flush()

	return fragments
}

// splitSentences splits on sentence-terminating punctuation followed by
// whitespace. Newlines also terminate a sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		atTerminator := (c == '.' || c == '!' || c == '?') &&
			i+1 < len(text) && isSpace(text[i+1])
		if atTerminator || c == '\n' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// splitWords packs words into pieces of at most maxChars each.
func splitWords(sentence string, maxChars int) []string {
	words := strings.Fields(sentence)
	var pieces []string
	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
