package textutil

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	sentenceEnd   = regexp.MustCompile(`[^.!?]+[.!?]+(?:\s|$)`)
)

// SplitChunks splits text into sentence-respecting chunks of at most
// wordLimit words. Sentences are never split, so a single sentence longer
// than wordLimit becomes its own oversized chunk. maxChunks == -1 means
// unlimited; a positive value truncates the result to the first maxChunks
// chunks and drops the rest.
func SplitChunks(text string, maxChunks, wordLimit int) []string {
	// Literal \n tokens come back from sanitized scripts; turn them into
	// real newlines before collapsing whitespace.
	cleaned := strings.ReplaceAll(text, `\n`, "\n")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	sentences := sentenceEnd.FindAllString(cleaned, -1)

	var chunks []string
	var current []string

	for _, sentence := range sentences {
		words := strings.Fields(strings.TrimSpace(sentence))
		if len(current)+len(words) <= wordLimit {
			current = append(current, words...)
		} else {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
			}
			current = words
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	if maxChunks == -1 || len(chunks) <= maxChunks {
		return chunks
	}
	return chunks[:maxChunks]
}
