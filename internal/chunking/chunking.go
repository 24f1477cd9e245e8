// Package chunking splits generated restaurant descriptions into
// bounded-size chunks for embedding.
package chunking

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize is the chunk length budget in characters.
//
// This is a character budget, not a token budget: downstream embedding cost
// and latency assumptions are calibrated against it.
const DefaultMaxChunkSize = 300

// paragraphSplit matches runs of one or more newlines.
var paragraphSplit = regexp.MustCompile(`\n+`)

// Strategy produces semantic chunks from free text.
type Strategy struct {
	maxChunkSize int
}

// NewStrategy creates a Strategy with the given chunk size budget.
// A non-positive maxChunkSize falls back to DefaultMaxChunkSize.
func NewStrategy(maxChunkSize int) *Strategy {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Strategy{maxChunkSize: maxChunkSize}
}

// MaxChunkSize returns the configured chunk length budget.
func (s *Strategy) MaxChunkSize() int {
	return s.maxChunkSize
}

// ChunkSemantically splits text on paragraph boundaries and packs paragraphs
// into chunks of at most the configured size.
//
// Paragraphs are accumulated into the current chunk (joined by a single
// newline) while the combined length stays within budget; otherwise the
// current chunk is flushed and the paragraph starts a new one. A single
// paragraph longer than the budget is never split: it becomes its own
// oversized chunk. Whitespace-only paragraphs are skipped. Empty input
// yields no chunks.
func (s *Strategy) ChunkSemantically(text string) []string {
	var chunks []string
	var current string

	for _, paragraph := range paragraphSplit.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}

		if len(current)+len(paragraph) <= s.maxChunkSize {
			if current == "" {
				current = paragraph
			} else {
				current += "\n" + paragraph
			}
		} else {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}
			current = paragraph
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}
