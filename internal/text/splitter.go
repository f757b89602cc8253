package text

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Splitter cuts document text into overlapping chunks sized for embedding.
// Chunks prefer to end at a sentence terminator or newline when one falls
// past the midpoint of the window; otherwise the cut is hard and the next
// window re-reads the tail of the current one.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter validates the configuration up front. An overlap equal to or
// larger than the chunk size would stop the scan cursor from advancing, so
// it is rejected instead of being silently corrected.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split walks the text in windows of chunkSize characters and returns the
// trimmed, non-empty chunks in order. Text shorter than one window yields a
// single chunk. The cursor strictly advances on every iteration.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			// Final window: take everything to the end verbatim.
			appendChunk(&chunks, string(runes[start:]))
			break
		}

		window := runes[start:end]
		breakAt := lastBreak(window)

		if breakAt > s.chunkSize/2 {
			// Natural boundary past the midpoint: cut there, no overlap.
			appendChunk(&chunks, string(runes[start:start+breakAt+1]))
			start += breakAt + 1
		} else {
			// Hard cut at the window edge; rewind so the next chunk
			// re-reads the tail of this one.
			appendChunk(&chunks, string(window))
			start = end - s.overlap
		}
	}

	return chunks
}

// lastBreak returns the index of the last sentence terminator or newline
// within the window, or -1 when there is none.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}

func appendChunk(chunks *[]string, raw string) {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		*chunks = append(*chunks, trimmed)
	}
}
