package rag

import "strings"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunk is one indexed window of a source document.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Split cuts text into character windows of size runes, each starting
// size-overlap runes after the previous one. Blank windows are dropped.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := max(1, size-overlap)
	var out []string
	for i := 0; i < len(runes); i += step {
		end := min(i+size, len(runes))
		window := string(runes[i:end])
		if strings.TrimSpace(window) != "" {
			out = append(out, window)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
