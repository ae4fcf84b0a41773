package knowledge

import "strings"

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 200
)

// chunkText splits text into chunks of roughly size characters. Splits
// prefer paragraph boundaries, then sentence boundaries, falling back to a
// hard cut. Consecutive chunks share overlap characters of context.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 4
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))

		if end < len(runes) {
			end = splitPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		start = max(end-overlap, start+1)
	}
	return chunks
}

// splitPoint walks back from end looking for a paragraph break, then a
// sentence end, keeping at least half the window.
func splitPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return i + 1
		}
	}
	return end
}
