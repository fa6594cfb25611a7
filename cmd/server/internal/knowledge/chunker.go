// Package knowledge maintains the searchable index built from transcripts:
// chunking, embedding, cosine-ranked query, and on-disk persistence.
package knowledge

import "strings"

// Default chunking parameters.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// separators is the preference order for split points: paragraph breaks
// first, then lines, then words, then a hard character cut.
var separators = []string{"\n\n", "\n", " ", ""}

// SplitText splits text into chunks of at most size characters, carrying
// roughly overlap characters of context between consecutive chunks. Splitting
// recursively falls back to smaller separators whenever a piece would exceed
// the size bound.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= size {
		return []string{text}
	}
	return mergePieces(splitPieces(text, separators, size), size, overlap)
}

// splitPieces recursively breaks text into pieces no longer than size,
// trying each separator in order.
func splitPieces(text string, seps []string, size int) []string {
	if len([]rune(text)) <= size {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" {
			return hardCut(text, size)
		}
		if !strings.Contains(text, sep) {
			continue
		}
		var out []string
		for _, part := range strings.Split(text, sep) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if len([]rune(part)) > size {
				out = append(out, splitPieces(part, seps[i+1:], size)...)
			} else {
				out = append(out, part)
			}
		}
		return out
	}
	return hardCut(text, size)
}

// hardCut slices text into fixed-size rune windows, the last-resort split.
func hardCut(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// mergePieces packs adjacent pieces back together up to the size bound and
// seeds each new chunk with the overlap tail of the previous one.
func mergePieces(pieces []string, size, overlap int) []string {
	var chunks []string
	var cur string

	for _, p := range pieces {
		if cur == "" {
			cur = p
			continue
		}
		if len([]rune(cur))+1+len([]rune(p)) <= size {
			cur = cur + " " + p
			continue
		}

		chunks = append(chunks, cur)
		if overlap > 0 {
			tail := []rune(cur)
			if len(tail) > overlap {
				tail = tail[len(tail)-overlap:]
			}
			seeded := strings.TrimSpace(string(tail)) + " " + p
			if len([]rune(seeded)) <= size {
				cur = seeded
				continue
			}
		}
		cur = p
	}

	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}
