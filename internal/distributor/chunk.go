package distributor

import "strings"

// ChunkText splits s into pieces of at most limit runes. Splits prefer
// paragraph boundaries, then line boundaries, then fall back to rune
// boundaries. Concatenating the chunks always yields s.
func ChunkText(s string, limit int) []string {
	if s == "" {
		return nil
	}
	if limit <= 0 {
		return []string{s}
	}

	var chunks []string
	for s != "" {
		runes := []rune(s)
		if len(runes) <= limit {
			chunks = append(chunks, s)
			break
		}

		window := string(runes[:limit])
		cut := splitPoint(window)
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return chunks
}

// splitPoint returns the byte offset inside window at which to cut. The
// separator stays with the preceding chunk.
func splitPoint(window string) int {
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i + 2
	}
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return i + 1
	}
	return len(window)
}
