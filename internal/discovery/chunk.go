package discovery

import "strings"

// DefaultChunkSize is the maximum characters of page text sent per
// extraction call.
const DefaultChunkSize = 6000

// Chunk splits text into pieces of at most size characters. Cuts prefer a
// paragraph break, then a line break, then a space, as long as the piece
// stays at least half full; otherwise the text is cut hard at size.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > size {
		cut := splitPoint(runes[:size])
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[cut:]
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		chunks = append(chunks, piece)
	}
	return chunks
}

func splitPoint(window []rune) int {
	s := string(window)
	half := len(s) / 2
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(s, sep); idx > 0 && idx >= half {
			// Convert the byte offset back to a rune count.
			return len([]rune(s[:idx+len(sep)]))
		}
	}
	return len(window)
}
