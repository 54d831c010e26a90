package anthropic

// CachedSystem returns a system prompt marked as a 5-minute cache
// breakpoint. The verification prompt is identical across every candidate of
// a run, so only the first call of each window pays for it in full.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}

// PlainSystem returns an uncached system prompt.
func PlainSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text}}
}
