package anthropic

// CachedSystem builds a single system block with a prompt-cache breakpoint.
// Prompts reused across a bulk run (every buyer in a tracker) hit the warm
// cache after the first call.
func CachedSystem(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
