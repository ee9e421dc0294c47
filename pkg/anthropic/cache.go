package anthropic

// CachedSystem builds system blocks from the given texts with one cache
// breakpoint on the last block, so the whole prefix caches as a unit. The
// intended split is a stable persona block followed by the per-run source
// material: extraction passes and section drafts within one run then reread
// the transcript from cache instead of resending it at full input rates.
// Empty texts are skipped; all-empty input yields nil.
func CachedSystem(texts ...string) []SystemBlock {
	blocks := make([]SystemBlock, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		blocks = append(blocks, SystemBlock{Text: t})
	}
	if len(blocks) == 0 {
		return nil
	}
	// Default ephemeral TTL. Retry attempts and refinement passes land
	// within minutes of each other, well inside the window.
	blocks[len(blocks)-1].CacheControl = &CacheControl{}
	return blocks
}
