package cachectl

// CoreCacheState tracks one core's D-cache enable bit and its data-
// prefetch enable bit: the two control-register bits the power-down/
// power-up sequence (§4.1) must clear before a core loses coherency and
// restore before it rejoins. Backed by Line so the toggle is visible to
// another goroutine the way every other cross-core state change in this
// package is.
type CoreCacheState struct {
	dcacheEnabled   *Line[bool]
	prefetchEnabled *Line[bool]
}

// NewCoreCacheState returns a core's cache state with both the D-cache
// and data prefetcher enabled, the running-core default.
func NewCoreCacheState() *CoreCacheState {
	return &CoreCacheState{
		dcacheEnabled:   NewLine(true),
		prefetchEnabled: NewLine(true),
	}
}

// DisableDCache clears the D-cache enable bit, required before a core's
// cache contents are flushed and it loses power (§4.1 disable_dcache).
func (s *CoreCacheState) DisableDCache() { s.dcacheEnabled.CleanInvalidate(false) }

// EnableDCache sets the D-cache enable bit, done after the cache has
// been invalidated on power-up (§4.1 enable_dcache).
func (s *CoreCacheState) EnableDCache() { s.dcacheEnabled.CleanInvalidate(true) }

// DCacheEnabled reports the current D-cache enable bit.
func (s *CoreCacheState) DCacheEnabled() bool { return s.dcacheEnabled.Invalidate() }

// DisableDataPrefetch clears the data-prefetch enable bit, the first
// step of the power-down sequence (§4.1 disable_data_prefetch): a
// prefetch into a cache line that's about to be flushed would otherwise
// race the flush.
func (s *CoreCacheState) DisableDataPrefetch() { s.prefetchEnabled.CleanInvalidate(false) }

// EnableDataPrefetch restores the data-prefetch enable bit on power-up.
func (s *CoreCacheState) EnableDataPrefetch() { s.prefetchEnabled.CleanInvalidate(true) }

// DataPrefetchEnabled reports the current data-prefetch enable bit.
func (s *CoreCacheState) DataPrefetchEnabled() bool { return s.prefetchEnabled.Invalidate() }
