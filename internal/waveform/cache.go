package waveform

import (
	"context"
	"fmt"
	"sync"

	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
)

// CachePolicy selects what a CachedProvider stores: the raw trace (so
// different ProcessingConfigs can reuse one fetch) or the fully processed
// trace (so repeated identical requests skip reprocessing too), mirroring
// Cached::CacheProcessed in the original scdetect implementation.
type CachePolicy int

const (
	// CacheRaw stores the unprocessed trace, keyed by stream+window only.
	CacheRaw CachePolicy = iota
	// CacheProcessed stores the fully processed trace, keyed by
	// stream+window+processing config.
	CacheProcessed
)

// CachedProvider wraps a Provider with a read-through, write-serialized
// cache. Reads are lock-free once a trace is published; writes are
// serialized by a mutex, per the design note on the waveform cache
// (spec.md §9).
type CachedProvider struct {
	inner    Provider
	policy   CachePolicy
	resample Resampler
	filter   Filterer

	mu    sync.Mutex
	store sync.Map // key -> *Trace
}

// NewCachedProvider builds a CachedProvider. resample/filter are used to
// finish processing a cached raw trace; they may be nil if CacheProcessed
// is used (processing already happened before caching).
func NewCachedProvider(inner Provider, policy CachePolicy, resample Resampler, filter Filterer) *CachedProvider {
	return &CachedProvider{inner: inner, policy: policy, resample: resample, filter: filter}
}

func (c *CachedProvider) cacheKey(id streamid.ID, tw sample.Window, cfg ProcessingConfig) string {
	base := fmt.Sprintf("%s|%s|%s", id.String(), tw.Start.UTC().Format("20060102T150405.000000000"), tw.End.UTC().Format("20060102T150405.000000000"))
	if c.policy == CacheProcessed {
		return base + "|" + cfg.Key()
	}
	return base
}

// Get implements Provider. On a cache miss it delegates to inner, then
// stores either the raw or processed trace according to policy.
func (c *CachedProvider) Get(ctx context.Context, id streamid.ID, tw sample.Window, cfg ProcessingConfig) (*Trace, error) {
	key := c.cacheKey(id, tw, cfg)

	if v, ok := c.store.Load(key); ok {
		cached := v.(*Trace)
		if c.policy == CacheProcessed {
			return cached, nil
		}
		// Raw cache: finish processing on every call.
		processed, err := Prepare(cached.Frame, cfg, c.resample, c.filter, &tw)
		if err != nil {
			return nil, err
		}
		return &Trace{StreamID: id, Frame: processed}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the lock in case another writer raced us.
	if v, ok := c.store.Load(key); ok {
		cached := v.(*Trace)
		if c.policy == CacheProcessed {
			return cached, nil
		}
		processed, err := Prepare(cached.Frame, cfg, c.resample, c.filter, &tw)
		if err != nil {
			return nil, err
		}
		return &Trace{StreamID: id, Frame: processed}, nil
	}

	if c.policy == CacheRaw {
		rawCfg := ProcessingConfig{}
		trace, err := c.inner.Get(ctx, id, tw, rawCfg)
		if err != nil {
			return nil, err
		}
		c.store.Store(key, trace)
		processed, err := Prepare(trace.Frame, cfg, c.resample, c.filter, &tw)
		if err != nil {
			return nil, err
		}
		return &Trace{StreamID: id, Frame: processed}, nil
	}

	trace, err := c.inner.Get(ctx, id, tw, cfg)
	if err != nil {
		return nil, err
	}
	c.store.Store(key, trace)
	return trace, nil
}
