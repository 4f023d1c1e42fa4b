package materializer

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"imgscraper/pkg/models"
)

// CachingFetcher keeps successful proxy responses in an LRU keyed by URL.
// Failures are never cached.
type CachingFetcher struct {
	next  Fetcher
	cache *lru.Cache[string, models.ImageData]
}

// NewCachingFetcher wraps next with a cache of size entries. A size of zero
// returns next unchanged.
func NewCachingFetcher(next Fetcher, size int) (Fetcher, error) {
	if size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, models.ImageData](size)
	if err != nil {
		return nil, err
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

// Fetch serves url from the cache or the wrapped fetcher
func (f *CachingFetcher) Fetch(ctx context.Context, url string) (models.ImageData, error) {
	if data, ok := f.cache.Get(url); ok {
		return data, nil
	}
	data, err := f.next.Fetch(ctx, url)
	if err != nil {
		return models.ImageData{}, err
	}
	f.cache.Add(url, data)
	return data, nil
}

// Len is the number of cached responses
func (f *CachingFetcher) Len() int {
	return f.cache.Len()
}

// Purge empties the cache
func (f *CachingFetcher) Purge() {
	f.cache.Purge()
}
