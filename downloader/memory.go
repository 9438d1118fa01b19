package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded files in memory. Suitable for a long lived Builder
// revalidating the same sources.
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]memoryEntry

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   map[string]memoryEntry{},
		TimeNow: time.Now,
	}
}

type memoryEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	key := cacheKey(url, headers)

	d.mutex.Lock()
	entry, found := d.cache[key]
	d.mutex.Unlock()
	if found && entry.expiration.After(d.TimeNow()) {
		return entry.data, nil
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	d.mutex.Lock()
	d.cache[key] = memoryEntry{
		data:       body,
		expiration: d.TimeNow().Add(options.CacheTTL),
	}
	d.mutex.Unlock()

	return body, nil
}
