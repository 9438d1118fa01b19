package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingServer struct {
	body     []byte
	requests int
	server   *httptest.Server
}

func newCountingServer(t *testing.T, body string) *countingServer {
	s := &countingServer{body: []byte(body)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests++
		if r.URL.Path == "/auth" && r.Header.Get("Authorization") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(s.body)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func TestHTTPGet(t *testing.T) {
	s := newCountingServer(t, "0123456789")
	ctx := context.Background()

	body, err := HTTPGet(ctx, s.server.URL+"/feed.zip", nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))

	// At the limit is fine, beyond is not
	body, err = HTTPGet(ctx, s.server.URL+"/feed.zip", nil, GetOptions{MaxSize: 10})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
	_, err = HTTPGet(ctx, s.server.URL+"/feed.zip", nil, GetOptions{MaxSize: 9})
	assert.Error(t, err)

	_, err = HTTPGet(ctx, s.server.URL+"/auth", nil, GetOptions{})
	assert.Error(t, err)
	body, err = HTTPGet(ctx, s.server.URL+"/auth", map[string]string{"Authorization": "secret"}, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t,
		cacheKey("http://a", map[string]string{"x": "1", "y": "2"}),
		cacheKey("http://a", map[string]string{"y": "2", "x": "1"}),
	)
	assert.NotEqual(t, cacheKey("http://a", nil), cacheKey("http://b", nil))
	assert.NotEqual(t,
		cacheKey("http://a", map[string]string{"x": "1"}),
		cacheKey("http://a", map[string]string{"x": "2"}),
	)
}

func TestMemoryDownloader(t *testing.T) {
	s := newCountingServer(t, "feed")
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	opts := GetOptions{Cache: true, CacheTTL: time.Minute}
	for i := 0; i < 3; i++ {
		body, err := d.Get(ctx, s.server.URL, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "feed", string(body))
	}
	assert.Equal(t, 1, s.requests)

	// Different headers, different entry
	_, err := d.Get(ctx, s.server.URL, map[string]string{"x": "y"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, s.requests)

	now = now.Add(2 * time.Minute)
	_, err = d.Get(ctx, s.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, s.requests)

	// Without caching, always fetched
	_, err = d.Get(ctx, s.server.URL, nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, s.requests)
}
