package repo

import (
	"encoding/json"
	"io"
	"os"

	"github.com/minilinux/apk/db"
)

// CachedAsset records what is known about a previously fetched stream: its
// URL, size, and a checksum field. CachingStreamOpener fills in URL and Size
// only; nothing in this package sets Checksum or consults the cache to skip
// a fetch. This mirrors the teacher's own CachedAsset / loadCache / saveCache trio
// (apt.go, main.go), generalized from a .deb content hash to the checksum
// identity this package's db uses throughout.
type CachedAsset struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// Cache is an in-memory, JSON-file-backed map of archive URL to its last
// known CachedAsset.
type Cache struct {
	path   string
	assets map[string]CachedAsset
}

// LoadCache reads path's JSON contents into a Cache. A missing file yields
// an empty, usable cache rather than an error, matching the teacher's own
// loadCache (which silently continues with an empty map on read failure).
func LoadCache(path string) *Cache {
	c := &Cache{path: path, assets: make(map[string]CachedAsset)}
	data, err := os.ReadFile(path)
	if err == nil {
		json.Unmarshal(data, &c.assets)
	}
	return c
}

// Get returns the cached asset for url, if any.
func (c *Cache) Get(url string) (CachedAsset, bool) {
	a, ok := c.assets[url]
	return a, ok
}

// Put records a, keyed by its URL.
func (c *Cache) Put(a CachedAsset) {
	c.assets[a.URL] = a
}

// Save writes the cache back to its backing path as indented JSON, mode
// 0644 (matching the teacher's saveCache).
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c.assets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// CachingStreamOpener wraps another StreamOpener, recording each fetch's
// size into a Cache as the stream is read. It does not skip the fetch
// itself -- the network/seek layer is the inner opener's concern -- it
// exists so a caller driving repeated runs against the same root (the CLI's
// --cache-file flag) can later compare a cached asset's last-known size
// against what a repository claims, without re-reading the whole archive.
type CachingStreamOpener struct {
	Inner db.StreamOpener
	Cache *Cache
}

func (o CachingStreamOpener) Open(url string) (io.ReadCloser, error) {
	rc, err := o.Inner.Open(url)
	if err != nil {
		return nil, err
	}
	if o.Cache == nil {
		return rc, nil
	}
	return &countingReadCloser{ReadCloser: rc, url: url, cache: o.Cache}, nil
}

// countingReadCloser tallies bytes read from a wrapped stream and records
// the total against its URL when the stream is closed, so the backing
// Cache reflects what was actually fetched even if the read was short.
type countingReadCloser struct {
	io.ReadCloser
	url   string
	cache *Cache
	n     int64
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cache.Put(CachedAsset{URL: c.url, Size: c.n})
	c.cache.Save()
	return err
}
