package evmvc

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// Coffer is a binary asset manager that caches file content (and its
// minified/gzipped variants) in memory to avoid repeated disk I/O on the
// hot serving path, grounded on the teacher's coffer (coffer.go) —
// fastcache + fsnotify-invalidated asset cache — generalized to stand
// alone and exported for use by WriteFile (response.go).
type Coffer struct {
	root     string
	exts     []string
	minifier *Minifier

	gzipEnabled bool
	gzipMIME    []string
	gzipLevel   int

	once    sync.Once
	assets  sync.Map
	cache   *fastcache.Cache
	cacheMB int
	watcher *fsnotify.Watcher
	logger  *Logger
}

// NewCoffer returns a Coffer capped at maxMemoryBytes, serving files
// under root.
func NewCoffer(maxMemoryBytes int, root string) *Coffer {
	c := &Coffer{
		root:      root,
		cacheMB:   maxMemoryBytes,
		gzipLevel: gzip.DefaultCompression,
	}

	var err error
	if c.watcher, err = fsnotify.NewWatcher(); err != nil {
		panic(fmt.Errorf("evmvc: failed to build coffer watcher: %v", err))
	}

	go c.watch()

	return c
}

func (c *Coffer) watch() {
	for {
		select {
		case e, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ai, ok := c.assets.Load(e.Name); ok {
				a := ai.(*asset)
				c.assets.Delete(a.name)
				c.cache.Del(a.contentChecksum[:])
				c.cache.Del(a.gzippedContentChecksum[:])
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			if c.logger != nil {
				c.logger.Errorf("coffer watcher error: %v", err)
			}
		}
	}
}

// SetMinifier wires a Minifier into the coffer so assets are minified
// on first load, per PART C's coffer+minifier pairing.
func (c *Coffer) SetMinifier(m *Minifier) { c.minifier = m }

// SetGzip enables on-load gzip pre-encoding for the given MIME types.
func (c *Coffer) SetGzip(enabled bool, mimeTypes []string) {
	c.gzipEnabled = enabled
	c.gzipMIME = mimeTypes
}

// Asset returns the cached asset for the absolute file path name,
// loading and caching it on first access.
func (c *Coffer) Asset(name string) (*asset, error) {
	c.once.Do(func() {
		c.cache = fastcache.New(c.cacheMB)
	})

	if ai, ok := c.assets.Load(name); ok {
		return ai.(*asset), nil
	}

	root, err := filepath.Abs(c.root)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(name, root) {
		return nil, nil
	}

	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(name)
	mt := mime.TypeByExtension(ext)

	var minified bool
	var gb []byte

	if mt != "" {
		parsed, _, err := mime.ParseMediaType(mt)
		if err == nil {
			if c.minifier != nil {
				if out, merr := c.minifier.Minify(parsed, b); merr == nil {
					b = out
					minified = true
				}
			}

			if c.gzipEnabled && stringSliceContains(c.gzipMIME, parsed) {
				buf := bytes.Buffer{}
				gw, _ := gzip.NewWriterLevel(&buf, c.gzipLevel)
				if _, err := gw.Write(b); err == nil {
					if err := gw.Close(); err == nil {
						gb = buf.Bytes()
					}
				}
			}
		}
	}

	if err := c.watcher.Add(name); err != nil {
		return nil, err
	}

	a := &asset{
		coffer:          c,
		name:            name,
		mimeType:        mt,
		modTime:         fi.ModTime(),
		minified:        minified,
		contentChecksum: sha256.Sum256(b),
	}

	c.cache.Set(a.contentChecksum[:], b)
	if gb != nil {
		a.gzippedContentChecksum = sha256.Sum256(gb)
		c.cache.Set(a.gzippedContentChecksum[:], gb)
	}

	c.assets.Store(name, a)

	return a, nil
}

// asset is a binary asset file cached by Coffer.
type asset struct {
	coffer                 *Coffer
	name                   string
	mimeType               string
	modTime                time.Time
	minified               bool
	contentChecksum        [sha256.Size]byte
	gzippedContentChecksum [sha256.Size]byte
}

// Content returns a's cached content, the gzipped variant if gzipped is
// true and one was produced. It returns nil when gzipped is true and no
// gzipped variant was produced.
func (a *asset) Content(gzipped bool) []byte {
	if gzipped && a.gzippedContentChecksum == ([sha256.Size]byte{}) {
		return nil
	}

	var c []byte
	if gzipped {
		c = a.coffer.cache.Get(nil, a.gzippedContentChecksum[:])
	} else {
		c = a.coffer.cache.Get(nil, a.contentChecksum[:])
	}

	if len(c) == 0 {
		a.coffer.assets.Delete(a.name)
		a.coffer.cache.Del(a.contentChecksum[:])
		a.coffer.cache.Del(a.gzippedContentChecksum[:])
		return nil
	}

	return c
}

// ETag returns an xxhash-based entity tag for a's uncompressed content,
// per PART C: xxhash stands in for the teacher's sha256-keyed cache
// lookup as the *client-facing* digest, since it is far cheaper to
// compute per-request than SHA-256 while still being collision-safe
// enough for cache validation (not security).
func (a *asset) ETag() string {
	return fmt.Sprintf(`"%x"`, xxhash.Sum64(a.Content(false)))
}

func stringSliceContains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
