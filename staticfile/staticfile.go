// Package staticfile serves files from a docroot directory, the same
// shape as original_source/QtWebApp/httpserver's StaticFileController:
// a small in-memory cache for frequently requested files, a path-
// traversal guard, and a content-type table keyed by extension.
package staticfile

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kevinpollet/nego"
	"go.uber.org/zap"

	"github.com/polymedia/ember/conn"
	"github.com/polymedia/ember/emberlog"
)

// Options configures a Controller. Fields mirror config.Config's static-
// file settings.
type Options struct {
	DocRoot  string
	Encoding string

	MaxAge            time.Duration
	MaxCachedFileSize int64
	CacheEntries      int
	CacheTime         time.Duration

	Logger *zap.Logger
}

type cacheEntry struct {
	document []byte
	filename string
	created  time.Time
}

// Controller answers requests by reading files under a fixed docroot.
// It implements conn.Handler and can be used directly as the top-level
// handler, or wrapped by a router that dispatches only unmatched paths
// to it.
type Controller struct {
	opts  Options
	log   *zap.Logger
	cache *lru.Cache[string, *cacheEntry]
}

// New constructs a Controller rooted at opts.DocRoot.
func New(opts Options) (*Controller, error) {
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = 1024
	}
	cache, err := lru.New[string, *cacheEntry](opts.CacheEntries)
	if err != nil {
		return nil, err
	}
	return &Controller{
		opts:  opts,
		log:   emberlog.Or(opts.Logger),
		cache: cache,
	}, nil
}

// Serve implements conn.Handler. It runs entirely synchronously on the
// goroutine Serve was called on (file I/O is the only blocking work),
// then reports completion.
func (c *Controller) Serve(params conn.ServeParams, done chan<- conn.Completion) {
	shouldClose := !params.Request.KeepAliveRequested()
	c.serve(params)
	done <- conn.Completion{RequestID: params.RequestID, Close: shouldClose}
}

func (c *Controller) serve(params conn.ServeParams) {
	req, resp := params.Request, params.Response
	path := req.Path

	if entry, ok := c.cache.Get(path); ok {
		if c.opts.CacheTime == 0 || time.Since(entry.created) < c.opts.CacheTime {
			c.log.Debug("cache hit", zap.String("path", path))
			document := append([]byte(nil), entry.document...)
			c.writeDocument(params, entry.filename, document)
			return
		}
		c.cache.Remove(path)
	}
	c.log.Debug("cache miss", zap.String("path", path))

	if strings.Contains(path, "/..") {
		c.log.Warn("forbidden path", zap.String("path", path))
		resp.SetStatus(403, "forbidden")
		_ = resp.Write([]byte("403 forbidden"), true)
		return
	}

	fullPath := filepath.Join(c.opts.DocRoot, filepath.FromSlash(path))
	if rel, err := filepath.Rel(c.opts.DocRoot, fullPath); err != nil || strings.HasPrefix(rel, "..") {
		c.log.Warn("forbidden path", zap.String("path", path))
		resp.SetStatus(403, "forbidden")
		_ = resp.Write([]byte("403 forbidden"), true)
		return
	}

	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		path = strings.TrimSuffix(path, "/") + "/index.html"
		fullPath = filepath.Join(fullPath, "index.html")
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			resp.SetStatus(404, "not found")
			_ = resp.Write([]byte("404 not found"), true)
		} else {
			c.log.Warn("cannot open file", zap.String("path", fullPath), zap.Error(err))
			resp.SetStatus(403, "forbidden")
			_ = resp.Write([]byte("403 forbidden"), true)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		resp.SetStatus(404, "not found")
		_ = resp.Write([]byte("404 not found"), true)
		return
	}

	setContentType(path, c.opts.Encoding, resp)
	resp.SetHeader("Cache-Control", "max-age="+strconv.Itoa(int(c.opts.MaxAge/time.Second)))

	cacheable := info.Size() <= c.opts.MaxCachedFileSize
	var buffered []byte

	// Each chunk is written via RunOnSocketTask rather than calling
	// resp.Write directly: this loop reads from disk on the handler's own
	// goroutine, and the socket is otherwise owned by the connection's
	// goroutine for the duration of the request.
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if err := params.RunOnSocketTask(func() error { return resp.Write(chunk, false) }); err != nil {
				c.log.Warn("write failed", zap.Error(err))
				return
			}
			if cacheable {
				buffered = append(buffered, chunk...)
			}
		}
		if rerr != nil {
			break
		}
	}
	_ = params.RunOnSocketTask(func() error { return resp.Write(nil, true) })

	if cacheable {
		// Cached under the original request path (req.Path), not the
		// index.html-expanded one, so a directory request hits the same
		// cache entry next time.
		c.cache.Add(req.Path, &cacheEntry{document: buffered, filename: path, created: time.Now()})
	}
}

func (c *Controller) writeDocument(params conn.ServeParams, filename string, document []byte) {
	resp := params.Response
	setContentType(filename, c.opts.Encoding, resp)
	resp.SetHeader("Cache-Control", "max-age="+strconv.Itoa(int(c.opts.MaxAge/time.Second)))
	resp.SetHeader("Vary", "Accept-Encoding")

	if shouldGzip(params.Request.Header.Get("Accept-Encoding")) {
		gzipped, err := gzipCompress(document)
		if err == nil {
			resp.SetHeader("Content-Encoding", "gzip")
			document = gzipped
		}
	}
	_ = resp.Write(document, true)
}

// shouldGzip negotiates gzip content-encoding the way
// thttp's ShouldGzip does, via nego against a minimal net/http.Request
// carrying only the Accept-Encoding header nego inspects.
func shouldGzip(acceptEncoding string) bool {
	if acceptEncoding == "" {
		return false
	}
	req := &http.Request{Header: http.Header{"Accept-Encoding": []string{acceptEncoding}}}
	return nego.NegotiateContentEncoding(req, "gzip") == "gzip"
}
