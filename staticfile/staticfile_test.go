package staticfile

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymedia/ember/conn"
	"github.com/polymedia/ember/http1"
)

type captureSink struct {
	buf *bytes.Buffer
	w   *bufio.Writer
}

func newCaptureSink() *captureSink {
	buf := &bytes.Buffer{}
	return &captureSink{buf: buf, w: bufio.NewWriter(buf)}
}

func (s *captureSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *captureSink) Flush() error                { return s.w.Flush() }

func newDocRoot(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "index.html"), []byte("<h1>hi</h1>"), 0o644))
	return dir
}

func newController(t *testing.T, docRoot string) *Controller {
	c, err := New(Options{
		DocRoot:           docRoot,
		Encoding:          "UTF-8",
		MaxAge:            time.Minute,
		MaxCachedFileSize: 1 << 16,
		CacheTime:         time.Minute,
	})
	require.NoError(t, err)
	return c
}

func serveOnce(c *Controller, path string) (*http1.ResponseWriter, *captureSink) {
	resp, sink, _ := serveOnceCountingTasks(c, path)
	return resp, sink
}

// serveOnceCountingTasks is like serveOnce but also reports how many
// times RunOnSocketTask was invoked, so the streamed-from-disk path can
// be checked against calling it directly.
func serveOnceCountingTasks(c *Controller, path string) (*http1.ResponseWriter, *captureSink, int) {
	req := &http1.Request{Method: "GET", Path: path, Version: "HTTP/1.1"}
	req.Header.Add("Connection", "close")
	sink := newCaptureSink()
	resp := http1.NewResponseWriter(sink, req)

	tasks := 0
	done := make(chan conn.Completion, 1)
	params := conn.ServeParams{
		RequestID: 1,
		Request:   req,
		Response:  resp,
		RunOnSocketTask: func(fn func() error) error {
			tasks++
			return fn()
		},
	}
	c.Serve(params, done)
	<-done
	return resp, sink, tasks
}

func TestServeExistingFile(t *testing.T) {
	c := newController(t, newDocRoot(t))
	resp, sink := serveOnce(c, "/hello.txt")

	assert.Equal(t, "text/plain; charset=UTF-8", resp.Header().Get("Content-Type"))
	assert.Contains(t, sink.buf.String(), "hello world")
}

func TestServeMissingFileIs404(t *testing.T) {
	c := newController(t, newDocRoot(t))
	resp, sink := serveOnce(c, "/nope.txt")

	_ = resp
	assert.Contains(t, sink.buf.String(), "404 not found")
}

func TestServeDirectoryServesIndex(t *testing.T) {
	c := newController(t, newDocRoot(t))
	_, sink := serveOnce(c, "/sub/")

	assert.Contains(t, sink.buf.String(), "<h1>hi</h1>")
}

func TestServeRejectsPathTraversal(t *testing.T) {
	c := newController(t, newDocRoot(t))
	_, sink := serveOnce(c, "/../../etc/passwd")

	assert.Contains(t, sink.buf.String(), "403 forbidden")
}

func TestServeStreamsDiskReadsThroughSocketTask(t *testing.T) {
	c := newController(t, newDocRoot(t))
	_, sink, tasks := serveOnceCountingTasks(c, "/hello.txt")

	// One RunOnSocketTask call per chunk written plus the final
	// zero-length "last" write.
	assert.GreaterOrEqual(t, tasks, 2)
	assert.Contains(t, sink.buf.String(), "hello world")
}

func TestServeCachesSmallFiles(t *testing.T) {
	c := newController(t, newDocRoot(t))
	serveOnce(c, "/hello.txt")

	_, ok := c.cache.Get("/hello.txt")
	assert.True(t, ok)
}

func TestSetContentTypeKnownExtensions(t *testing.T) {
	resp := http1.NewResponseWriter(nil, nil)
	setContentType("style.css", "UTF-8", resp)
	assert.Equal(t, "text/css", resp.Header().Get("Content-Type"))
}

func TestSetContentTypeTextHasCharset(t *testing.T) {
	resp := http1.NewResponseWriter(nil, nil)
	setContentType("page.html", "UTF-8", resp)
	assert.Equal(t, "text/html; charset=UTF-8", resp.Header().Get("Content-Type"))
}
