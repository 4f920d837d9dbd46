package http1

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testSink struct {
	buf *bytes.Buffer
	w   *bufio.Writer
}

func newTestSink() *testSink {
	buf := &bytes.Buffer{}
	return &testSink{buf: buf, w: bufio.NewWriter(buf)}
}

func (s *testSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *testSink) Flush() error                { return s.w.Flush() }

func reqWithVersion(version string) *Request {
	req := &Request{Version: version}
	return req
}

func TestResponseWriterContentLengthFraming(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.1"))
	err := rw.Write([]byte("hello"), true)
	assert.NoError(t, err)
	assert.Equal(t, ContentLength, rw.Framing())

	out := sink.buf.String()
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(out, "hello"))
}

func TestResponseWriterChunkedFraming(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.1"))
	assert.NoError(t, rw.Write([]byte("abc"), false))
	assert.NoError(t, rw.Write([]byte("de"), true))
	assert.Equal(t, Chunked, rw.Framing())

	out := sink.buf.String()
	assert.Contains(t, out, "Transfer-Encoding: chunked\r\n")
	assert.Contains(t, out, "3\r\nabc\r\n")
	assert.Contains(t, out, "2\r\nde\r\n")
	assert.True(t, strings.HasSuffix(out, "0\r\n\r\n"))
}

func TestResponseWriterHTTP10CloseDelimited(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.0"))
	assert.NoError(t, rw.Write([]byte("partial"), false))
	assert.Equal(t, CloseDelimited, rw.Framing())
	assert.Equal(t, "close", rw.Header().Get("Connection"))
}

func TestResponseWriterLastPartOverridesClose(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.0"))
	assert.NoError(t, rw.Write([]byte("all of it"), true))
	assert.Equal(t, ContentLength, rw.Framing())
}

func TestResponseWriterWriteAfterLastPartErrors(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.1"))
	assert.NoError(t, rw.Write([]byte("x"), true))
	err := rw.Write([]byte("y"), false)
	assert.ErrorIs(t, err, ErrLastPartAlreadySent)
}

func TestResponseWriterCookieValue(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.1"))
	rw.SetCookie(Cookie{Name: "sessionid", Value: "abc123"})

	v, ok := rw.CookieValue("sessionid")
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)

	_, ok = rw.CookieValue("missing")
	assert.False(t, ok)
}

func TestResponseWriterSetCookieDedups(t *testing.T) {
	sink := newTestSink()
	rw := NewResponseWriter(sink, reqWithVersion("HTTP/1.1"))
	rw.SetCookie(Cookie{Name: "a", Value: "1"})
	rw.SetCookie(Cookie{Name: "a", Value: "2"})

	assert.NoError(t, rw.Write(nil, true))
	out := sink.buf.String()
	assert.Equal(t, 1, strings.Count(out, "Set-Cookie: a="))
	assert.Contains(t, out, "a=2")
}
