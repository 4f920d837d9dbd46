package http1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParserSimpleGet(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("GET /foo?bar=1 HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	assert.Equal(t, Complete, p.Status())
	req := p.Request()
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/foo", req.Path)
	assert.Equal(t, "bar=1", req.Query)
	assert.Equal(t, "example.com", req.Header.Get("Host"))
	assert.Empty(t, p.Leftover())
}

func TestParserIncrementalFeed(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("GET / HTTP/1.1\r\n"))
	assert.Equal(t, WaitHeaders, p.Status())
	p.Feed([]byte("Host: x\r\n"))
	assert.Equal(t, WaitHeaders, p.Status())
	p.Feed([]byte("\r\n"))
	assert.Equal(t, Complete, p.Status())
}

func TestParserContentLengthBody(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("POST /submit HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
	assert.Equal(t, Complete, p.Status())
	assert.Equal(t, []byte("hello"), p.Request().Body)
}

func TestParserChunkedBody(t *testing.T) {
	p := NewParser(0, nil)
	raw := "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	p.Feed([]byte(raw))
	assert.Equal(t, Complete, p.Status())
	assert.Equal(t, "hello world", string(p.Request().Body))
}

func TestParserPipelinedLeftover(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"))
	assert.Equal(t, Complete, p.Status())
	assert.Equal(t, "/a", p.Request().Path)

	leftover := p.Leftover()
	p.Reset()
	p.Feed(leftover)
	assert.Equal(t, Complete, p.Status())
	assert.Equal(t, "/b", p.Request().Path)
}

func TestParserRequestTooLarge(t *testing.T) {
	p := NewParser(10, nil)
	p.Feed([]byte("GET /this-is-a-long-path HTTP/1.1\r\n\r\n"))
	assert.Equal(t, Abort, p.Status())
}

func TestParserConflictingLengthHeaders(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n"))
	assert.Equal(t, Abort, p.Status())
}

func TestParserHeaderChecker(t *testing.T) {
	chain := []HeaderChecker{
		func(req *Request) (bool, HTTPError) {
			if req.Header.Get("X-Api-Key") == "" {
				return false, HTTPError{Code: 400, Text: "missing api key"}
			}
			return true, HTTPError{}
		},
	}
	p := NewParser(0, chain)
	p.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	assert.Equal(t, WrongHeaders, p.Status())
	assert.Equal(t, 400, p.HTTPError().Code)
}

func TestParserMalformedRequestLine(t *testing.T) {
	p := NewParser(0, nil)
	p.Feed([]byte("NOT A REQUEST LINE\r\n"))
	assert.Equal(t, Abort, p.Status())
}
