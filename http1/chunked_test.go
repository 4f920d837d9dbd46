package http1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkedDecoderSingleFeed(t *testing.T) {
	var d chunkedDecoder
	var body []byte
	consumed, done, err := d.feed([]byte("5\r\nhello\r\n0\r\n\r\n"), &body, 0)
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, 15, consumed)
}

func TestChunkedDecoderSplitAcrossFeeds(t *testing.T) {
	var d chunkedDecoder
	var body []byte

	buf := []byte("5\r\nhel")
	_, done, err := d.feed(buf, &body, 0)
	assert.NoError(t, err)
	assert.False(t, done)

	buf = []byte("lo\r\n0\r\n\r\n")
	_, done, err = d.feed(buf, &body, 0)
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "hello", string(body))
}

func TestChunkedDecoderMultipleChunks(t *testing.T) {
	var d chunkedDecoder
	var body []byte
	_, done, err := d.feed([]byte("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"), &body, 0)
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "Wikipedia", string(body))
}

func TestChunkedDecoderExceedsMaxBody(t *testing.T) {
	var d chunkedDecoder
	var body []byte
	_, _, err := d.feed([]byte("5\r\nhello\r\n0\r\n\r\n"), &body, 2)
	assert.Error(t, err)
}
