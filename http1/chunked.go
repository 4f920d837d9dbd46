package http1

import "bytes"

// chunkedDecoder incrementally decodes a chunked request body (RFC 7230
// §4.1) a Feed call at a time. Unlike shockwave's ChunkedReader, which
// wraps a blocking io.Reader, this operates purely on whatever bytes have
// already arrived, carrying partial-chunk state across calls — the same
// non-blocking requirement the outer Parser has.
type chunkedDecoder struct {
	state     chunkState
	remaining uint64
	totalRead uint64
}

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataCRLF
	chunkTrailer
	chunkDone
)

// feed consumes as much of buf as forms complete chunk framing, appending
// decoded payload bytes to *body. It returns the number of bytes consumed
// from buf and whether the terminating chunk (and its trailers) has been
// seen. Chunk data is consumed as it arrives, even when the chunk is not
// yet complete; an incomplete size line, data CRLF, or trailer line is
// left unconsumed for the next feed.
func (d *chunkedDecoder) feed(buf []byte, body *[]byte, maxBody int64) (consumed int, done bool, err error) {
	for {
		switch d.state {
		case chunkSize:
			idx := bytes.IndexByte(buf[consumed:], '\n')
			if idx < 0 {
				return consumed, false, nil
			}
			line := buf[consumed : consumed+idx+1]
			consumed += idx + 1
			line = trimCRLF(line)
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				return consumed, false, ErrChunkedEncoding
			}
			var size uint64
			for _, b := range line {
				size <<= 4
				switch {
				case b >= '0' && b <= '9':
					size |= uint64(b - '0')
				case b >= 'a' && b <= 'f':
					size |= uint64(b - 'a' + 10)
				case b >= 'A' && b <= 'F':
					size |= uint64(b - 'A' + 10)
				default:
					return consumed, false, ErrChunkedEncoding
				}
			}
			d.remaining = size
			if size == 0 {
				d.state = chunkTrailer
			} else {
				d.state = chunkData
			}
		case chunkData:
			avail := buf[consumed:]
			if uint64(len(avail)) < d.remaining {
				*body = append(*body, avail...)
				d.remaining -= uint64(len(avail))
				consumed += len(avail)
				d.totalRead += uint64(len(avail))
				if maxBody > 0 && int64(d.totalRead) > maxBody {
					return consumed, false, ErrRequestTooLarge
				}
				return consumed, false, nil
			}
			*body = append(*body, avail[:d.remaining]...)
			consumed += int(d.remaining)
			d.totalRead += d.remaining
			if maxBody > 0 && int64(d.totalRead) > maxBody {
				return consumed, false, ErrRequestTooLarge
			}
			d.remaining = 0
			d.state = chunkDataCRLF
		case chunkDataCRLF:
			if len(buf[consumed:]) < 2 {
				return consumed, false, nil
			}
			if buf[consumed] != '\r' || buf[consumed+1] != '\n' {
				return consumed, false, ErrChunkedEncoding
			}
			consumed += 2
			d.state = chunkSize
		case chunkTrailer:
			idx := bytes.IndexByte(buf[consumed:], '\n')
			if idx < 0 {
				return consumed, false, nil
			}
			line := buf[consumed : consumed+idx+1]
			consumed += idx + 1
			if len(trimCRLF(line)) == 0 {
				d.state = chunkDone
				return consumed, true, nil
			}
			// non-empty trailer field: discarded, loop for more trailers
		case chunkDone:
			return consumed, true, nil
		}
	}
}

func trimCRLF(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line
}
