package http1

import "errors"

// Parser-level sentinel errors.
var (
	ErrInvalidRequestLine = errors.New("http1: invalid request line")
	ErrInvalidHeader      = errors.New("http1: invalid header line")
	ErrHeaderTooLarge     = errors.New("http1: header name or value too large")
	ErrRequestTooLarge    = errors.New("http1: request exceeds configured size limit")
	ErrChunkedEncoding    = errors.New("http1: malformed chunked encoding")
	ErrInvalidContentLength = errors.New("http1: invalid Content-Length header")

	// ErrSmuggling flags a request carrying both Content-Length and
	// Transfer-Encoding, or conflicting duplicate Content-Length values
	// (RFC 7230 §3.3.3).
	ErrSmuggling = errors.New("http1: conflicting Content-Length/Transfer-Encoding headers")
)

// Response-writer sentinel errors.
var (
	ErrHeadersAlreadySent = errors.New("http1: headers already sent")
	ErrLastPartAlreadySent = errors.New("http1: last part of the response already sent")
)

// HTTPError pairs a status code with the literal text the connection
// handler writes verbatim to the wire. It is the value a headers-checking
// predicate returns on failure.
type HTTPError struct {
	Code int
	Text string
}

func (e HTTPError) Error() string { return e.Text }
