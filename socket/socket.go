// Package socket adapts an accepted net.Conn (plain or TLS) into the
// buffered, keepalive-tuned duplex stream the connection handler drives.
package socket

import (
	"bufio"
	"crypto/tls"
	"net"
	"time"
)

// backpressureThreshold is the write-buffer size at which the underlying
// net.Conn.Write call blocks until the kernel has drained previously
// queued bytes, reproducing the 16 KiB waitForBytesWritten threshold in
// original_source/QtWebApp/httpserver/httpresponse.cpp's writeToSocket().
const backpressureThreshold = 16 * 1024

// Socket wraps one accepted connection with buffered I/O. Exactly one
// goroutine may call its Read/Write/Flush methods at a time; that
// invariant is enforced by the connection handler, not by this type.
type Socket struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Adopt wraps conn, optionally performing the server-side TLS handshake
// when tlsConfig is non-nil, and applies keepalive tuning to the plain
// TCP connection beneath it.
func Adopt(conn net.Conn, tlsConfig *tls.Config) (*Socket, error) {
	if tlsConfig != nil {
		tlsConn := tls.Server(conn, tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			tlsConn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	if tc := underlyingTCPConn(conn); tc != nil {
		_ = ConfigureKeepalive(tc, 10*time.Second, 2*time.Second, 3)
		_ = tc.SetNoDelay(true)
	}
	return &Socket{
		conn: conn,
		r:    bufio.NewReaderSize(conn, backpressureThreshold),
		w:    bufio.NewWriterSize(conn, backpressureThreshold),
	}, nil
}

func underlyingTCPConn(conn net.Conn) *net.TCPConn {
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc
	}
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if tc, ok := tlsConn.NetConn().(*net.TCPConn); ok {
			return tc
		}
	}
	return nil
}

// Reader exposes the buffered reader for the parser's feed loop.
func (s *Socket) Reader() *bufio.Reader { return s.r }

// Write implements http1.Sink.
func (s *Socket) Write(p []byte) (int, error) { return s.w.Write(p) }

// Flush implements http1.Sink.
func (s *Socket) Flush() error { return s.w.Flush() }

// SetReadDeadline arms or clears the socket's read deadline.
func (s *Socket) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

// RemoteAddr returns the peer address, for logging.
func (s *Socket) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// ShutdownWrite flushes buffered output and half-closes the write side of
// the TCP connection (for TLS, the TCP connection beneath it) so the peer
// observes EOF while reads are still possible. Connections with no TCP
// connection beneath them are only flushed. It never closes the socket;
// that is left to Close.
func (s *Socket) ShutdownWrite() error {
	_ = s.w.Flush()
	if tc := underlyingTCPConn(s.conn); tc != nil {
		return tc.CloseWrite()
	}
	return nil
}

// Close closes the socket outright.
func (s *Socket) Close() error { return s.conn.Close() }
