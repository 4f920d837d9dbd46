// Package listener binds a TCP (optionally TLS) endpoint and dispatches
// each accepted connection to a pool of connection handlers, answering
// with a literal 503 when the pool is already at capacity.
package listener

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/polymedia/ember/emberlog"
	"github.com/polymedia/ember/pool"
)

// tooManyConnections is the canonical bit-exact response written to a
// socket rejected because the pool has no free handler. No Content-Length
// is set; the connection is closed immediately after, matching the
// close-delimited framing this status line implies.
const tooManyConnections = "HTTP/1.1 503 too many connections\r\nConnection: close\r\n\r\nToo many connections\r\n"

// Options configures a Listener.
type Options struct {
	Addr      string
	TLSConfig *tls.Config
	Pool      *pool.Pool
	Logger    *zap.Logger
}

// Listener owns a bound net.Listener and runs the accept loop that feeds
// connections to a pool.Pool.
type Listener struct {
	opts Options
	log  *zap.Logger

	ln net.Listener

	wg        sync.WaitGroup
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New binds opts.Addr (plain TCP, or TLS if opts.TLSConfig is set) and
// returns a Listener ready for Serve.
func New(opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, err
	}
	if opts.TLSConfig != nil {
		ln = tls.NewListener(ln, opts.TLSConfig)
	}
	return &Listener{
		opts:    opts,
		log:     emberlog.Or(opts.Logger),
		ln:      ln,
		closeCh: make(chan struct{}),
	}, nil
}

// Addr reports the bound local address, useful when Addr specified port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the accept loop until the listener is closed via Shutdown. It
// always returns a non-nil error; a clean shutdown returns net.ErrClosed
// wrapped by the underlying listener, which callers should treat as
// success.
func (l *Listener) Serve() error {
	for {
		netConn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				l.wg.Wait()
				return err
			default:
			}
			l.log.Error("accept failed", zap.Error(err))
			return err
		}

		handler, ok := l.opts.Pool.Acquire()
		if !ok {
			l.log.Debug("rejecting connection: pool exhausted", zap.String("remote", netConn.RemoteAddr().String()))
			l.wg.Add(1)
			go l.reject(netConn)
			continue
		}

		if err := handler.Adopt(netConn); err != nil {
			l.log.Warn("failed to adopt connection", zap.Error(err))
			l.opts.Pool.Release(handler)
		}
	}
}

func (l *Listener) reject(netConn net.Conn) {
	defer l.wg.Done()
	_, _ = netConn.Write([]byte(tooManyConnections))
	_ = netConn.Close()
}

// Shutdown closes the listening socket, unblocking Serve, then asks the
// pool to drain every handler, bounded by ctx.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.closeOnce.Do(func() { close(l.closeCh) })
	_ = l.ln.Close()
	return l.opts.Pool.Shutdown(ctx)
}
