package conn

import (
	"context"

	"github.com/polymedia/ember/http1"
)

// ServeParams is handed to a Handler's Serve method for one request.
// Request and Response are only safe to touch from the goroutine running
// Serve, or via RunOnSocketTask — Response shares state with the
// connection's own goroutine.
type ServeParams struct {
	RequestID    int64
	Request      *http1.Request
	Response     *http1.ResponseWriter
	Ctx          context.Context
	InitialClose bool

	// RunOnSocketTask runs fn on the connection's own goroutine, blocking
	// the caller until it returns, and is the only sanctioned way to touch
	// Response from a goroutine other than the one Serve was called on —
	// a handler that streams a body in multiple writes from a worker
	// goroutine, for instance, must route each Write through this rather
	// than calling Response.Write directly.
	RunOnSocketTask func(fn func() error) error
}

// Completion is sent by a Handler once it is done with a request,
// possibly from a goroutine other than the one that received
// ServeParams. RequestID must echo the one from ServeParams — the
// connection discards completions whose RequestID doesn't match its
// current request, which happens when the connection moved on after a
// disconnect or shutdown cancelled the handler.
type Completion struct {
	RequestID  int64
	Close      bool
	NeedsFlush bool
	Finalize   func()
}

// Handler is the asynchronous request-handling contract. Serve must
// eventually send exactly one Completion on done, even if ctx is
// cancelled — a handler that never completes leaks the connection's
// goroutine budget for as long as the connection lives (it will still be
// torn down on disconnect, but its resources linger until Serve returns).
type Handler interface {
	Serve(params ServeParams, done chan<- Completion)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ServeParams, chan<- Completion)

// Serve implements Handler.
func (f HandlerFunc) Serve(params ServeParams, done chan<- Completion) { f(params, done) }

type notImplementedHandler struct{}

func (notImplementedHandler) Serve(params ServeParams, done chan<- Completion) {
	params.Response.SetStatus(501, "Not Implemented")
	_ = params.Response.Write([]byte("501 not implemented"), true)
	done <- Completion{RequestID: params.RequestID}
}

// NotImplementedHandler is the default Handler used when an embedder
// hasn't supplied one yet; it answers every request with 501.
var NotImplementedHandler Handler = notImplementedHandler{}
