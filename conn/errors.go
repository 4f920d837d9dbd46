package conn

import "errors"

// ErrClosed is returned by RunOnSocketTask when the connection has
// already reached Closed before the task could run.
var ErrClosed = errors.New("conn: connection closed")
