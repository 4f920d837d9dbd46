//go:build !linux && !darwin

package socket

import (
	"net"
	"time"
)

// configureKeepaliveParams falls back to Go's portable (if coarser)
// SetKeepAlivePeriod on platforms without a syscall-level tuning path.
func configureKeepaliveParams(conn *net.TCPConn, idle, _ time.Duration, _ int) error {
	return conn.SetKeepAlivePeriod(idle)
}
