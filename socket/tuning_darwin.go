//go:build darwin

package socket

import (
	"net"
	"syscall"
	"time"
)

// Darwin has no TCP_KEEPINTVL/TCP_KEEPCNT equivalents exposed the same way
// as Linux; TCP_KEEPALIVE sets the idle time and the kernel uses its own
// defaults for probe interval/count. Best-effort only, matching
// shockwave/pkg/shockwave/socket/tuning_darwin.go's own admission that
// macOS keepalive tuning is limited.
const tcpKeepAlive = 0x10

func configureKeepaliveParams(conn *net.TCPConn, idle, _ time.Duration, _ int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, tcpKeepAlive, int(idle.Seconds()))
	})
	if err != nil {
		return err
	}
	return sockErr
}
