package socket

import (
	"net"
	"time"
)

// ConfigureKeepalive enables SO_KEEPALIVE on conn and tunes idle time,
// probe interval, and probe count. The platform-neutral signature is
// implemented per-OS in tuning_linux.go/tuning_darwin.go, falling back to
// Go's coarser SetKeepAlivePeriod elsewhere (tuning_other.go) — the same
// build-tag split shockwave/pkg/shockwave/socket/tuning_*.go uses, applied
// to the spec's exact values (idle 10s, interval 2s, 3 probes) rather than
// shockwave's own (60s/10s/3).
func ConfigureKeepalive(conn *net.TCPConn, idle, interval time.Duration, count int) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return configureKeepaliveParams(conn, idle, interval, count)
}
