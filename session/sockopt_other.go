//go:build !unix

package session

import "net"

// TuneTCPConn is a no-op on non-unix builds: SetsockoptInt needs
// unix-specific TCP_KEEPINTVL/TCP_KEEPCNT constants, and Session's
// correctness never depends on the kernel tearing down a half-open
// socket -- heartbeatLoop's idle "ver" probe and 3T abort already cover
// that at the application layer.
func TuneTCPConn(conn net.Conn) error {
	return nil
}
