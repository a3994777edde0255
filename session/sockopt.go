//go:build unix

package session

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// TuneTCPConn applies the socket-level tuning spec.md §4.E's receive
// timeout/heartbeat behavior assumes: TCP_NODELAY so a "ver" probe or a
// small sync record isn't held back by Nagle's algorithm waiting for
// more data to batch, and SO_KEEPALIVE with an interval shorter than
// receiveTimeout so a half-open connection (cable pulled, NAT table
// expired) is torn down by the kernel even if nothing at the
// application layer ever tries to write to it. A non-TCP net.Conn (a
// test's in-memory pipe, for instance) is left untouched rather than
// erroring, since sockopt tuning is an optimization, not a protocol
// requirement.
func TuneTCPConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return err
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	if err := tc.SetKeepAlivePeriod(heartbeatInterval); err != nil {
		return err
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		// TCP_KEEPINTVL/TCP_KEEPCNT aren't exposed by net.TCPConn at
		// all; reaching past SetKeepAlivePeriod (which only sets the
		// idle-before-probing delay) to set them directly is the
		// reason this file exists instead of stopping at the stdlib
		// net package.
		intervalSecs := int(heartbeatInterval / time.Second)
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intervalSecs); e != nil {
			sockErr = e
			return
		}
		// 3 missed probes at one interval apart roughly matches
		// receiveTimeout (3T) before the kernel itself gives up.
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3); e != nil {
			sockErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
