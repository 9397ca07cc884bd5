package server

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenAPI opens the management API listener. With reusePort set the socket
// gets SO_REUSEPORT, so a replacement agent can bind while the old one drains.
func listenAPI(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	if !reusePort {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", addr)
	}
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}
