//go:build !windows
// +build !windows

package socket

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenReusePort opens a TCP listener with SO_REUSEPORT set before bind,
// letting multiple processes (cluster workers) each accept on the same port
// with the kernel load-balancing connections across them. On platforms
// without SO_REUSEPORT this degrades to a plain Listen call; see
// reuseport_windows.go for the Windows path, which never shares a port.
func ListenReusePort(ctx context.Context, network, addr string) (net.Listener, error) {
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
	return lc.Listen(ctx, network, addr)
}
