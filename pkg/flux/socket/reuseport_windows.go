//go:build windows
// +build windows

package socket

import (
	"context"
	"net"
)

// ListenReusePort on Windows has no SO_REUSEPORT equivalent exposed by the
// runtime, matching the cluster model's rule: Windows workers are handed
// distinct ports (base_port+i) instead of sharing one via the listen socket.
func ListenReusePort(ctx context.Context, network, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, network, addr)
}
