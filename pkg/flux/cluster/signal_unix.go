//go:build !windows
// +build !windows

package cluster

import (
	"os"
	"os/signal"
	"syscall"
)

// registerSIGUSR2 adds SIGUSR2 to the master's signal channel, used to
// trigger a graceful restart of all workers. Unix-only, matching
// cluster.c's #ifndef _WIN32 guard around its SIGUSR2 handler.
func registerSIGUSR2(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR2)
}

func isSIGUSR2(sig os.Signal) bool {
	return sig == syscall.SIGUSR2
}
