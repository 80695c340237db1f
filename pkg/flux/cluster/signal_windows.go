//go:build windows
// +build windows

package cluster

import "os"

// registerSIGUSR2 is a no-op on Windows, which has no SIGUSR2 equivalent;
// graceful per-worker restart is triggered only via signalAll(SIGTERM)
// followed by respawn on this platform.
func registerSIGUSR2(ch chan<- os.Signal) {}

func isSIGUSR2(sig os.Signal) bool { return false }
