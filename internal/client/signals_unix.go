//go:build !windows
// +build !windows

package client

import (
	"os"
	"syscall"
)

// ShutdownSignals stop the client.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// SignOutSignals sign the local user out, which tears tracking down
// without exiting a one-shot command early.
func SignOutSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
