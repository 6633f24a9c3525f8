//go:build windows
// +build windows

package client

import (
	"os"
)

func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func SignOutSignals() []os.Signal {
	return nil
}
