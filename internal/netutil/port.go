// Package netutil has small networking helpers used by tests and the daemon.
package netutil

import (
	"fmt"
	"net"
)

// GetEphemeralTCPPort asks the kernel for a free TCP port on localhost and
// releases it immediately. The usual bind race applies; callers use it for
// test listeners, not production allocation.
func GetEphemeralTCPPort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
