//go:build !windows

package procutil

import (
	"net"
	"time"
)

// ListenControlSocket opens the mapper's out-of-band control surface as a
// Unix domain socket.
func ListenControlSocket(path string) (net.Listener, error) {
	return net.Listen("unix", path)
}

// DialControlSocket connects to a running mapper's control surface.
func DialControlSocket(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
