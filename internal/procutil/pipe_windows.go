//go:build windows

package procutil

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// ListenControlSocket opens the mapper's out-of-band control surface as a
// Windows named pipe, giving Windows the same control-socket surface as
// the Unix build rather than leaving it unimplemented.
func ListenControlSocket(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

// DialControlSocket connects to a running mapper's control surface over
// its named pipe.
func DialControlSocket(path string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(path, &timeout)
}
