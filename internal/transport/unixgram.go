package transport

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/arcflux/ledgerraft/internal/wire"
)

// UnixgramEndpoint is the production Endpoint: each replica binds a
// Unix domain datagram socket named after its own id inside a shared
// directory, and addresses peers by the same convention. This is the
// "pre-bound datagram endpoint named by its id" the process interface
// calls for, without needing a port-allocation scheme.
type UnixgramEndpoint struct {
	dir  string
	conn *net.UnixConn
}

// SocketPath returns the socket path an id would bind/dial under dir.
func SocketPath(dir, id string) string {
	return filepath.Join(dir, id+".sock")
}

// NewUnixgramEndpoint binds the datagram socket for id inside dir,
// creating dir if necessary. Any stale socket file left behind by a
// previous run of the same id is removed first.
func NewUnixgramEndpoint(dir, id string) (*UnixgramEndpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := SocketPath(dir, id)
	_ = os.Remove(path) // best-effort: clear a stale socket from a prior run

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, err
	}

	return &UnixgramEndpoint{dir: dir, conn: conn}, nil
}

func (e *UnixgramEndpoint) Send(dst string, frame []byte) error {
	addr, err := net.ResolveUnixAddr("unixgram", SocketPath(e.dir, dst))
	if err != nil {
		return err
	}
	_, err = e.conn.WriteToUnix(frame, addr)
	return err
}

func (e *UnixgramEndpoint) Recv(quantum time.Duration) ([]byte, bool, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(quantum)); err != nil {
		return nil, false, err
	}

	buf := make([]byte, wire.MaxBytes)
	n, _, err := e.conn.ReadFromUnix(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	return buf[:n], true, nil
}

func (e *UnixgramEndpoint) Close() error {
	path := e.conn.LocalAddr().String()
	err := e.conn.Close()
	_ = os.Remove(path)
	return err
}
