package connection

import (
	"net"
	"net/netip"
)

type addrConn struct {
	net.Conn
	remote net.Addr
}

func (that *addrConn) RemoteAddr() net.Addr {
	return that.remote
}

// WithRemoteAddr - reports remote as the peer address of conn. Used when the stream itself does not
// know who is on the other side (websocket adapters, in-memory pipes).
func WithRemoteAddr(conn net.Conn, remote net.Addr) net.Conn {
	return &addrConn{Conn: conn, remote: remote}
}

// IsLoopback - reports whether addr is a loopback IP address (127.0.0.0/8 or ::1).
func IsLoopback(addr net.Addr) bool {
	if addr == nil {
		return false
	}

	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.IsLoopback()
	}

	addrPort, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}

	return addrPort.Addr().Unmap().IsLoopback()
}
