package adapter

import (
	"net"
	"strings"

	"github.com/davgate/davgate/internal/logger"
)

// LoopbackGate returns a preAccept hook that rejects non-local peers
// unless allowRemote is set. Rejected sockets are closed by the accept
// loop before any handler starts.
//
// The IPv6 link-local loopback fe80::1 is accepted alongside ::1 and
// 127.0.0.0/8; macOS resolves localhost to it on some setups. The zone
// suffix (fe80::1%lo0) is ignored for the comparison.
func LoopbackGate(allowRemote bool) func(net.Conn) bool {
	if allowRemote {
		return nil
	}
	return func(conn net.Conn) bool {
		if isLocalClient(conn.RemoteAddr()) {
			return true
		}
		logger.Warn("Rejected remote connection (allowRemote is off)",
			logger.KeyClientIP, conn.RemoteAddr().String())
		return false
	}
}

func isLocalClient(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	if zone := strings.Index(host, "%"); zone >= 0 {
		host = host[:zone]
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	return ip.Equal(net.ParseIP("fe80::1"))
}
