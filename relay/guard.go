package relay

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrPrivateAddress is returned when a fetch targets a loopback, private, link-local
// or otherwise non-public address.
var ErrPrivateAddress = errors.New("relay: destination is not a public address")

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified()
}

// checkHost rejects a host given as a non-public IP literal. Names are checked once
// resolved, at dial time.
func checkHost(host string) error {
	if addr, err := netip.ParseAddr(host); err == nil && !publicAddr(addr) {
		return ErrPrivateAddress
	}
	return nil
}

// publicOnlyTransport only connects to public addresses. The check runs on the
// resolved address, so names pointing at internal hosts are refused too.
func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !publicAddr(addr) {
				return ErrPrivateAddress
			}
			return nil
		},
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	// An environment proxy would be dialed instead of the origin and bypass the check
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}
