package transport

import "net"

// LinkStatus reports whether the network link is usable.
type LinkStatus interface {
	IsConnected() bool
}

// LinkFunc adapts a function to the LinkStatus interface.
type LinkFunc func() bool

// IsConnected implements LinkStatus.
func (f LinkFunc) IsConnected() bool { return f() }

// AlwaysUp is a LinkStatus that never reports the link as down.
var AlwaysUp LinkStatus = LinkFunc(func() bool { return true })

// InterfaceLink reports the link as up when at least one non-loopback
// interface is up and carries an address.
type InterfaceLink struct{}

// IsConnected implements LinkStatus.
func (InterfaceLink) IsConnected() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}
