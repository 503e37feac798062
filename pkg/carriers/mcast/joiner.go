package mcast

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// Joiner opens the OS-level socket for a multicast group. local selects the
// interface; a nil or unspecified local lets the kernel choose.
type Joiner interface {
	Join(group *net.UDPAddr, local net.IP) (net.PacketConn, error)
}

// UDPJoiner joins groups with the standard library socket and applies the
// IPv4 multicast options.
type UDPJoiner struct {
	TTL      int
	Loopback bool
}

func (j UDPJoiner) Join(group *net.UDPAddr, local net.IP) (net.PacketConn, error) {
	ifi, err := interfaceFor(local)
	if err != nil {
		return nil, err
	}
	c, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("mcast: join %s: %w", group, err)
	}
	p := ipv4.NewPacketConn(c)
	ttl := j.TTL
	if ttl <= 0 {
		ttl = 1
	}
	if err := p.SetMulticastTTL(ttl); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcast: set ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(j.Loopback); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcast: set loopback: %w", err)
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			c.Close()
			return nil, fmt.Errorf("mcast: set interface %s: %w", ifi.Name, err)
		}
	}
	return c, nil
}

// interfaceFor finds the interface that owns ip. A nil or unspecified ip
// yields a nil interface.
func interfaceFor(ip net.IP) (*net.Interface, error) {
	if ip == nil || ip.IsUnspecified() {
		return nil, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("mcast: no interface has address %s", ip)
}

// DefaultInterfaceIP returns the IPv4 address of the first up,
// multicast-capable interface, preferring non-loopback ones.
func DefaultInterfaceIP() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	var loop net.IP
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			n, ok := a.(*net.IPNet)
			if !ok || n.IP.To4() == nil {
				continue
			}
			if ifi.Flags&net.FlagLoopback != 0 {
				if loop == nil {
					loop = n.IP.To4()
				}
				continue
			}
			return n.IP.To4()
		}
	}
	if loop != nil {
		return loop
	}
	return net.IPv4(127, 0, 0, 1)
}
