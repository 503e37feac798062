package mcast

import (
	"encoding/binary"
	"io"
	"net"

	"portbus/pkg/carrier"
)

// headerLen is the extra header: IPv4 group address then big-endian port.
const headerLen = 6

func encodeHeader(group *net.UDPAddr) ([headerLen]byte, error) {
	var h [headerLen]byte
	ip := group.IP.To4()
	if ip == nil {
		return h, carrier.Vetof("mcast: group %s is not IPv4", group)
	}
	if group.Port <= 0 || group.Port > 65535 {
		return h, carrier.Vetof("mcast: group port %d out of range", group.Port)
	}
	copy(h[:4], ip)
	binary.BigEndian.PutUint16(h[4:], uint16(group.Port))
	return h, nil
}

func decodeHeader(h [headerLen]byte) (*net.UDPAddr, error) {
	ip := net.IPv4(h[0], h[1], h[2], h[3])
	if !ip.IsMulticast() {
		return nil, carrier.Vetof("mcast: announced group %s is not multicast", ip)
	}
	port := int(binary.BigEndian.Uint16(h[4:]))
	if port == 0 {
		return nil, carrier.Vetof("mcast: announced group has port 0")
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func readHeader(r io.Reader) (*net.UDPAddr, error) {
	var h [headerLen]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}
	return decodeHeader(h)
}
