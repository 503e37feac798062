package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// CarriersConfig selects the built-in carriers to register and the one used
// when a connection asks for "auto" and nothing better applies.
type CarriersConfig struct {
	Enabled []string `mapstructure:"enabled"`
	Default string   `mapstructure:"default"`
}

func (c *CarriersConfig) validate() error {
	for i := range c.Enabled {
		c.Enabled[i] = strings.ToLower(strings.TrimSpace(c.Enabled[i]))
	}
	if c.Default == "" {
		c.Default = "tcp"
	}
	if !slices.Contains(c.Enabled, c.Default) {
		return fmt.Errorf("carriers.default %q is not enabled", c.Default)
	}
	return nil
}

// MulticastConfig holds group socket options and the range the in-memory
// name service allocates groups from.
type MulticastConfig struct {
	// Interface is the local address to send and join on; empty picks the
	// first multicast-capable interface.
	Interface string `mapstructure:"interface"`
	TTL       int    `mapstructure:"ttl"`
	Loopback  bool   `mapstructure:"loopback"`
	GroupBase string `mapstructure:"group_base"`
	PortBase  int    `mapstructure:"port_base"`
}

func (m *MulticastConfig) validate() error {
	ip := net.ParseIP(m.GroupBase).To4()
	if ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("multicast.group_base %q is not an IPv4 multicast address", m.GroupBase)
	}
	if m.PortBase <= 0 || m.PortBase > 65535 {
		return fmt.Errorf("multicast.port_base %d out of range", m.PortBase)
	}
	if m.Interface != "" && net.ParseIP(m.Interface) == nil {
		return fmt.Errorf("multicast.interface %q is not an IP address", m.Interface)
	}
	if m.TTL <= 0 {
		m.TTL = 1
	}
	return nil
}
