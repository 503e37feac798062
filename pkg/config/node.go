package config

import "time"

// NodeConfig controls the local port node.
type NodeConfig struct {
	Name          string `mapstructure:"name"`
	Transport     string `mapstructure:"transport"` // kind from transports
	DialTimeoutMS int    `mapstructure:"dial_timeout_ms"`
}

func (n NodeConfig) DialTimeout() time.Duration {
	if n.DialTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.DialTimeoutMS) * time.Millisecond
}

// NameServiceConfig tunes the in-process name service a node creates when
// none is supplied.
type NameServiceConfig struct {
	// LeaseMS is how long an input port's record lives without renewal.
	// Ports renew at a third of it; 0 keeps records until unregistered.
	LeaseMS int `mapstructure:"lease_ms"`
	// MaxBytes caps the stored records, 0 means unbounded
	MaxBytes uint64 `mapstructure:"max_bytes"`
}

func (n NameServiceConfig) Lease() time.Duration {
	if n.LeaseMS <= 0 {
		return 0
	}
	return time.Duration(n.LeaseMS) * time.Millisecond
}
