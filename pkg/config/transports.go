package config

// TransportConfig describes one bootstrap transport kind and the address
// input ports listen on. Use port 0 to give every port its own ephemeral
// listener.
// Example YAML:
// transports:
//   - kind: tcp
//     listen: "127.0.0.1:0"
//   - kind: quic
//     listen: "127.0.0.1:0"
//   - kind: winpipe
//     listen: "\\\\.\\pipe\\portbus"
//   - kind: mem
//     listen: "inproc"
type TransportConfig struct {
	Kind   string `mapstructure:"kind"`
	Listen string `mapstructure:"listen"`
}

// Transport returns the entry for kind.
func (c *Config) Transport(kind string) (TransportConfig, bool) {
	for _, t := range c.Transports {
		if t.Kind == kind {
			return t, true
		}
	}
	return TransportConfig{}, false
}
