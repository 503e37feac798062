package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// an explicit path that does not exist is a read error, so use an empty file
	empty := filepath.Join(t.TempDir(), "portbus.yaml")
	if err := os.WriteFile(empty, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(empty)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Transport != "tcp" || cfg.Carriers.Default != "tcp" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Multicast.GroupBase != "239.255.0.1" || cfg.Multicast.PortBase != 11000 {
		t.Fatalf("unexpected multicast defaults: %+v", cfg.Multicast)
	}
	if _, ok := cfg.Transport("tcp"); !ok {
		t.Fatalf("default transport entry missing")
	}
	if cfg.NameService.Lease() != 30*time.Second || cfg.NameService.MaxBytes != 16<<20 {
		t.Fatalf("unexpected nameservice defaults: %+v", cfg.NameService)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portbus.yaml")
	body := `
node:
  name: lab
  transport: mem
transports:
  - kind: MEM
    listen: inproc
carriers:
  enabled: [tcp, local]
  default: local
multicast:
  group_base: 239.255.9.1
  port_base: 12000
nameservice:
  lease_ms: 0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORTBUS_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Name != "lab" || cfg.Node.Transport != "mem" {
		t.Fatalf("node = %+v", cfg.Node)
	}
	if tc, ok := cfg.Transport("mem"); !ok || tc.Listen != "inproc" {
		t.Fatalf("transport = %+v %v", tc, ok)
	}
	if cfg.Carriers.Default != "local" {
		t.Fatalf("carriers = %+v", cfg.Carriers)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("env override not applied: %q", cfg.Log.Level)
	}
	if cfg.NameService.Lease() != 0 {
		t.Fatalf("lease_ms 0 must disable leases, got %s", cfg.NameService.Lease())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"level":     func(c *Config) { c.Log.Level = "loud" },
		"transport": func(c *Config) { c.Node.Transport = "carrier-pigeon" },
		"default":   func(c *Config) { c.Carriers.Default = "mcast"; c.Carriers.Enabled = []string{"tcp"} },
		"group":     func(c *Config) { c.Multicast.GroupBase = "10.0.0.1" },
		"port":      func(c *Config) { c.Multicast.PortBase = 70000 },
		"lease":     func(c *Config) { c.NameService.LeaseMS = -1 },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
