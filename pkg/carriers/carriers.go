// Package carriers wires the built-in carriers into a registry. Built-ins
// go in first so that plugins registered afterwards can never shadow them.
package carriers

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"portbus/pkg/carrier"
	"portbus/pkg/carriers/local"
	"portbus/pkg/carriers/mcast"
	"portbus/pkg/carriers/tcp"
	"portbus/pkg/carriers/text"
	"portbus/pkg/config"
	"portbus/pkg/nameservice"
	"portbus/pkg/observability"
)

// Deps are the process-wide collaborators the built-ins share. Nil fields
// get fresh defaults.
type Deps struct {
	Oracle  nameservice.Oracle
	Local   *local.Manager
	Table   *mcast.Table
	Joiner  mcast.Joiner
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Builtins lists the carrier names Register knows.
var Builtins = []string{tcp.Name, text.Name, local.Name, mcast.Name}

// Register adds the carriers enabled in cfg, in their configured order,
// followed by plugins.
func Register(reg *carrier.Registry, cfg config.CarriersConfig, mc config.MulticastConfig, deps Deps, plugins ...carrier.Carrier) error {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	for _, name := range cfg.Enabled {
		proto, err := builtin(name, mc, &deps, log)
		if err != nil {
			return err
		}
		reg.Register(proto)
	}
	for _, p := range plugins {
		if !reg.Register(p) {
			log.Warn("plugin carrier shadowed by an earlier registration",
				zap.String("carrier", p.Capabilities().Name))
		}
	}
	log.Debug("carriers registered", zap.Strings("names", reg.Names()))
	return nil
}

func builtin(name string, mc config.MulticastConfig, deps *Deps, log *zap.Logger) (carrier.Carrier, error) {
	switch name {
	case tcp.Name:
		return tcp.New(), nil
	case text.Name:
		return text.New(), nil
	case local.Name:
		if deps.Local == nil {
			deps.Local = local.NewManager(local.WithLogger(log), local.WithMetrics(deps.Metrics))
		}
		return local.New(deps.Local), nil
	case mcast.Name:
		if deps.Oracle == nil {
			return nil, fmt.Errorf("carriers: %s needs a name service", mcast.Name)
		}
		env := &mcast.Env{
			Table:   deps.Table,
			Oracle:  deps.Oracle,
			Joiner:  deps.Joiner,
			Logger:  log,
			Metrics: deps.Metrics,
		}
		if env.Joiner == nil {
			env.Joiner = mcast.UDPJoiner{TTL: mc.TTL, Loopback: mc.Loopback}
		}
		if mc.Interface != "" {
			env.Local = net.ParseIP(mc.Interface)
		}
		return mcast.New(env), nil
	}
	return nil, fmt.Errorf("carriers: unknown built-in %q", name)
}
