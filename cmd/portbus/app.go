package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"portbus/pkg/codec"
	"portbus/pkg/config"
	"portbus/pkg/observability"
	"portbus/pkg/port"
)

// app is the process-wide setup shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *observability.Metrics
	server  *observability.MetricsServer
	node    *port.Node
	codecs  *codec.Registry
}

// setup loads the config, installs the logger and builds the node. The
// metrics endpoint starts only when withMetrics is set and the config
// enables it.
func setup(opts *options, withMetrics bool, nodeOpts ...port.Option) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	a := &app{cfg: cfg, log: logger, codecs: codec.NewRegistry()}

	if withMetrics && cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		a.metrics = observability.NewMetrics("portbus", reg)
		a.server = observability.NewMetricsServer(cfg.Metrics.Listen, reg)
		a.server.StartAsync()
		logger.Info("metrics endpoint", zap.String("listen", cfg.Metrics.Listen))
	}

	nodeOpts = append([]port.Option{port.WithLogger(logger), port.WithMetrics(a.metrics)}, nodeOpts...)
	a.node, err = port.NewNode(cfg, nodeOpts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build node: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.node != nil {
		if err := a.node.Close(); err != nil {
			a.log.Warn("node close", zap.Error(err))
		}
	}
	if a.server != nil {
		_ = a.server.Stop()
	}
	_ = a.log.Sync()
}
