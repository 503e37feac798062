// Package observability contains logging setup and Prometheus metrics.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"portbus/pkg/config"
)

// SetupLogger builds the process logger from c, installs it as the zap
// global and routes the standard library log package through it. The
// caller should defer logger.Sync().
//
// Outside development mode the core is sampled: serve logs one line per
// message, and a busy port would otherwise drown everything else.
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	encoder := newEncoder(strings.EqualFold(c.Format, "json"), c.Development)
	sinks, err := openSinks(c)
	if err != nil {
		return nil, err
	}
	cores := make([]zapcore.Core, 0, len(sinks))
	for _, ws := range sinks {
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}
	core := zapcore.NewTee(cores...)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	} else {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}

	logger := zap.New(core, opts...).Named("portbus")
	zap.ReplaceGlobals(logger)
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

func parseLevel(s string) (zap.AtomicLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	case "warning":
		s = "warn"
	}
	lvl, err := zap.ParseAtomicLevel(s)
	if err != nil {
		return lvl, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// newEncoder colors levels only on the console; escape codes in JSON break
// whatever ingests it.
func newEncoder(json, dev bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	if dev {
		cfg = zap.NewDevelopmentEncoderConfig()
	}
	if json {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	if dev {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// openSinks turns the configured outputs into writers. Anything other than
// stdout or stderr is a file path. With rotation enabled every file output
// goes to the one rotated file; an output named twice is opened once.
func openSinks(c config.LogConfig) ([]zapcore.WriteSyncer, error) {
	var (
		sinks []zapcore.WriteSyncer
		seen  = map[string]bool{}
	)
	for _, out := range c.Outputs {
		target := strings.TrimSpace(out)
		switch strings.ToLower(target) {
		case "stdout", "stderr":
			target = strings.ToLower(target)
		default:
			if c.Rotation.Enable && strings.TrimSpace(c.Rotation.Filename) != "" {
				target = c.Rotation.Filename
			}
		}
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		switch target {
		case "stdout":
			sinks = append(sinks, zapcore.Lock(os.Stdout))
		case "stderr":
			sinks = append(sinks, zapcore.Lock(os.Stderr))
		default:
			ws, err := fileSink(target, c.Rotation)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, ws)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	return sinks, nil
}

func fileSink(path string, r config.RotationConfig) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log output %s: %w", path, err)
		}
	}
	if r.Enable {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    max(r.MaxSizeMB, 10),
			MaxBackups: max(r.MaxBackups, 1),
			MaxAge:     max(r.MaxAgeDays, 7),
			Compress:   r.Compress,
		}), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log output: %w", err)
	}
	return zapcore.Lock(f), nil
}
