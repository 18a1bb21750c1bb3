// Package server builds and runs the proxy from configuration.
package server

import (
	"context"
	"fmt"

	"github.com/txn2/bi-proxy/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// New creates a platform from cfg. The build version is used unless the
// configuration names one.
func New(ctx context.Context, cfg *platform.Config, opts ...platform.Option) (*platform.Platform, error) {
	if cfg.Server.Version == "" || cfg.Server.Version == "1.0.0" {
		cfg.Server.Version = Version
	}
	p, err := platform.New(ctx, append([]platform.Option{platform.WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}

// NewWithConfig loads the configuration at path (empty for environment
// only) and creates a platform from it.
func NewWithConfig(ctx context.Context, path string, opts ...platform.Option) (*platform.Platform, error) {
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return New(ctx, cfg, opts...)
}
