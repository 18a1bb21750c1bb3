// Package main provides the entry point for the bi-proxy server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/txn2/bi-proxy/internal/server"
	"github.com/txn2/bi-proxy/pkg/auth"
	"github.com/txn2/bi-proxy/pkg/platform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	transport   string
	address     string
	showVersion bool
	hashKey     string
}

func parseFlags(args []string) (serverOptions, error) {
	opts := serverOptions{}
	fs := flag.NewFlagSet("bi-proxy", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.transport, "transport", "", "Transport type: stdio, http (overrides config)")
	fs.StringVar(&opts.address, "address", "", "Listen address for the http transport (overrides config)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	fs.StringVar(&opts.hashKey, "hash-key", "", "Print the bcrypt hash of an API key for auth.keys[].key_hash and exit")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Printf("bi-proxy version %s\n", mcpserver.Version)
		return nil
	}
	if opts.hashKey != "" {
		hash, err := auth.HashKey(opts.hashKey)
		if err != nil {
			return fmt.Errorf("hashing key: %w", err)
		}
		fmt.Println(hash)
		return nil
	}

	cfg, err := platform.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cfg, opts)

	// stdout carries the stdio transport, so logs go to stderr.
	slog.SetDefault(platform.NewLogger(cfg.Server, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := mcpserver.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("closing platform", "error", err)
		}
	}()

	return mcpserver.Serve(ctx, p)
}

func applyFlagOverrides(cfg *platform.Config, opts serverOptions) {
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
}
