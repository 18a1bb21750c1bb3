package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/txn2/bi-proxy/pkg/metabase/metabasetest"
	"github.com/txn2/bi-proxy/pkg/platform"
)

func TestVersion(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected Version 'dev', got %q", Version)
	}
}

func writeConfig(t *testing.T, engineURL, transport string) string {
	t.Helper()
	content := "server:\n  transport: " + transport + "\nmetabase:\n  url: " + engineURL +
		"\n  username: " + metabasetest.Username + "\n  password: " + metabasetest.Password + "\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestNewWithConfig(t *testing.T) {
	engine := metabasetest.New(t)
	path := writeConfig(t, engine.URL, "http")

	p, err := NewWithConfig(context.Background(), path, platform.WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer func() { _ = p.Close() }()

	if p.Config().Server.Version != Version {
		t.Errorf("Server.Version = %q, want build version %q", p.Config().Server.Version, Version)
	}
	if p.Config().Server.Transport != platform.TransportHTTP {
		t.Errorf("Server.Transport = %q", p.Config().Server.Transport)
	}
}

func TestNewWithConfig_Errors(t *testing.T) {
	if _, err := NewWithConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}

	path := writeConfig(t, "", "stdio")
	if _, err := NewWithConfig(context.Background(), path); err == nil {
		t.Error("expected validation error without metabase url")
	}
}

func TestNew_UnknownTransport(t *testing.T) {
	engine := metabasetest.New(t)
	cfg := &platform.Config{
		Server: platform.ServerConfig{Transport: "websocket"},
		Metabase: platform.MetabaseConfig{
			URL:      engine.URL,
			Username: metabasetest.Username,
			Password: metabasetest.Password,
		},
	}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestServeHTTP_GracefulShutdown(t *testing.T) {
	engine := metabasetest.New(t)
	path := writeConfig(t, engine.URL, "http")
	p, err := NewWithConfig(context.Background(), path, platform.WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer func() { _ = p.Close() }()
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeHTTP(ctx, p, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for range 50 {
		resp, err = http.Get(url) //nolint:noctx // test helper
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeHTTP() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeHTTP did not return after cancel")
	}
	if p.Health().State() != "draining" {
		t.Errorf("state = %q, want draining", p.Health().State())
	}
}
