package main

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/config"
)

const gatewayYAML = `
listen_addr: ":9999"
evaluators:
  legal:
    url: "http://legal.internal"
  ops:
    url: "http://ops.internal"
auth:
  dev_token: test-token
  dev_org_id: o1
  dev_site_id: s1
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestRunRequiresConfig(t *testing.T) {
	getenv := func(string) string { return "" }
	listen := func(*http.Server) error { return nil }
	factory := func(config.Config) (*http.Server, io.Closer, error) { return &http.Server{}, nopCloser{}, nil }
	if err := run(nil, getenv, listen, factory); err == nil {
		t.Fatalf("expected error without config")
	}
}

func TestRunLoadsConfigFile(t *testing.T) {
	path := writeConfig(t, gatewayYAML)
	factory := func(cfg config.Config) (*http.Server, io.Closer, error) {
		if cfg.ListenAddr != ":9999" {
			t.Fatalf("expected addr from config, got %s", cfg.ListenAddr)
		}
		if cfg.DB.Driver != "memory" {
			t.Fatalf("expected memory default, got %s", cfg.DB.Driver)
		}
		return &http.Server{Addr: cfg.ListenAddr}, nopCloser{}, nil
	}
	listen := func(*http.Server) error { return http.ErrServerClosed }
	getenv := func(key string) string {
		if key == "READINESS_CONFIG_PATH" {
			return path
		}
		return ""
	}
	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunError(t *testing.T) {
	path := writeConfig(t, gatewayYAML)
	listenErr := errors.New("listen failed")
	listen := func(*http.Server) error { return listenErr }
	factory := func(cfg config.Config) (*http.Server, io.Closer, error) {
		return &http.Server{Addr: cfg.ListenAddr}, nopCloser{}, nil
	}
	getenv := func(string) string { return "" }
	if err := run([]string{"--config", path}, getenv, listen, factory); !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunFactoryError(t *testing.T) {
	path := writeConfig(t, gatewayYAML)
	factory := func(config.Config) (*http.Server, io.Closer, error) { return nil, nil, errors.New("no db") }
	listen := func(*http.Server) error {
		t.Fatalf("listen must not run")
		return nil
	}
	if err := run([]string{"--config", path}, func(string) string { return "" }, listen, factory); err == nil {
		t.Fatalf("expected factory error")
	}
}

func TestNewServerServesHealth(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, gatewayYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	srv, closer, err := newServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer closer.Close()
	if srv.Addr != ":9999" || srv.Handler == nil {
		t.Fatalf("unexpected server %+v", srv)
	}

	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", res.Code, res.Body.String())
	}
}

func TestNewServerRejectsBadSigningKey(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, gatewayYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.SigningKey = config.SigningKeyConfig{KeyID: "k1", PrivateKeyPath: filepath.Join(t.TempDir(), "missing.key")}
	if _, _, err := newServer(cfg); err == nil {
		t.Fatalf("expected signing key error")
	}
}
