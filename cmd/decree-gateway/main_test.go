package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/hirewire/decree/internal/config"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const authorityYAML = `
table_id: default
levels:
  - level: manager
    rank: 1
    permits: [approved, rejected]
actors:
  - id: mgr-1
    level: manager
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ListenAddr:    ":8080",
		AuthorityPath: writeFixture(t, "authority.yaml", authorityYAML),
		SigningKey: config.SigningKeyConfig{
			KeyID:      "k1",
			SecretPath: writeFixture(t, "signing.key", "0123456789abcdef0123456789abcdef"),
		},
	}
}

func TestNewServer(t *testing.T) {
	addr := "127.0.0.1:9999"
	srv := newServer(addr, testConfig(t))
	if srv.Addr != addr {
		t.Fatalf("expected addr %s, got %s", addr, srv.Addr)
	}
	if srv.Handler == nil {
		t.Fatalf("expected handler to be set")
	}
}

func TestRunDefaults(t *testing.T) {
	factory := func(addr string, cfg config.Config) *http.Server {
		if addr != ":8080" {
			t.Fatalf("expected default addr, got %s", addr)
		}
		return &http.Server{Addr: addr}
	}

	listen := func(_ *http.Server) error {
		return http.ErrServerClosed
	}

	getenv := func(string) string { return "" }
	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(_ *http.Server) error {
		return listenErr
	}

	factory := func(addr string, cfg config.Config) *http.Server {
		return &http.Server{Addr: addr}
	}

	getenv := func(key string) string {
		if key == "DECREE_LISTEN_ADDR" {
			return "127.0.0.1:1234"
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunLoadsConfigFile(t *testing.T) {
	cfg := testConfig(t)
	content := "listen_addr: \":9999\"\n" +
		"authority_path: \"" + cfg.AuthorityPath + "\"\n" +
		"signing_key:\n  key_id: k1\n  secret_path: \"" + cfg.SigningKey.SecretPath + "\"\n"
	path := writeFixture(t, "decree.yaml", content)

	factory := func(addr string, loaded config.Config) *http.Server {
		if addr != ":9999" {
			t.Fatalf("expected addr from config, got %s", addr)
		}
		if loaded.AuthorityPath != cfg.AuthorityPath {
			t.Fatalf("expected authority path from config, got %s", loaded.AuthorityPath)
		}
		return &http.Server{Addr: addr}
	}

	listen := func(_ *http.Server) error { return http.ErrServerClosed }
	getenv := func(key string) string {
		if key == "DECREE_CONFIG_PATH" {
			return path
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "a", "b"); got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	err := listenAndServe(&http.Server{Addr: "127.0.0.1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainNoError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(args []string, envFn envFn, listenFn listenFn, serverFactory serverFactory) error {
		return nil
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if called {
		t.Fatalf("unexpected fatal call")
	}
}

func TestMainError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(args []string, envFn envFn, listenFn listenFn, serverFactory serverFactory) error {
		return errors.New("boom")
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if !called {
		t.Fatalf("expected fatal call")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (logNotifier{}).ProfileApproved("app-1", "dec-1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
}
