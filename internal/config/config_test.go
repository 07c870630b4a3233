package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quillirc/quill/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quill.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
nickname = "quill"

[servers.libera]
address = "irc.libera.chat"
tls = true
channels = ["#go", "#quill"]

[servers.oftc]
address = "irc.oftc.net"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Username != "quill" || cfg.Realname != "quill" {
		t.Fatalf("identity defaults not applied: %+v", cfg)
	}

	libera := cfg.Servers["libera"]
	if libera.Port != 6697 {
		t.Fatalf("tls port = %d, want 6697", libera.Port)
	}
	if libera.Nickname != "quill" {
		t.Fatalf("server nickname = %q, want quill", libera.Nickname)
	}
	if libera.HostPort() != "irc.libera.chat:6697" {
		t.Fatalf("hostport = %q", libera.HostPort())
	}

	if cfg.Servers["oftc"].Port != 6667 {
		t.Fatalf("plain port = %d, want 6667", cfg.Servers["oftc"].Port)
	}
}

func TestLoadRejectsMissingNickname(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[servers.libera]
address = "irc.libera.chat"
`)
	if _, err := Load(path); !errors.Is(err, ErrNicknameRequired) {
		t.Fatalf("err = %v, want ErrNicknameRequired", err)
	}
}

func TestLoadRejectsNoServers(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `nickname = "quill"`)
	if _, err := Load(path); !errors.Is(err, ErrNoServers) {
		t.Fatalf("err = %v, want ErrNoServers", err)
	}
}

func TestLoadRejectsMissingAddress(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
nickname = "quill"

[servers.broken]
port = 6667
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalidServer) {
		t.Fatalf("err = %v, want ErrInvalidServer", err)
	}
}
