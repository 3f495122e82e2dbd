package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".huddle", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvHome, base)
	if got := DBPath("w"); got != filepath.Join(base, "sessions", "w", "huddle.db") {
		t.Errorf("DBPath(w) = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(base, "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestLogPath(t *testing.T) {
	got := LogPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "logs", "huddled.log")) {
		t.Errorf("LogPath(test) = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() || info.Mode().Perm() != 0700 {
		t.Errorf("log dir mode = %v", info.Mode())
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	t.Setenv(EnvSession, "")
	if got := Resolve("", ""); got != DefaultSessionName {
		t.Errorf("Resolve() without config = %q", got)
	}
	if got := Resolve("work", ""); got != "work" {
		t.Errorf("Resolve(work) = %q", got)
	}
	if err := os.WriteFile(ConfigPath(), []byte("default_session = \"team\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve("", ""); got != "team" {
		t.Errorf("Resolve() with config = %q, want team", got)
	}
	t.Setenv(EnvSession, "ops")
	if got := Resolve("", ""); got != "ops" {
		t.Errorf("Resolve() with $%s = %q, want ops", EnvSession, got)
	}
	if got := Resolve("work", ""); got != "work" {
		t.Errorf("flag should beat $%s, got %q", EnvSession, got)
	}
}

func TestResolveExplicitConfig(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	t.Setenv(EnvSession, "")
	if err := os.WriteFile(ConfigPath(), []byte("default_session = \"team\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(t.TempDir(), "alt.toml")
	if err := os.WriteFile(other, []byte("default_session = \"alt\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve("", other); got != "alt" {
		t.Errorf("Resolve() with explicit config = %q, want alt", got)
	}
}
