package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Push.ReconnectMax = D(time.Minute)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Push.ReconnectMax.Duration != time.Minute {
		t.Errorf("ReconnectMax = %s, want 1m", loaded.Push.ReconnectMax)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "default_session = \"w\"\n[sync]\ngap_threshold = \"10s\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.GapThreshold.Duration != 10*time.Second {
		t.Errorf("GapThreshold = %s, want 10s", cfg.Sync.GapThreshold)
	}
	if cfg.REST.MaxRetries != 3 || cfg.Server.AuthHeader != "x-auth-token" {
		t.Errorf("defaults lost: %+v %+v", cfg.REST, cfg.Server)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil || cfg.DefaultSession != "main" {
		t.Errorf("LoadOrDefault() = %+v, %v", cfg, err)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	data := "HUDDLE_TOKEN=from-file\nHUDDLE_API_URL=https://chat.example/api\n"
	if err := os.WriteFile(envFile, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvToken, "from-process")

	cfg := Default()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Token != "from-process" {
		t.Errorf("Token = %q, want process value", cfg.Server.Token)
	}
	if cfg.Server.APIURL != "https://chat.example/api" {
		t.Errorf("APIURL = %q", cfg.Server.APIURL)
	}
	if err := Default().ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"no cron", func(c *Config) { c.Sync.SnapshotCron = "" }, ""},
		{"bad api url", func(c *Config) { c.Server.APIURL = "ftp://x" }, "server.api_url"},
		{"http push url", func(c *Config) { c.Server.PushURL = "http://x/ws" }, "server.push_url"},
		{"bad cron", func(c *Config) { c.Sync.SnapshotCron = "every minute" }, "snapshot_cron"},
		{"backoff order", func(c *Config) { c.Push.ReconnectMax = D(time.Millisecond) }, "reconnect_max"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
