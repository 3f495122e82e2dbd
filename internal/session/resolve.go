package session

import (
	"os"

	"github.com/matheus3301/huddle/internal/config"
)

const (
	DefaultSessionName = "main"
	EnvSession         = "HUDDLE_SESSION"
)

// Resolve picks the session name. The first non-empty source wins: the
// --session flag, $HUDDLE_SESSION, default_session in the config file at
// configPath (ConfigPath() when empty), then "main". An unreadable config
// file falls through to the default.
func Resolve(flagOverride, configPath string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(EnvSession); name != "" {
		return name
	}
	if configPath == "" {
		configPath = ConfigPath()
	}
	if cfg, err := config.LoadOrDefault(configPath); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
