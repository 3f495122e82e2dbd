package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/daemon"
	"github.com/matheus3301/huddle/internal/session"
)

func main() {
	sessionFlag := pflag.StringP("session", "s", "", "session name (overrides config default)")
	configFlag := pflag.String("config", "", "config file (default $HUDDLE_HOME/config.toml)")
	socketFlag := pflag.String("socket", "", "control socket path (default <session dir>/daemon.sock)")
	pflag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	sessionName := session.Resolve(*sessionFlag, configPath)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fatal(err)
	}
	if err := cfg.ApplyEnv(session.EnvPath(sessionName)); err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("invalid config %s: %w", configPath, err))
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			Config:      cfg,
			SocketPath:  *socketFlag,
		}),
	)

	app.Run()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
