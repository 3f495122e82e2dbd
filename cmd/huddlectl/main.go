package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/ctl"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	sessionFlag string
	jsonFlag    bool
	socketFlag  string
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "huddlectl",
	Short:         "Control a running huddled session",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "control socket path (default <session dir>/daemon.sock)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// invocation is what every subcommand needs to talk to the daemon.
type invocation struct {
	ctx     context.Context
	client  *ctl.Client
	session string
}

// run resolves the session, connects and calls fn with a bounded context.
func run(fn func(inv invocation) error) error {
	name := session.Resolve(sessionFlag, "")
	if err := session.ValidateName(name); err != nil {
		return err
	}
	socketPath := socketFlag
	if socketPath == "" {
		socketPath = session.SocketPath(name)
	}
	c := ctl.New(socketPath)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	err := fn(invocation{ctx: ctx, client: c, session: name})
	if errors.Is(err, ctl.ErrDaemonDown) {
		return daemonDown(name)
	}
	return err
}

func daemonDown(name string) error {
	h, ok, err := lock.ReadHolder(session.Dir(name))
	if err != nil || !ok {
		return fmt.Errorf("no daemon for session %q; start it with: huddled --session %s", name, name)
	}
	return fmt.Errorf("session %q is locked by pid %d (started %s) but its socket does not answer",
		name, h.PID, h.Started.Format(time.RFC3339))
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
