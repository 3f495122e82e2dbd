package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd, resyncCmd, metricsCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			st, err := inv.client.Status(inv.ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(st)
			}
			fmt.Printf("Session:   %s\n", st.Session)
			if st.Reason != "" {
				fmt.Printf("Status:    %s (%s)\n", st.Status, st.Reason)
			} else {
				fmt.Printf("Status:    %s\n", st.Status)
			}
			fmt.Printf("Uptime:    %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
			if st.User.ID != "" {
				fmt.Printf("User:      %s (%s)\n", displayUser(st.User.Username, st.User.ID), st.User.ID)
			}
			fmt.Printf("Push:      %s, %d scopes\n", connected(st.Connected), st.Scopes)
			fmt.Printf("Channels:  %d, %d unread\n", st.Channels, st.Unread)
			if st.Active != "" {
				fmt.Printf("Open:      %s\n", st.Active)
			}
			if st.LastSnapshot != nil {
				fmt.Printf("Snapshot:  %s\n", st.LastSnapshot.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Refetch the channel list, friends and friend requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			if err := inv.client.Resync(inv.ctx); err != nil {
				return err
			}
			fmt.Println("Snapshot applied.")
			return nil
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Dump the daemon's Prometheus metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			text, err := inv.client.Metrics(inv.ctx)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		})
	},
}

func connected(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}

func displayUser(username, id string) string {
	if username != "" {
		return username
	}
	return id
}
