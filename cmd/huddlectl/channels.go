package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/rest"
)

var (
	createDescription string
	createPrivate     bool
)

func init() {
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "channel description")
	createCmd.Flags().BoolVarP(&createPrivate, "private", "p", false, "require admin approval to join")

	rootCmd.AddCommand(channelsCmd, channelCmd, createCmd, selectCmd, closeCmd, joinCmd,
		approveCmd, rejectCmd, kickCmd, dmCmd, findCmd)
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List joined channels, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			channels, err := inv.client.Channels(inv.ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(channels)
			}
			printChannels(channels)
			return nil
		})
	},
}

var channelCmd = &cobra.Command{
	Use:   "channel <id>",
	Short: "Show one channel with its members and pending requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			ch, err := inv.client.Channel(inv.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(ch)
			}
			fmt.Printf("%s  %s\n", ch.ID, ch.Name)
			if ch.Description != "" {
				fmt.Printf("  %s\n", ch.Description)
			}
			fmt.Printf("  private: %v  admin: %s  unread: %d\n", ch.Private, ch.AdminID, ch.Unread)
			fmt.Printf("  members (%d):\n", len(ch.Members))
			for _, m := range ch.Members {
				fmt.Printf("    %s  %s\n", m.ID, m.Username)
			}
			if len(ch.JoinRequests) > 0 {
				fmt.Printf("  join requests (%d):\n", len(ch.JoinRequests))
				for _, r := range ch.JoinRequests {
					fmt.Printf("    %s  %s\n", r.ID, r.Username)
				}
			}
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			ch, err := inv.client.CreateChannel(inv.ctx, api.CreateRequest{
				Name:        args[0],
				Description: createDescription,
				Private:     createPrivate,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(ch)
			}
			fmt.Printf("Created %s (%s)\n", ch.Name, ch.ID)
			return nil
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Open a channel's timeline and clear its unread count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			return inv.client.Select(inv.ctx, args[0])
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			return inv.client.CloseChannel(inv.ctx)
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <id>",
	Short: "Join a public channel or ask to join a private one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			v, err := inv.client.Join(inv.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(v)
			}
			if v.Status == string(rest.JoinPending) {
				fmt.Println("Request sent; waiting for the admin.")
				return nil
			}
			fmt.Println("Joined.")
			return nil
		})
	},
}

func decideCmd(use, short string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel-id> <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(inv invocation) error {
				return inv.client.Decide(inv.ctx, args[0], args[1], approve)
			})
		},
	}
}

var (
	approveCmd = decideCmd("approve", "Approve a pending join request", true)
	rejectCmd  = decideCmd("reject", "Reject a pending join request", false)
)

var kickCmd = &cobra.Command{
	Use:   "kick <channel-id> <user-id>",
	Short: "Remove a member from a channel you administer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			return inv.client.RemoveMember(inv.ctx, args[0], args[1])
		})
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <user-id>",
	Short: "Open a direct conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			ch, err := inv.client.OpenDirect(inv.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(ch)
			}
			fmt.Printf("Opened %s\n", ch.ID)
			return nil
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search the server's channel directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			channels, err := inv.client.SearchChannels(inv.ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(channels)
			}
			printChannels(channels)
			return nil
		})
	},
}

func printChannels(channels []api.ChannelView) {
	if len(channels) == 0 {
		fmt.Println("No channels.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tUNREAD\tLAST ACTIVITY")
	for _, ch := range channels {
		name := ch.Name
		if ch.Active {
			name = "*" + name
		}
		if ch.Private {
			name += " (private)"
		}
		last := "-"
		if !ch.LastActivityAt.IsZero() {
			last = ch.LastActivityAt.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", ch.ID, name, len(ch.Members), ch.Unread, last)
	}
}
