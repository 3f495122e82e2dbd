package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	friendsCmd.AddCommand(friendsAddCmd, friendsAcceptCmd, friendsDeclineCmd)
	rootCmd.AddCommand(presenceCmd, friendsCmd, usersCmd)
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List users currently online",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			p, err := inv.client.Presence(inv.ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(p)
			}
			for _, id := range p.Online {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "List friends and incoming friend requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			v, err := inv.client.Friends(inv.ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(v)
			}
			for _, f := range v.Friends {
				state := "offline"
				if f.Online {
					state = "online"
				}
				fmt.Printf("%s  %-16s %s\n", f.ID, displayUser(f.Username, f.ID), state)
			}
			if len(v.Requests) > 0 {
				fmt.Printf("\nPending requests (%d):\n", len(v.Requests))
				for _, r := range v.Requests {
					fmt.Printf("  %s  from %s\n", r.ID, displayUser(r.Sender.Username, r.Sender.ID))
				}
			}
			return nil
		})
	},
}

var friendsAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Send a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			return inv.client.AddFriend(inv.ctx, args[0])
		})
	},
}

func respondCmd(use, short string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(inv invocation) error {
				return inv.client.RespondFriend(inv.ctx, args[0], accept)
			})
		},
	}
}

var (
	friendsAcceptCmd  = respondCmd("accept", "Accept a friend request", true)
	friendsDeclineCmd = respondCmd("decline", "Decline a friend request", false)
)

var usersCmd = &cobra.Command{
	Use:   "users <query>",
	Short: "Search the server's user directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			users, err := inv.client.SearchUsers(inv.ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(users)
			}
			for _, u := range users {
				fmt.Printf("%s  %s\n", u.ID, displayUser(u.Username, u.ID))
			}
			return nil
		})
	},
}
