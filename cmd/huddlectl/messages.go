package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/model"
)

var (
	sendChannel   string
	sendFile      string
	searchChannel string
	searchLimit   int
	historyBefore int64
	historyLimit  int
)

func init() {
	sendCmd.Flags().StringVarP(&sendChannel, "channel", "c", "", "target channel (default: the open channel)")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "attach a local file")
	searchCmd.Flags().StringVarP(&searchChannel, "channel", "c", "", "restrict to one channel")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results")
	historyCmd.Flags().Int64Var(&historyBefore, "before", 0, "only messages older than this unix millisecond time")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum messages")

	rootCmd.AddCommand(timelineCmd, sendCmd, deleteCmd, searchCmd, historyCmd)
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the open channel's timeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			tl, err := inv.client.Timeline(inv.ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(tl)
			}
			if tl.ChannelID == "" {
				fmt.Println("No channel open.")
				return nil
			}
			for _, m := range tl.Messages {
				printMessage(m)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Queue a message for delivery",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if strings.TrimSpace(text) == "" && sendFile == "" {
			return fmt.Errorf("nothing to send")
		}
		return run(func(inv invocation) error {
			id, err := inv.client.Send(inv.ctx, api.SendRequest{ChannelID: sendChannel, Content: text, FilePath: sendFile})
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(api.QueuedView{ClientMsgID: id})
			}
			fmt.Printf("Queued %s\n", id)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			d, err := inv.client.Delete(inv.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(d)
			}
			fmt.Printf("Deleted %s: %s\n", d.ID, d.Tombstone())
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over locally cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			hits, err := inv.client.SearchMessages(inv.ctx, strings.Join(args, " "), searchChannel, searchLimit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(hits)
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("[%s] %s %s: %s\n", h.Message.ChannelID,
					h.Message.CreatedAt.Local().Format(time.DateTime), sender(h.Message), h.Snippet)
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <channel-id>",
	Short: "Page through a channel's locally cached messages, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(inv invocation) error {
			msgs, err := inv.client.History(inv.ctx, args[0], historyBefore, historyLimit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(msgs)
			}
			for _, m := range msgs {
				printMessage(m)
			}
			if n := len(msgs); n > 0 {
				fmt.Printf("-- older: --before %d\n", msgs[n-1].CreatedAt.UnixMilli())
			}
			return nil
		})
	},
}

func sender(m model.Message) string {
	return displayUser(m.Sender.Username, m.Sender.ID)
}

func printMessage(m model.Message) {
	body := m.Content
	if m.File != nil {
		body = strings.TrimSpace(body + " [" + m.File.Kind + ": " + m.File.URL + "]")
	}
	if m.Deleted {
		body = "(" + body + ")"
	}
	fmt.Printf("%s  %-12s %s  %s\n", m.CreatedAt.Local().Format(time.DateTime), sender(m), body, m.ID)
}
