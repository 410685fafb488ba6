package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/client"
)

func newSendCommand(opts *rootOptions) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "send <group> <text...>",
		Short: "Send a message to a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				msg, err := c.Send(ctx, args[0], strings.Join(args[1:], " "), contentType)
				if err != nil {
					return err
				}
				opts.output(os.Stdout, msg, func() {
					fmt.Printf("Sent %s (%s)\n", msg.MsgID, msg.Status)
				})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "type", "text", "content type (text or voice)")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <group>",
		Short: "Focus a group and print its latest messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				page, err := c.Focus(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, page, func() { printPage(page) })
				return nil
			})
		},
	}
}

func newMoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "more <group>",
		Short: "Print the next older page of the focused group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				page, err := c.LoadMore(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, page, func() { printPage(page) })
				return nil
			})
		},
	}
}

func newUnfocusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unfocus <group>",
		Short: "Stop keeping the message view of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				return c.Unfocus(ctx, args[0])
			})
		},
	}
}

func newResendCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <group>",
		Short: "Republish pending messages of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				n, err := c.Resend(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, api.ResendResponse{Count: n}, func() {
					fmt.Printf("Republished %d pending message(s)\n", n)
				})
				return nil
			})
		},
	}
}

func printPage(page *api.PageResponse) {
	if len(page.Messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range page.Messages {
		ts := time.UnixMilli(m.Timestamp).Format(time.DateTime)
		marker := ""
		if m.Status == "pending" {
			marker = " [pending]"
		}
		fmt.Printf("%s  %s: %s%s\n", ts, m.SenderAlias, m.Content, marker)
	}
	if page.HasMore {
		fmt.Println("... older messages available (huddlectl more)")
	}
}
