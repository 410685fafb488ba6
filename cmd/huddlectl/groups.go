package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/client"
)

func newGroupsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "groups",
		Aliases: []string{"ls"},
		Short:   "List groups by last activity",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				entries, err := c.List(ctx)
				if err != nil {
					return err
				}
				opts.output(os.Stdout, entries, func() {
					if len(entries) == 0 {
						fmt.Println("No groups.")
						return
					}
					for _, e := range entries {
						mark := " "
						if e.Unread {
							mark = "*"
						}
						when := "-"
						if e.LastActivity > 0 {
							when = humanize.Time(time.UnixMilli(e.LastActivity))
						}
						fmt.Printf("%s %-44s %-24s %-16s %s\n", mark, e.GroupID, e.Name, when, e.Preview)
					}
				})
				return nil
			})
		},
	}
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var qr bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group and print its invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Create(ctx, args[0], qr)
				if err != nil {
					return err
				}
				opts.output(os.Stdout, resp, func() {
					fmt.Printf("Created %s (%s)\n", resp.Group.Name, resp.Group.Pub)
					fmt.Printf("Invite: %s\n", resp.Invite)
					if resp.QR != "" {
						fmt.Println(resp.QR)
					}
				})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&qr, "qr", false, "also render the invite as a terminal QR code")
	return cmd
}

func newJoinCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <invite>",
		Short: "Join a group from an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				g, err := c.Join(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, g, func() {
					fmt.Printf("Joined %s (%s)\n", g.Name, g.Pub)
				})
				return nil
			})
		},
	}
}

func newMembersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "members <group>",
		Short: "List the members of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				members, err := c.Members(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, members, func() {
					for _, m := range members {
						self := ""
						if m.Self {
							self = " (you)"
						}
						fmt.Printf("%-44s %s%s\n", m.Pub, m.Alias, self)
					}
				})
				return nil
			})
		},
	}
}

func newRenameCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <group> <name>",
		Short: "Change the display name of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Rename(ctx, args[0], args[1]); err != nil {
					return err
				}
				opts.output(os.Stdout, map[string]string{"group": args[0], "name": args[1]}, func() {
					fmt.Printf("Renamed %s to %s\n", args[0], args[1])
				})
				return nil
			})
		},
	}
}

func newLeaveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <group>",
		Short: "Leave a group and forget its cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Leave(ctx, args[0]); err != nil {
					return err
				}
				opts.output(os.Stdout, map[string]string{"left": args[0]}, func() {
					fmt.Printf("Left %s\n", args[0])
				})
				return nil
			})
		},
	}
}

func newReadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <group>",
		Short: "Mark a group as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				return c.MarkRead(ctx, args[0])
			})
		},
	}
}
