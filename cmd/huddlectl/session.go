package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/client"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon identity and open groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Status(ctx)
				if err != nil {
					return err
				}
				opts.output(os.Stdout, resp, func() {
					fmt.Printf("Profile: %s\n", resp.Profile)
					fmt.Printf("Member:  %s (%s)\n", resp.Alias, resp.Pub)
					started := time.Now().Add(-time.Duration(resp.UptimeMs) * time.Millisecond)
					fmt.Printf("Started: %s\n", humanize.Time(started))
					fmt.Printf("Groups:  %d\n", len(resp.Groups))
					for _, g := range resp.Groups {
						fmt.Printf("  %-44s %-24s %s\n", g.Pub, g.Name, g.Phase)
					}
				})
				return nil
			})
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		prefix string
		group  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			err = c.Watch(cmd.Context(), prefix, group, func(ev api.Event) error {
				opts.output(os.Stdout, ev, func() {
					ts := time.UnixMilli(ev.Timestamp).Format(time.TimeOnly)
					fmt.Printf("%s %-22s %s %v\n", ts, ev.Kind, ev.Group, ev.Payload)
				})
				return nil
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only show events whose kind starts with this prefix")
	cmd.Flags().StringVar(&group, "group", "", "only show events of this group")
	return cmd
}
