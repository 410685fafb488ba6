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

func newVoteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <group>",
		Short: "Vote to clear the history of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				return c.Vote(ctx, args[0])
			})
		},
	}
}

func newUnvoteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unvote <group>",
		Short: "Retract your clear vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				return c.CancelVote(ctx, args[0])
			})
		},
	}
}

func newTallyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tally <group>",
		Short: "Show clear votes of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				t, err := c.Tally(ctx, args[0])
				if err != nil {
					return err
				}
				opts.output(os.Stdout, t, func() {
					fmt.Printf("%d of %d members agreed (clear allowed: %t)\n", t.Agreed, t.Members, t.CanClear)
					for _, v := range t.Votes {
						fmt.Printf("  %-44s %t\n", v.Voter, v.Agreed)
					}
					if t.LastClearBy != "" {
						fmt.Printf("Last cleared by %s %s\n", t.LastClearBy, humanize.Time(time.UnixMilli(t.LastClearAt)))
					}
				})
				return nil
			})
		},
	}
}

func newClearCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <group>",
		Short: "Clear group history once every member agreed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.InitiateClear(ctx, args[0]); err != nil {
					return err
				}
				opts.output(os.Stdout, map[string]string{"cleared": args[0]}, func() {
					fmt.Printf("Cleared %s\n", args[0])
				})
				return nil
			})
		},
	}
}
