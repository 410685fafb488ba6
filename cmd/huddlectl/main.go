package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/huddle/internal/client"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/profile"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Profile string
	JSON    bool
	Timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "huddlectl",
		Short:         "Control a running huddle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Profile = profile.Resolve(opts.Profile)
			return profile.ValidateName(opts.Profile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "profile name (overrides config default)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(
		newStatusCommand(opts),
		newWatchCommand(opts),
		newGroupsCommand(opts),
		newCreateCommand(opts),
		newJoinCommand(opts),
		newMembersCommand(opts),
		newRenameCommand(opts),
		newLeaveCommand(opts),
		newReadCommand(opts),
		newSendCommand(opts),
		newHistoryCommand(opts),
		newMoreCommand(opts),
		newUnfocusCommand(opts),
		newResendCommand(opts),
		newVoteCommand(opts),
		newUnvoteCommand(opts),
		newTallyCommand(opts),
		newClearCommand(opts),
	)
	return cmd
}

// connect dials the daemon of the selected profile.
func (o *rootOptions) connect() (*client.Client, error) {
	dir := profile.Dir(o.Profile)
	if _, err := os.Stat(profile.SocketPath(o.Profile)); err != nil {
		if pid := lock.Holder(dir); pid != 0 {
			return nil, fmt.Errorf("daemon for profile %q (PID %d) has no socket yet", o.Profile, pid)
		}
		return nil, fmt.Errorf("no daemon running for profile %q; start huddled --profile %s", o.Profile, o.Profile)
	}
	c, err := client.New(profile.SocketPath(o.Profile))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for profile %q: %w", o.Profile, err)
	}
	return c, nil
}

// run executes fn against the daemon with the request timeout applied.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := o.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()
	return fn(ctx, c)
}

// output prints v as JSON when --json is set, and calls text otherwise.
func (o *rootOptions) output(w io.Writer, v any, text func()) {
	if o.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	text()
}
