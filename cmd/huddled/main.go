package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/daemon"
	"github.com/matheus3301/huddle/internal/profile"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		profileFlag string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:           "huddled",
		Short:         "huddle replication daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(profile.EnvPath()); err != nil {
				return fmt.Errorf("load %s: %w", profile.EnvPath(), err)
			}
			cfg, err := config.LoadOrDefault(profile.ConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.ApplyEnv()

			name := profileFlag
			if name == "" {
				name = cfg.DefaultProfile
			}
			if name == "" {
				name = profile.DefaultName
			}
			if err := profile.ValidateName(name); err != nil {
				return err
			}

			fx.New(daemon.Module(daemon.Params{
				Profile: name,
				Config:  cfg,
				Debug:   debug,
			})).Run()
			return nil
		},
	}

	cmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	cmd.Flags().BoolVar(&debug, "debug", false, "write debug entries to the log file")
	return cmd
}
