package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// modeCmd exposes the manager's cross-adapter mode stack (§4.6), distinct
// from "adapter mode" which contributes to one adapter's own aggregation.
func modeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Contribute to the daemon's cross-adapter mode stack (§4.6)",
	}

	cmd.AddCommand(modeRequestCmd())
	cmd.AddCommand(modeReleaseCmd())

	return cmd
}

func modeRequestCmd() *cobra.Command {
	var enable, disable string

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request enable/disable mode bits, returning a token and the new effective mode",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			enableMask, err := parseModeMask(enable)
			if err != nil {
				return fmt.Errorf("parse --enable: %w", err)
			}
			disableMask, err := parseModeMask(disable)
			if err != nil {
				return fmt.Errorf("parse --disable: %w", err)
			}

			token, next, err := client.RequestDaemonMode(enableMask, disableMask)
			if err != nil {
				return fmt.Errorf("request mode: %w", err)
			}
			fmt.Printf("token=%d effective_mode=%s\n", token, modeNames(next))
			return nil
		},
	}

	cmd.Flags().StringVar(&enable, "enable", "", "comma-separated modes to enable (reader-writer,card-emulation,peer-initiator,peer-target)")
	cmd.Flags().StringVar(&disable, "disable", "", "comma-separated modes to disable")

	return cmd
}

func modeReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <token>",
		Short: "Release a previously requested mode token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var token uint64
			if _, err := fmt.Sscanf(args[0], "%d", &token); err != nil {
				return fmt.Errorf("parse token %q: %w", args[0], err)
			}
			if err := client.ReleaseDaemonModeToken(token); err != nil {
				return fmt.Errorf("release mode token: %w", err)
			}
			fmt.Printf("token %d released\n", token)
			return nil
		},
	}
}
