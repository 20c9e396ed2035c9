// Package commands implements the nfcctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client is the D-Bus client, initialized in PersistentPreRunE.
	client *busClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// busName is the D-Bus well-known name the daemon owns.
	busName string

	// busType selects "system" or "session".
	busType string
)

// rootCmd is the top-level cobra command for nfcctl.
var rootCmd = &cobra.Command{
	Use:   "nfcctl",
	Short: "CLI client for the nfcd daemon",
	Long:  "nfcctl communicates with the nfcd daemon over D-Bus to inspect and control NFC adapters.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		c, err := dialBus(busType, busName)
		if err != nil {
			return err
		}
		client = c
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if client != nil {
			return client.Close()
		}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&busName, "bus-name", "org.sailfishos.nfc.daemon",
		"nfcd D-Bus well-known name")
	rootCmd.PersistentFlags().StringVar(&busType, "bus", "system",
		"D-Bus bus to connect to: system or session")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(adapterCmd())
	rootCmd.AddCommand(paramCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(modeCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
