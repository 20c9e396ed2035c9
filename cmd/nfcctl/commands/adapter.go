package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errAdapterNameRequired indicates a subcommand was invoked without the
// required adapter name argument.
var errAdapterNameRequired = errors.New("adapter name is required")

func adapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapter",
		Short: "Inspect and control NFC adapters",
	}

	cmd.AddCommand(adapterListCmd())
	cmd.AddCommand(adapterShowCmd())
	cmd.AddCommand(adapterEnableCmd())
	cmd.AddCommand(adapterPowerCmd())
	cmd.AddCommand(adapterModeCmd())

	return cmd
}

// --- adapter list ---

func adapterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered adapters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			names, err := client.AdapterNames()
			if err != nil {
				return fmt.Errorf("list adapters: %w", err)
			}

			snaps := make([]AdapterSnapshot, 0, len(names))
			for _, name := range names {
				snap, err := client.Snapshot(name)
				if err != nil {
					return fmt.Errorf("snapshot adapter %s: %w", name, err)
				}
				snaps = append(snaps, snap)
			}

			out, err := formatAdapters(snaps, outputFormat)
			if err != nil {
				return fmt.Errorf("format adapters: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// --- adapter show ---

func adapterShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of one adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			snap, err := client.Snapshot(args[0])
			if err != nil {
				return fmt.Errorf("show adapter: %w", err)
			}

			out, err := formatAdapter(snap, outputFormat)
			if err != nil {
				return fmt.Errorf("format adapter: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// --- adapter enable ---

func adapterEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name> <true|false>",
		Short: "Administratively enable or disable an adapter (§4.3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			enabled, err := parseBoolArg(args[1])
			if err != nil {
				return err
			}
			if err := client.SetEnabled(args[0], enabled); err != nil {
				return fmt.Errorf("set enabled: %w", err)
			}
			fmt.Printf("adapter %s enabled=%v\n", args[0], enabled)
			return nil
		},
	}
}

// --- adapter power ---

func adapterPowerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "power <name> <on|off>",
		Short: "Request that an adapter be powered on or off (§4.3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			var requested bool
			switch args[1] {
			case "on":
				requested = true
			case "off":
				requested = false
			default:
				return fmt.Errorf("power request must be %q or %q, got %q", "on", "off", args[1])
			}
			if err := client.RequestPower(args[0], requested); err != nil {
				return fmt.Errorf("request power: %w", err)
			}
			fmt.Printf("adapter %s power_requested=%v\n", args[0], requested)
			return nil
		},
	}
}

// --- adapter mode ---

func adapterModeCmd() *cobra.Command {
	var enable, disable string

	cmd := &cobra.Command{
		Use:   "mode <name>",
		Short: "Contribute enable/disable mode bits to an adapter's requested mode (§4.3)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errAdapterNameRequired
			}

			enableMask, err := parseModeMask(enable)
			if err != nil {
				return fmt.Errorf("parse --enable: %w", err)
			}
			disableMask, err := parseModeMask(disable)
			if err != nil {
				return fmt.Errorf("parse --disable: %w", err)
			}

			effective, err := client.RequestMode(args[0], enableMask, disableMask)
			if err != nil {
				return fmt.Errorf("request mode: %w", err)
			}
			fmt.Printf("adapter %s requested mode now %s\n", args[0], modeNames(effective))
			return nil
		},
	}

	cmd.Flags().StringVar(&enable, "enable", "", "comma-separated modes to enable (reader-writer,card-emulation,peer-initiator,peer-target)")
	cmd.Flags().StringVar(&disable, "disable", "", "comma-separated modes to disable")

	return cmd
}

func parseBoolArg(s string) (bool, error) {
	switch s {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %q", s)
	}
}
