package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage an adapter's LLCP peer-service registry (§4.5)",
	}

	cmd.AddCommand(serviceListCmd())
	cmd.AddCommand(serviceRegisterCmd())
	cmd.AddCommand(serviceUnregisterCmd())

	return cmd
}

func serviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <adapter>",
		Short: "List registered peer services, sorted by SAP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			saps, names, err := client.Services(args[0])
			if err != nil {
				return fmt.Errorf("list services: %w", err)
			}
			out, err := formatServices(saps, names, outputFormat)
			if err != nil {
				return fmt.Errorf("format services: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func serviceRegisterCmd() *cobra.Command {
	var acceptor, originator bool

	cmd := &cobra.Command{
		Use:   "register <adapter> <name>",
		Short: "Register a named LLCP service, allocating a SAP",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sap, err := client.RegisterService(args[0], args[1], acceptor, originator)
			if err != nil {
				return fmt.Errorf("register service: %w", err)
			}
			fmt.Printf("%s registered at SAP %d\n", args[1], sap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&acceptor, "acceptor", true, "service can accept incoming LLCP connections")
	cmd.Flags().BoolVar(&originator, "originator", false, "service can originate LLCP connections")

	return cmd
}

func serviceUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <adapter> <name>",
		Short: "Unregister a peer service, releasing its SAP",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.UnregisterService(args[0], args[1]); err != nil {
				return fmt.Errorf("unregister service: %w", err)
			}
			fmt.Printf("%s unregistered\n", args[1])
			return nil
		},
	}
}
