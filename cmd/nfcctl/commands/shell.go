package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"adapter list", "List all registered adapters"},
	{"adapter show <name>", "Show details of one adapter"},
	{"adapter enable <name> <true|false>", "Administratively enable/disable an adapter"},
	{"adapter power <name> <on|off>", "Request power on/off"},
	{"adapter mode <name> --enable ... --disable ...", "Contribute to an adapter's requested mode"},
	{"param get <adapter> <id>", "Read a parameter's effective value"},
	{"param set <adapter> <id=value>...", "Submit a parameter overlay request"},
	{"param release <adapter> <token>", "Release a parameter request token"},
	{"service list <adapter>", "List registered peer services"},
	{"service register <adapter> <name>", "Register a peer service"},
	{"service unregister <adapter> <name>", "Unregister a peer service"},
	{"monitor", "Stream adapter and daemon signals"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive nfcctl shell",
		Long:  "Launches a simple REPL that accepts nfcctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("nfcctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					args := strings.Fields(line)
					rootCmd.SetArgs(args)

					if err := rootCmd.Execute(); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("nfcctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			return nil
		},
	}
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("nfcd interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-46s %s\n", cmd.name, cmd.desc)
	}

	fmt.Println()
}
