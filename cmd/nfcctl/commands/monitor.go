package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream adapter and daemon signals",
		Long:  "Connects to the nfcd daemon and streams D-Bus signals until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			signals, err := client.WatchSignals()
			if err != nil {
				return fmt.Errorf("watch signals: %w", err)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case sig, ok := <-signals:
					if !ok {
						return nil
					}
					fmt.Println(formatSignal(sig))
				}
			}
		},
	}
}

// formatSignal renders one D-Bus signal as a single line: timestamp,
// emitting object, member name, and its arguments.
func formatSignal(sig *dbus.Signal) string {
	member := sig.Name
	if idx := strings.LastIndex(member, "."); idx >= 0 {
		member = member[idx+1:]
	}

	args := make([]string, len(sig.Body))
	for i, a := range sig.Body {
		args[i] = fmt.Sprintf("%v", a)
	}

	return fmt.Sprintf("[%s] %s %s(%s)",
		time.Now().Format(time.RFC3339), sig.Path, member, strings.Join(args, ", "))
}
