package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// isBytesParam reports whether id is the closed set's byte-sequence
// parameter (§3 "Parameter": T4_NDEF is bool, LA_NFCID1 is byte-sequence).
// nfcctl talks to the daemon purely over D-Bus and has no compiled-in
// knowledge of internal/param's ID type beyond this name, mirroring the
// daemon's own closed switch in param.ParseID.
func isBytesParam(id string) bool {
	return id == "LA_NFCID1"
}

func paramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Read and override adapter parameters (§4.2)",
	}

	cmd.AddCommand(paramGetCmd())
	cmd.AddCommand(paramSetCmd())
	cmd.AddCommand(paramReleaseCmd())

	return cmd
}

func paramGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <adapter> <param-id>",
		Short: "Read a parameter's effective value",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			boolVal, bytesVal, ok, err := client.GetParam(args[0], args[1])
			if err != nil {
				return fmt.Errorf("get param: %w", err)
			}
			if !ok {
				fmt.Printf("%s: no request overrides it on adapter %s (driver default)\n", args[1], args[0])
				return nil
			}
			if isBytesParam(args[1]) {
				fmt.Printf("%s=0x%s\n", args[1], hex.EncodeToString(bytesVal))
				return nil
			}
			fmt.Printf("%s=%v\n", args[1], boolVal)
			return nil
		},
	}
}

// paramSetCmd submits a parameter-request token. Boolean parameters take
// true/false pairs (§6: "Boolean parameters accept any truthy/falsy
// representation"); byte-sequence parameters take a 0x-prefixed hex string
// (an empty 0x means "unset", §6: "byte-sequence parameters accept empty
// arrays").
func paramSetCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "set <adapter> <id=value>...",
		Short: "Submit a parameter overlay request, returning a token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			adapterName := args[0]
			assignments := args[1:]
			if len(assignments) == 0 && !reset {
				return fmt.Errorf("at least one id=value assignment or --reset is required")
			}

			ids := make([]string, 0, len(assignments))
			bools := make([]bool, 0, len(assignments))
			byteValues := make([][]byte, 0, len(assignments))
			for _, a := range assignments {
				id, v, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("malformed assignment %q, expected id=value", a)
				}

				var boolVal bool
				var bytesVal []byte
				if isBytesParam(id) {
					raw, found := strings.CutPrefix(v, "0x")
					if !found {
						return fmt.Errorf("parse value for %s: expected 0x-prefixed hex, got %q", id, v)
					}
					decoded, err := hex.DecodeString(raw)
					if err != nil {
						return fmt.Errorf("parse hex value for %s: %w", id, err)
					}
					bytesVal = decoded
				} else {
					value, err := parseBoolArg(v)
					if err != nil {
						return fmt.Errorf("parse value for %s: %w", id, err)
					}
					boolVal = value
				}

				ids = append(ids, id)
				bools = append(bools, boolVal)
				byteValues = append(byteValues, bytesVal)
			}

			token, err := client.SubmitParamRequest(adapterName, ids, bools, byteValues, reset)
			if err != nil {
				return fmt.Errorf("submit param request: %w", err)
			}
			fmt.Printf("token=%d\n", token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "clear all lower-priority requests' contributions first")

	return cmd
}

func paramReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <adapter> <token>",
		Short: "Release a previously submitted parameter request token",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			var token uint64
			if _, err := fmt.Sscanf(args[1], "%d", &token); err != nil {
				return fmt.Errorf("parse token %q: %w", args[1], err)
			}
			if err := client.ReleaseParamToken(args[0], token); err != nil {
				return fmt.Errorf("release param token: %w", err)
			}
			fmt.Printf("token %d released\n", token)
			return nil
		},
	}
}
