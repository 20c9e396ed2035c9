package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// modeBits maps each mode bit to its config-file spelling (see
// internal/config.ModeNames), used to render a bitmask as a readable list.
var modeBits = []struct {
	bit  uint32
	name string
}{
	{1 << 0, "reader-writer"},
	{1 << 1, "card-emulation"},
	{1 << 2, "peer-initiator"},
	{1 << 3, "peer-target"},
}

func modeNames(mask uint32) string {
	var names []string
	for _, m := range modeBits {
		if mask&m.bit != 0 {
			names = append(names, m.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func parseModeMask(spec string) (uint32, error) {
	if spec == "" {
		return 0, nil
	}
	var mask uint32
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for _, m := range modeBits {
			if m.name == part {
				mask |= m.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown mode %q", part)
		}
	}
	return mask, nil
}

func formatAdapters(snaps []AdapterSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(snaps, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal adapters to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENABLED\tPOWERED\tMODE\tTARGET-PRESENT\tTAGS\tPEERS\tHOSTS")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%v\t%d\t%d\t%d\n",
				s.Name, s.Enabled, s.Powered, modeNames(s.Mode), s.TargetPresent,
				len(s.Tags), len(s.Peers), len(s.Hosts))
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatAdapter(s AdapterSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal adapter to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", s.Name)
		fmt.Fprintf(w, "Enabled:\t%v\n", s.Enabled)
		fmt.Fprintf(w, "Powered:\t%v\n", s.Powered)
		fmt.Fprintf(w, "Mode:\t%s\n", modeNames(s.Mode))
		fmt.Fprintf(w, "Supported Modes:\t%s\n", modeNames(s.SupportedModes))
		fmt.Fprintf(w, "Target Present:\t%v\n", s.TargetPresent)
		fmt.Fprintf(w, "Tags:\t%s\n", strings.Join(s.Tags, ", "))
		fmt.Fprintf(w, "Peers:\t%s\n", strings.Join(s.Peers, ", "))
		fmt.Fprintf(w, "Hosts:\t%s\n", strings.Join(s.Hosts, ", "))
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatServices(saps []byte, names []string, format string) (string, error) {
	type serviceView struct {
		SAP  byte   `json:"sap"`
		Name string `json:"name"`
	}
	views := make([]serviceView, len(names))
	for i := range names {
		views[i] = serviceView{SAP: saps[i], Name: names[i]}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SAP < views[j].SAP })

	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal services to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SAP\tNAME")
		for _, v := range views {
			fmt.Fprintf(w, "%d\t%s\n", v.SAP, v.Name)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
