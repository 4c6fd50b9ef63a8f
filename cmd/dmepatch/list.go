package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/dmepatch/internal/catalog"
)

func init() {
	rootCmd.AddCommand(newListCmd())
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the supported firmware versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
}

type setView struct {
	Version       string             `json:"version"`
	Variant       string             `json:"variant,omitempty"`
	Modifications []modificationView `json:"modifications"`
}

type modificationView struct {
	Name     string `json:"name"`
	Offset   string `json:"offset"`
	Original string `json:"original"`
	Patched  string `json:"patched"`
}

func viewOf(s catalog.ModificationSet) setView {
	v := setView{Version: s.VersionID, Variant: s.HardwareVariant}
	for _, m := range s.Modifications {
		v.Modifications = append(v.Modifications, modificationView{
			Name:     m.Name,
			Offset:   fmt.Sprintf("0x%X", m.Offset),
			Original: fmt.Sprintf("%X", m.Original),
			Patched:  fmt.Sprintf("%X", m.Patched),
		})
	}
	return v
}

func runList() error {
	sets := currentCatalog().All()
	if jsonOut {
		views := make([]setView, len(sets))
		for i, s := range sets {
			views[i] = viewOf(s)
		}
		return printJSON(views)
	}
	if quiet {
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tVARIANT\tMODIFICATIONS")
	for _, s := range sets {
		parts := make([]string, len(s.Modifications))
		for i, m := range s.Modifications {
			parts[i] = fmt.Sprintf("%s@0x%X", m.Name, m.Offset)
		}
		v := s.HardwareVariant
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.VersionID, v, strings.Join(parts, ", "))
	}
	return tw.Flush()
}
