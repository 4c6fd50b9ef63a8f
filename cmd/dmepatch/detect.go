package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/session"
)

func init() {
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDiffCmd())
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <image>",
		Short: "Identify the firmware version of an image",
		Long: `The detect command reads the version tag at 0x70040 and matches it
against the catalog.

Example:
  dmepatch detect dme.bin
  dmepatch detect dme.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(args)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <image>",
		Short: "Show whether each modification site is original or patched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args)
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <image>",
		Short: "Show original, patched and current bytes of each modification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args)
		},
	}
}

func detectImage(path string) ([]byte, *session.Detection, error) {
	data, err := readImage(path)
	if err != nil {
		return nil, nil, err
	}
	det, err := session.Detect(data, session.Options{Catalog: currentCatalog(), Variant: variant})
	if err != nil {
		return nil, nil, fmt.Errorf("version detection failed: %w", err)
	}
	common.Logf("%s: version %s jump=%s code=%s dtc=%s", path, det.Set.Key(), det.Status.Jump, det.Status.Code, det.Status.DTC)
	return data, det, nil
}

func runDetect(args []string) error {
	_, det, err := detectImage(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		candidates := make([]string, len(det.Candidates))
		for i, c := range det.Candidates {
			candidates[i] = c.Key().String()
		}
		return printJSON(struct {
			Identifier string   `json:"identifier"`
			Version    string   `json:"version"`
			Variant    string   `json:"variant,omitempty"`
			Candidates []string `json:"candidates"`
		}{det.Identifier, det.Set.VersionID, det.Set.HardwareVariant, candidates})
	}
	printInfo("Detected version: %s\n", det.Set.VersionID)
	if det.Set.HardwareVariant != "" {
		printInfo("Hardware variant: %s\n", det.Set.HardwareVariant)
	}
	printVerbose("Version tag: %q\n", det.Identifier)
	warnAmbiguous(det)
	return nil
}

func warnAmbiguous(det *session.Detection) {
	if len(det.Candidates) < 2 || variant != "" {
		return
	}
	keys := make([]string, len(det.Candidates))
	for i, c := range det.Candidates {
		keys[i] = c.Key().String()
	}
	printInfo("Warning: version matches %s; using %s (choose with --variant)\n", strings.Join(keys, ", "), det.Set.Key())
}

func runStatus(args []string) error {
	data, det, err := detectImage(args[0])
	if err != nil {
		return err
	}
	state := patcher.StateOf(data, det.Set)
	if jsonOut {
		return printJSON(struct {
			Version   string                      `json:"version"`
			Variant   string                      `json:"variant,omitempty"`
			Roles     patcher.SetStatus           `json:"roles"`
			State     patcher.Status              `json:"state"`
			CanApply  bool                        `json:"canApply"`
			CanRevert bool                        `json:"canRevert"`
			Sites     []patcher.ModificationState `json:"sites"`
		}{det.Set.VersionID, det.Set.HardwareVariant, det.Status, state, det.Status.CanApply(), det.Status.CanRevert(), det.States})
	}
	printInfo("Detected version: %s\n", det.Set.Key())
	warnAmbiguous(det)
	printInfo("Patch status:\n")
	for _, st := range det.States {
		printInfo("  %s %s Patch (0x%X) %s\n", st.Status.Symbol(), st.Name, st.Offset, st.Status)
	}
	switch {
	case det.Status.CanApply():
		printInfo("Image is unpatched; apply is possible.\n")
	case det.Status.CanRevert():
		printInfo("Image is patched; revert is possible.\n")
	default:
		printInfo("Image is in an unknown state; neither apply nor revert is possible.\n")
	}
	return nil
}

func runDiff(args []string) error {
	data, det, err := detectImage(args[0])
	if err != nil {
		return err
	}
	entries := patcher.Diff(data, det.Set)
	if jsonOut {
		return printJSON(entries)
	}
	for _, e := range entries {
		printInfo("Diff for '%s' at offset 0x%X (%s)\n", e.Name, e.Offset, e.Status)
		printInfo("  Original: %s\n", e.Original)
		printInfo("  Patched:  %s\n", e.Patched)
		printInfo("  Current:  %s\n", e.Current)
	}
	return nil
}
