package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/manifest"
	"example.com/dmepatch/internal/report"
	"example.com/dmepatch/internal/session"
)

var (
	modifyOutput   string
	modifyBackup   bool
	modifyReport   string
	modifyManifest string
	modifyAudit    string
	modifyNoAudit  bool
	modifyDryRun   bool
)

func init() {
	rootCmd.AddCommand(newModifyCmd(session.ActionApply,
		"Apply the modification set to an unpatched image",
		`The apply command detects the firmware version, checks that every
modification site still holds the original bytes and writes the patched
image to a new file. The input file is never modified.

Example:
  dmepatch apply dme.bin
  dmepatch apply dme.bin -o dme_mod.bin --report dme_mod.pdf`))
	rootCmd.AddCommand(newModifyCmd(session.ActionRevert,
		"Restore the original bytes of a patched image",
		`The revert command checks that every modification site holds the
patched bytes and writes an image with the original bytes restored.

Example:
  dmepatch revert dme_patched.bin -o dme.bin`))
}

func newModifyCmd(action session.Action, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <image>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModify(action, args)
		},
	}
	cmd.Flags().StringVarP(&modifyOutput, "output", "o", "", "Output image (default <name>_"+pastTense(action)+"<ext>)")
	cmd.Flags().BoolVar(&modifyBackup, "backup", false, "Copy the input to <image>.bak first")
	cmd.Flags().StringVar(&modifyReport, "report", "", "Write a session report (.pdf for PDF, JSON otherwise)")
	cmd.Flags().StringVar(&modifyManifest, "manifest", "", "Write a manifest with hashes of all produced files")
	cmd.Flags().StringVar(&modifyAudit, "audit", "", "Audit log (default <output>.audit.jsonl)")
	cmd.Flags().BoolVar(&modifyNoAudit, "no-audit", false, "Do not write an audit log")
	cmd.Flags().BoolVar(&modifyDryRun, "dry-run", false, "Validate and report without writing any file")
	return cmd
}

func pastTense(action session.Action) string {
	if action == session.ActionRevert {
		return "reverted"
	}
	return "patched"
}

func defaultOutput(input string, action session.Action) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	return stem + "_" + pastTense(action) + ext
}

func auditPath(output string) string {
	switch {
	case modifyNoAudit || modifyDryRun:
		return ""
	case modifyAudit != "":
		return modifyAudit
	case cfg.AuditLog != "":
		return cfg.AuditLog
	}
	return output + ".audit.jsonl"
}

func runModify(action session.Action, args []string) error {
	input := args[0]
	data, err := readImage(input)
	if err != nil {
		return err
	}
	output := modifyOutput
	if output == "" {
		output = defaultOutput(input, action)
	}
	if filepath.Clean(output) == filepath.Clean(input) {
		return fmt.Errorf("output %s would overwrite the input image", output)
	}

	opts := session.Options{Catalog: currentCatalog(), Variant: variant, File: filepath.Base(input)}
	audit := auditPath(output)
	if audit != "" {
		opts.AuditLog = common.NewPatchLog(audit)
	}

	res, err := session.Run(data, action, opts)
	if res == nil {
		common.Logf("%s %s failed: %v", action, input, err)
		return fmt.Errorf("%s failed: %w", action, err)
	}
	auditErr := err

	if !jsonOut {
		printInfo("Detected version: %s\n", res.Set.Key())
		if len(res.Ambiguous) > 1 {
			printInfo("Warning: version matches %s; using %s (choose with --variant)\n", strings.Join(res.Ambiguous, ", "), res.Set.Key())
		}
		for _, line := range res.Logs {
			printInfo("%s\n", line)
		}
	}
	if modifyDryRun {
		if jsonOut {
			return printJSON(res)
		}
		printInfo("Dry run: %s would be written.\n", output)
		return nil
	}

	if modifyBackup {
		bak := input + ".bak"
		if err := common.CopyFile(input, bak); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		printVerbose("Backup written to %s\n", bak)
	}
	if err := common.WriteFileAtomic(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	common.Logf("%s %s -> %s sha256=%s", action, input, output, res.OutputSHA)

	if auditErr != nil {
		printError("%v\n", auditErr)
		audit = ""
	}
	if err := writeArtifacts(res, input, output, audit); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Success: %s image saved to %s\n", pastTense(action), output)
	return nil
}

func writeArtifacts(res *session.Result, input, output, audit string) error {
	if modifyReport != "" {
		var err error
		if strings.EqualFold(filepath.Ext(modifyReport), ".pdf") {
			err = report.SaveSessionPDF(res, modifyReport)
		} else {
			err = report.SaveSessionJSON(res, modifyReport)
		}
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		printVerbose("Report written to %s\n", modifyReport)
	}
	if modifyManifest == "" {
		return nil
	}
	entries := []manifest.Entry{
		{Path: input, Role: "input"},
		{Path: output, Role: "output"},
		{Path: audit, Role: "audit"},
		{Path: modifyReport, Role: "report"},
	}
	if modifyBackup {
		entries = append(entries, manifest.Entry{Path: input + ".bak", Role: "backup"})
	}
	m, err := manifest.Build(entries)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	m.Version, m.Variant = res.Version, res.Variant
	if err := manifest.Save(m, modifyManifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	printVerbose("Manifest written to %s\n", modifyManifest)
	return nil
}
