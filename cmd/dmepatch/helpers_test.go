package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/config"
	"example.com/dmepatch/internal/version"
)

// resetFlags restores every global flag to its default.
func resetFlags(t *testing.T) {
	t.Helper()
	quiet, verbose, jsonOut = false, false, false
	configPath, catalogPath, variant = "", "", ""
	cfg = config.Config{}
	activeCat = nil
	modifyOutput, modifyReport, modifyManifest, modifyAudit = "", "", "", ""
	modifyBackup, modifyNoAudit, modifyDryRun = false, false, false
}

// writeImage writes an unpatched image for the given catalog set and returns its path.
func writeImage(t *testing.T, dir, versionID, hwVariant string) string {
	t.Helper()
	set, ok := catalog.Default().Lookup(versionID, hwVariant)
	require.True(t, ok, "no set %s/%s", versionID, hwVariant)
	img := make([]byte, 0x80000)
	copy(img[version.Offset:], versionID)
	for _, m := range set.Modifications {
		copy(img[m.Offset:], m.Original)
	}
	path := filepath.Join(dir, versionID+".bin")
	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return buf.String(), fnErr
}
