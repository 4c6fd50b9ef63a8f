package smoke

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/version"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func writeImage(t *testing.T, path, versionID string) {
	t.Helper()
	set, ok := catalog.Default().Lookup(versionID, "")
	if !ok {
		t.Fatalf("no catalog set %s", versionID)
	}
	img := make([]byte, 0x80000)
	copy(img[version.Offset:], versionID)
	for _, m := range set.Modifications {
		copy(img[m.Offset:], m.Original)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func dmepatch(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	cmd := exec.Command("go", append([]string{"run", "./cmd/dmepatch"}, args...)...)
	cmd.Dir = repoRoot(t)
	return cmd.CombinedOutput()
}

func TestCLIApplyRevert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping CLI smoke test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}
	tmp := t.TempDir()
	input := filepath.Join(tmp, "dme.bin")
	patched := filepath.Join(tmp, "dme_mod.bin")
	restored := filepath.Join(tmp, "dme_restored.bin")
	pdf := filepath.Join(tmp, "session.pdf")
	manifestPath := filepath.Join(tmp, "manifest.json")
	writeImage(t, input, "ca430037")

	output, err := dmepatch(t, "apply", input, "-o", patched, "--report", pdf, "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, output)
	}
	for _, want := range []string{"Detected version: ca430037", "Applied DTC patch at offset 0x7099B", "Success"} {
		if !bytes.Contains(output, []byte(want)) {
			t.Fatalf("apply output missing %q:\n%s", want, output)
		}
	}
	for _, p := range []string{patched, pdf, manifestPath, patched + ".audit.jsonl"} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}

	output, err = dmepatch(t, "apply", patched, "-o", filepath.Join(tmp, "twice.bin"))
	if err == nil {
		t.Fatalf("expected second apply to fail\n%s", output)
	}
	if !bytes.Contains(output, []byte("validation failed")) {
		t.Fatalf("unexpected output for second apply:\n%s", output)
	}

	output, err = dmepatch(t, "revert", patched, "-o", restored, "--no-audit")
	if err != nil {
		t.Fatalf("revert failed: %v\n%s", err, output)
	}
	want, _, err := common.Sha256OfFile(input)
	if err != nil {
		t.Fatalf("hash input: %v", err)
	}
	got, _, err := common.Sha256OfFile(restored)
	if err != nil {
		t.Fatalf("hash restored: %v", err)
	}
	if got != want {
		t.Fatalf("restored image differs from input: %s != %s", got, want)
	}
}
