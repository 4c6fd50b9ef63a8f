package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/version"
)

func buildImage(t *testing.T, versionID, variant string) []byte {
	t.Helper()
	set, ok := catalog.Default().Lookup(versionID, variant)
	require.True(t, ok)
	img := make([]byte, 0x80000)
	copy(img[version.Offset:], versionID)
	for _, m := range set.Modifications {
		copy(img[m.Offset:], m.Original)
	}
	return img
}

func TestRunApplyAndRevert(t *testing.T) {
	img := buildImage(t, "ca430037", "")
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	metrics := common.NewMetrics()
	opts := Options{File: "dme.bin", AuditLog: common.NewPatchLog(auditPath), Metrics: metrics}

	res, err := Run(img, ActionApply, opts)
	require.NoError(t, err)
	assert.Equal(t, "ca430037", res.Version)
	assert.Len(t, res.Logs, 3)
	assert.NotEqual(t, res.InputSHA, res.OutputSHA)
	for i := range res.Before {
		assert.Equal(t, patcher.StatusOriginal, res.Before[i].Status)
		assert.Equal(t, patcher.StatusPatched, res.After[i].Status)
	}

	res2, err := Run(img, ActionRevert, opts)
	require.NoError(t, err)
	assert.Equal(t, res.InputSHA, res2.OutputSHA)

	entries, err := common.ReadPatchLog(auditPath)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, "apply", entries[0].Action)
	assert.Equal(t, "Jump", entries[0].Name)
	assert.Equal(t, "da0b5a1c", entries[0].BeforeHex)
	assert.Equal(t, "da0d0c35", entries[0].AfterHex)
	assert.Equal(t, "revert", entries[5].Action)
	assert.Equal(t, "00", entries[5].BeforeHex)
	assert.Equal(t, "02", entries[5].AfterHex)
	assert.Equal(t, "dme.bin", entries[5].File)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Applied)
	assert.Equal(t, int64(1), snap.Reverted)
	assert.Equal(t, int64(0), snap.Failures)
}

func TestRunFailureLeavesImageAndLog(t *testing.T) {
	img := buildImage(t, "ca430066", "")
	img[0x600D8] = 0x00
	before := append([]byte(nil), img...)
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	metrics := common.NewMetrics()

	res, err := Run(img, ActionApply, Options{AuditLog: common.NewPatchLog(auditPath), Metrics: metrics})
	assert.Nil(t, res)
	var mismatch *patcher.ValidationMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, before, img)
	_, statErr := os.Stat(auditPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, int64(1), metrics.Snapshot().Failures)
}

func TestRunAmbiguousVariant(t *testing.T) {
	img := buildImage(t, "ca430056", "5WK90017")
	res, err := Run(img, ActionApply, Options{})
	require.NoError(t, err)
	assert.Equal(t, "5WK90015", res.Variant)
	assert.Equal(t, []string{"ca430056/5WK90015", "ca430056/5WK90017"}, res.Ambiguous)

	img = buildImage(t, "ca430056", "5WK90017")
	res, err = Run(img, ActionApply, Options{Variant: "5WK90017"})
	require.NoError(t, err)
	assert.Equal(t, "5WK90017", res.Variant)
	assert.Empty(t, res.Ambiguous)
}

func TestRunAuditFailureKeepsResult(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	img := buildImage(t, "ca430069", "")

	res, err := Run(img, ActionApply, Options{AuditLog: common.NewPatchLog(filepath.Join(blocker, "audit.jsonl"))})
	require.Error(t, err)
	assert.True(t, IsAuditError(err))
	require.NotNil(t, res)
	assert.Equal(t, patcher.StatusPatched, patcher.StateOf(img, res.Set))
}

func TestDetect(t *testing.T) {
	img := buildImage(t, "ca430069", "")
	det, err := Detect(img, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ca430069", det.Identifier)
	assert.True(t, det.Status.CanApply())
	assert.Len(t, det.States, 3)

	_, err = Detect(make([]byte, 16), Options{})
	assert.ErrorIs(t, err, version.ErrFileTooSmall)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("revert")
	require.NoError(t, err)
	assert.Equal(t, ActionRevert, a)
	_, err = ParseAction("partial")
	assert.Error(t, err)
}
