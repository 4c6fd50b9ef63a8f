package common

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "patch.jsonl")
	pl := NewPatchLog(path)
	require.Equal(t, path, pl.Path())

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pl.Append(
		PatchEntry{Action: "apply", Version: "ca430037", Name: "Jump", Offset: 0x54E8C, BeforeHex: "da0b5a1c", AfterHex: "da0d0c35", Ts: ts},
		PatchEntry{Action: "apply", Version: "ca430037", Name: "DTC", Offset: 0x7099B, BeforeHex: "02", AfterHex: "00"},
	))
	require.NoError(t, pl.Append(PatchEntry{Action: "revert", Version: "ca430037", Name: "DTC", Offset: 0x7099B, BeforeHex: "00", AfterHex: "02"}))

	entries, err := ReadPatchLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ts, entries[0].Ts)
	assert.False(t, entries[1].Ts.IsZero())
	assert.Equal(t, "revert", entries[2].Action)

	before, err := entries[0].BeforeBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDA, 0x0B, 0x5A, 0x1C}, before)
	after, err := entries[0].AfterBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDA, 0x0D, 0x0C, 0x35}, after)
}

func TestPatchLogRejectsIncompleteEntry(t *testing.T) {
	pl := NewPatchLog(filepath.Join(t.TempDir(), "patch.jsonl"))
	assert.Error(t, pl.Append(PatchEntry{Action: "apply"}))
	var nilLog *PatchLog
	assert.Error(t, nilLog.Append(PatchEntry{Action: "apply", Name: "x"}))
	assert.Equal(t, "", nilLog.Path())
}

func TestWriteFileAtomicAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "image.bin")
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, WriteFileAtomic(path, data, 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	sum, size, err := Sha256OfFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, Sha256Hex(data), sum)

	cp := filepath.Join(dir, "backup", "image.bin.bak")
	require.NoError(t, CopyFile(path, cp))
	got, err = os.ReadFile(cp)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	leftovers, err := filepath.Glob(filepath.Join(dir, "out", ".image.bin.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSetupLoggingWritesFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	closer, err := SetupLogging(LogConfig{Directory: dir, MaxSizeMB: 1}, "test", &console)
	require.NoError(t, err)
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		log.SetOutput(os.Stderr)
	})

	Logf("detected %s", "ca430037")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[dmepatch] "))
	assert.Contains(t, string(data), "detected ca430037")
	assert.Contains(t, console.String(), "detected ca430037")

	closer, err = SetupLogging(LogConfig{}, "unused", nil)
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
