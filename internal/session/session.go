// Package session runs one detect-and-modify pass over an in-memory firmware
// image and records what changed.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/patcher"
	"example.com/dmepatch/internal/version"
)

// Action names the change a Run makes to an image.
type Action string

const (
	ActionApply  Action = "apply"
	ActionRevert Action = "revert"
)

// ParseAction accepts "apply" or "revert".
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApply, ActionRevert:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Options selects the catalog and variant for a pass and where its audit
// entries and counters go.
type Options struct {
	Catalog *catalog.Catalog
	// Variant picks a hardware variant when a version exists in several.
	Variant string
	// File names the image in audit entries.
	File     string
	AuditLog *common.PatchLog
	Metrics  *common.Metrics
}

// Result describes a completed pass.
type Result struct {
	Action    Action                      `json:"action"`
	File      string                      `json:"file,omitempty"`
	Set       catalog.ModificationSet     `json:"-"`
	Version   string                      `json:"version"`
	Variant   string                      `json:"variant,omitempty"`
	Ambiguous []string                    `json:"ambiguous,omitempty"`
	Logs      []string                    `json:"logs"`
	Before    []patcher.ModificationState `json:"before"`
	After     []patcher.ModificationState `json:"after"`
	Entries   []common.PatchEntry         `json:"-"`
	InputSHA  string                      `json:"inputSha256"`
	OutputSHA string                      `json:"outputSha256"`
	Size      int                         `json:"size"`
	Ts        time.Time                   `json:"ts"`
}

// Detection is the outcome of identifying an image without changing it.
type Detection struct {
	Set        catalog.ModificationSet
	Identifier string
	Candidates []catalog.ModificationSet
	Status     patcher.SetStatus
	States     []patcher.ModificationState
}

// Detect identifies image and evaluates every modification of the matched set.
func Detect(image []byte, opts Options) (*Detection, error) {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	id, err := version.ReadIdentifier(image)
	if err != nil {
		return nil, err
	}
	candidates, err := version.Candidates(image, cat)
	if err != nil {
		return nil, err
	}
	set, err := version.DetectVariant(image, cat, opts.Variant)
	if err != nil {
		return nil, err
	}
	return &Detection{
		Set:        set,
		Identifier: id,
		Candidates: candidates,
		Status:     patcher.StatusOfSet(image, set),
		States:     patcher.States(image, set),
	}, nil
}

// Run detects image and applies or reverts the matched set in place. When the
// returned error is not an *AuditError the result is nil and image is unchanged.
func Run(image []byte, action Action, opts Options) (*Result, error) {
	opts.Metrics.AddImage(int64(len(image)))
	res, err := run(image, action, opts)
	if res == nil {
		opts.Metrics.IncFailure()
		return nil, err
	}
	switch action {
	case ActionApply:
		opts.Metrics.IncApplied()
	case ActionRevert:
		opts.Metrics.IncReverted()
	}
	return res, err
}

func run(image []byte, action Action, opts Options) (*Result, error) {
	det, err := Detect(image, opts)
	if err != nil {
		return nil, err
	}
	set := det.Set
	res := &Result{
		Action:   action,
		File:     opts.File,
		Set:      set,
		Version:  set.VersionID,
		Variant:  set.HardwareVariant,
		Before:   det.States,
		InputSHA: common.Sha256Hex(image),
		Size:     len(image),
		Ts:       time.Now().UTC(),
	}
	if len(det.Candidates) > 1 && opts.Variant == "" {
		for _, c := range det.Candidates {
			res.Ambiguous = append(res.Ambiguous, c.Key().String())
		}
	}

	switch action {
	case ActionApply:
		res.Logs, err = patcher.Apply(image, set)
	case ActionRevert:
		res.Logs, err = patcher.Revert(image, set)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}
	res.After = patcher.States(image, set)
	res.OutputSHA = common.Sha256Hex(image)
	res.Entries = auditEntries(res, set)

	if opts.AuditLog != nil {
		if err := opts.AuditLog.Append(res.Entries...); err != nil {
			return res, &AuditError{Err: err}
		}
	}
	return res, nil
}

// AuditError is returned together with a valid Result when the image was
// modified but the audit log could not be written.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string { return "write audit log: " + e.Err.Error() }

func (e *AuditError) Unwrap() error { return e.Err }

// IsAuditError reports whether err only concerns the audit log.
func IsAuditError(err error) bool {
	var ae *AuditError
	return errors.As(err, &ae)
}

func auditEntries(res *Result, set catalog.ModificationSet) []common.PatchEntry {
	entries := make([]common.PatchEntry, 0, len(set.Modifications))
	for _, m := range set.Modifications {
		before, after := m.Original, m.Patched
		if res.Action == ActionRevert {
			before, after = m.Patched, m.Original
		}
		entries = append(entries, common.PatchEntry{
			Action:    string(res.Action),
			File:      res.File,
			Version:   set.VersionID,
			Variant:   set.HardwareVariant,
			Name:      m.Name,
			Offset:    int64(m.Offset),
			BeforeHex: hex.EncodeToString(before),
			AfterHex:  hex.EncodeToString(after),
			Ts:        res.Ts,
		})
	}
	return entries
}
