package patcher

import (
	"bytes"
	"fmt"

	"example.com/dmepatch/internal/catalog"
)

// Status classifies the bytes currently found at a modification site.
type Status int

const (
	// StatusIndeterminate means the bytes match neither state, or the image
	// is too short to hold them.
	StatusIndeterminate Status = iota
	// StatusOriginal means the bytes equal the unmodified firmware.
	StatusOriginal
	// StatusPatched means the bytes equal the modified firmware.
	StatusPatched
)

func (s Status) String() string {
	switch s {
	case StatusOriginal:
		return "original"
	case StatusPatched:
		return "patched"
	case StatusIndeterminate:
		return "indeterminate"
	default:
		return "invalid"
	}
}

// Symbol is the one-character marker shown next to a modification.
func (s Status) Symbol() string {
	switch s {
	case StatusOriginal:
		return "✗"
	case StatusPatched:
		return "✓"
	default:
		return "?"
	}
}

// MarshalText lets Status appear as a word in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the words produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "original":
		*s = StatusOriginal
	case "patched":
		*s = StatusPatched
	case "indeterminate":
		*s = StatusIndeterminate
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// StatusOf classifies one modification. The patched state is checked first.
func StatusOf(image []byte, m catalog.Modification) Status {
	if windowEquals(image, m.Offset, m.Patched) {
		return StatusPatched
	}
	if windowEquals(image, m.Offset, m.Original) {
		return StatusOriginal
	}
	return StatusIndeterminate
}

func windowEquals(image []byte, offset int, want []byte) bool {
	if !fits(image, offset, len(want)) {
		return false
	}
	return bytes.Equal(image[offset:offset+len(want)], want)
}

// SetStatus holds the status of the three named roles of a patch set.
type SetStatus struct {
	Jump Status `json:"jump"`
	Code Status `json:"code"`
	DTC  Status `json:"dtc"`
}

// StatusOfSet evaluates the Jump, Code and DTC modifications of set. A role
// missing from the set stays indeterminate.
func StatusOfSet(image []byte, set catalog.ModificationSet) SetStatus {
	var st SetStatus
	if m, ok := set.Find(catalog.RoleJump); ok {
		st.Jump = StatusOf(image, m)
	}
	if m, ok := set.Find(catalog.RoleCode); ok {
		st.Code = StatusOf(image, m)
	}
	if m, ok := set.Find(catalog.RoleDTC); ok {
		st.DTC = StatusOf(image, m)
	}
	return st
}

// CanApply reports whether every role is in the original state.
func (s SetStatus) CanApply() bool {
	return s.Jump == StatusOriginal && s.Code == StatusOriginal && s.DTC == StatusOriginal
}

// CanRevert reports whether every role is in the patched state.
func (s SetStatus) CanRevert() bool {
	return s.Jump == StatusPatched && s.Code == StatusPatched && s.DTC == StatusPatched
}

// ModificationState is the evaluated state of one modification of a set.
type ModificationState struct {
	Name     string `json:"name"`
	Offset   int    `json:"offset"`
	Status   Status `json:"status"`
	Observed []byte `json:"-"`
}

// States evaluates every modification of set in order. Observed holds the
// image bytes over the longer of the two windows, clipped to the image.
func States(image []byte, set catalog.ModificationSet) []ModificationState {
	out := make([]ModificationState, len(set.Modifications))
	for i, m := range set.Modifications {
		out[i] = ModificationState{
			Name:     m.Name,
			Offset:   m.Offset,
			Status:   StatusOf(image, m),
			Observed: observed(image, m),
		}
	}
	return out
}

// StateOf is the state of the whole set: original or patched when every
// modification agrees, indeterminate otherwise.
func StateOf(image []byte, set catalog.ModificationSet) Status {
	if len(set.Modifications) == 0 {
		return StatusIndeterminate
	}
	first := StatusOf(image, set.Modifications[0])
	for _, m := range set.Modifications[1:] {
		if StatusOf(image, m) != first {
			return StatusIndeterminate
		}
	}
	return first
}

func observed(image []byte, m catalog.Modification) []byte {
	n := len(m.Original)
	if len(m.Patched) > n {
		n = len(m.Patched)
	}
	start := m.Offset
	if start < 0 || start >= len(image) {
		return nil
	}
	if n > len(image)-start {
		n = len(image) - start
	}
	return append([]byte(nil), image[start:start+n]...)
}
