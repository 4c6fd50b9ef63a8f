// Package patcher checks and changes the byte windows of a modification set in
// a firmware image held in memory. It performs no I/O; callers load the image
// and persist it afterwards.
package patcher

import (
	"bytes"
	"fmt"

	"example.com/dmepatch/internal/catalog"
)

// Reference selects which side of each modification an image is checked against.
type Reference int

const (
	// AgainstOriginal expects unmodified firmware, as required before Apply.
	AgainstOriginal Reference = iota
	// AgainstPatched expects modified firmware, as required before Revert.
	AgainstPatched
)

func (r Reference) String() string {
	switch r {
	case AgainstOriginal:
		return "original"
	case AgainstPatched:
		return "patched"
	default:
		return fmt.Sprintf("Reference(%d)", int(r))
	}
}

func (r Reference) bytes(m catalog.Modification) []byte {
	if r == AgainstPatched {
		return m.Patched
	}
	return m.Original
}

// Validate checks every modification of set, in order, against ref and stops
// at the first problem. It never writes to image.
func Validate(image []byte, set catalog.ModificationSet, ref Reference) error {
	for _, m := range set.Modifications {
		want := ref.bytes(m)
		if !fits(image, m.Offset, len(want)) {
			return &ImageTooSmallError{Name: m.Name, Offset: m.Offset}
		}
		found := image[m.Offset : m.Offset+len(want)]
		if !bytes.Equal(found, want) {
			return &ValidationMismatchError{
				Offset:   m.Offset,
				Expected: append([]byte(nil), want...),
				Found:    append([]byte(nil), found...),
			}
		}
	}
	return nil
}

// Apply validates that image holds the original bytes of every modification
// and then writes the patched bytes. On error image is left untouched.
func Apply(image []byte, set catalog.ModificationSet) ([]string, error) {
	return rewrite(image, set, AgainstOriginal, "Applied")
}

// Revert validates that image holds the patched bytes of every modification
// and then restores the original bytes. On error image is left untouched.
func Revert(image []byte, set catalog.ModificationSet) ([]string, error) {
	return rewrite(image, set, AgainstPatched, "Reverted")
}

func rewrite(image []byte, set catalog.ModificationSet, from Reference, verb string) ([]string, error) {
	if err := Validate(image, set, from); err != nil {
		return nil, err
	}
	to := AgainstPatched
	if from == AgainstPatched {
		to = AgainstOriginal
	}
	// Target windows can be longer than the validated ones.
	for _, m := range set.Modifications {
		if !fits(image, m.Offset, len(to.bytes(m))) {
			return nil, &ImageTooSmallError{Name: m.Name, Offset: m.Offset}
		}
	}
	logs := make([]string, 0, len(set.Modifications))
	for _, m := range set.Modifications {
		copy(image[m.Offset:], to.bytes(m))
		logs = append(logs, fmt.Sprintf("  %s %s patch at offset 0x%X", verb, m.Name, m.Offset))
	}
	return logs, nil
}

// fits reports whether n bytes at offset lie inside image. It never computes
// offset+n, so huge offsets cannot wrap.
func fits(image []byte, offset, n int) bool {
	return offset >= 0 && offset <= len(image) && n <= len(image)-offset
}
