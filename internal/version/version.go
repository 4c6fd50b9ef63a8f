// Package version identifies which known firmware build an image is by reading
// the version tag stored at a fixed offset.
package version

import (
	"errors"
	"fmt"
	"strings"

	"example.com/dmepatch/internal/catalog"
)

const (
	// Offset is where the version tag starts in the image.
	Offset = 0x70040
	// Length is the size of the version tag field.
	Length = 16
	// FamilyPrefix is required at the start of every supported tag.
	FamilyPrefix = "ca"
)

var (
	ErrFileTooSmall        = errors.New("file is too small to contain a version string")
	ErrUnrecognizedVersion = fmt.Errorf("could not identify firmware version string at offset 0x%X", Offset)
)

// UnsupportedVersionError carries the tag found in an image of the right family
// that has no catalog entry.
type UnsupportedVersionError struct {
	Found string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported or unrecognized version, found %q", e.Found)
}

// ReadIdentifier extracts the cleaned version tag. Bytes are taken up to the
// first NUL; anything outside printable ASCII is dropped.
func ReadIdentifier(image []byte) (string, error) {
	if len(image) < Offset+Length {
		return "", ErrFileTooSmall
	}
	var b strings.Builder
	for _, c := range image[Offset : Offset+Length] {
		if c == 0 {
			break
		}
		if c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Candidates returns every catalog set whose version id prefixes the image's
// tag, in catalog order.
func Candidates(image []byte, cat *catalog.Catalog) ([]catalog.ModificationSet, error) {
	id, err := ReadIdentifier(image)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(id, FamilyPrefix) {
		return nil, ErrUnrecognizedVersion
	}
	var out []catalog.ModificationSet
	cat.Each(func(s catalog.ModificationSet) bool {
		if strings.HasPrefix(id, s.VersionID) {
			out = append(out, s)
		}
		return true
	})
	if len(out) == 0 {
		return nil, &UnsupportedVersionError{Found: id}
	}
	return out, nil
}

// Detect resolves the image to the first matching set in catalog order. The
// hardware variant is not examined, so for builds that exist in several
// variants the first one listed wins.
func Detect(image []byte, cat *catalog.Catalog) (catalog.ModificationSet, error) {
	sets, err := Candidates(image, cat)
	if err != nil {
		return catalog.ModificationSet{}, err
	}
	return sets[0], nil
}

// DetectVariant is Detect restricted to one hardware variant. An empty variant
// behaves like Detect.
func DetectVariant(image []byte, cat *catalog.Catalog, variant string) (catalog.ModificationSet, error) {
	sets, err := Candidates(image, cat)
	if err != nil {
		return catalog.ModificationSet{}, err
	}
	if variant == "" {
		return sets[0], nil
	}
	for _, s := range sets {
		if strings.EqualFold(s.HardwareVariant, variant) {
			return s, nil
		}
	}
	return catalog.ModificationSet{}, &UnsupportedVersionError{Found: sets[0].VersionID + "/" + variant}
}
