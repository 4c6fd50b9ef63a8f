package catalog

import "fmt"

// Modification names conventionally used by the MS43 immobilizer patch sets.
const (
	RoleJump = "Jump"
	RoleCode = "Code"
	RoleDTC  = "DTC"
)

// Modification describes one byte-range change in a firmware image.
// Original and Patched may differ in length.
type Modification struct {
	Name     string
	Offset   int
	Original []byte
	Patched  []byte
}

// OriginalEnd is the exclusive end offset of the original byte window.
func (m Modification) OriginalEnd() int {
	return m.Offset + len(m.Original)
}

// PatchedEnd is the exclusive end offset of the patched byte window.
func (m Modification) PatchedEnd() int {
	return m.Offset + len(m.Patched)
}

func (m Modification) clone() Modification {
	return Modification{
		Name:     m.Name,
		Offset:   m.Offset,
		Original: append([]byte(nil), m.Original...),
		Patched:  append([]byte(nil), m.Patched...),
	}
}

// Key identifies a modification set inside a Catalog.
type Key struct {
	VersionID       string
	HardwareVariant string
}

func (k Key) String() string {
	if k.HardwareVariant == "" {
		return k.VersionID
	}
	return fmt.Sprintf("%s/%s", k.VersionID, k.HardwareVariant)
}

// ModificationSet is the ordered list of modifications for one firmware build.
// An empty HardwareVariant means the build has no variant distinction.
type ModificationSet struct {
	VersionID       string
	HardwareVariant string
	Modifications   []Modification
}

// Key returns the lookup key of the set.
func (s ModificationSet) Key() Key {
	return Key{VersionID: s.VersionID, HardwareVariant: s.HardwareVariant}
}

func (s ModificationSet) String() string {
	return s.Key().String()
}

// Find returns the first modification with the given name.
func (s ModificationSet) Find(name string) (Modification, bool) {
	for _, m := range s.Modifications {
		if m.Name == name {
			return m, true
		}
	}
	return Modification{}, false
}

func (s ModificationSet) clone() ModificationSet {
	out := ModificationSet{
		VersionID:       s.VersionID,
		HardwareVariant: s.HardwareVariant,
		Modifications:   make([]Modification, len(s.Modifications)),
	}
	for i, m := range s.Modifications {
		out.Modifications[i] = m.clone()
	}
	return out
}
