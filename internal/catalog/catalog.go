// Package catalog holds the table of known firmware builds and the byte-level
// modifications that belong to each of them. A Catalog is immutable once built.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// ErrDuplicateKey is returned when two sets share a version id and hardware variant.
var ErrDuplicateKey = errors.New("catalog: duplicate modification set")

// Catalog is an ordered, read-only table of modification sets with an exact-key index.
type Catalog struct {
	sets  []ModificationSet
	index map[Key]int
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the process-wide catalog of builtin sets. It is built on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New(Builtin())
		if err != nil {
			panic(fmt.Sprintf("catalog: builtin table: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// New builds a catalog from sets, keeping their order. The sets are copied.
func New(sets []ModificationSet) (*Catalog, error) {
	c := &Catalog{
		sets:  make([]ModificationSet, 0, len(sets)),
		index: make(map[Key]int, len(sets)),
	}
	for i, s := range sets {
		if err := validateSet(s); err != nil {
			return nil, fmt.Errorf("set %d: %w", i, err)
		}
		key := s.Key()
		if _, exists := c.index[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		c.index[key] = len(c.sets)
		c.sets = append(c.sets, s.clone())
	}
	return c, nil
}

// Merge returns a new catalog holding the sets of base followed by extra.
func Merge(base *Catalog, extra []ModificationSet) (*Catalog, error) {
	var sets []ModificationSet
	if base != nil {
		sets = append(sets, base.sets...)
	}
	sets = append(sets, extra...)
	return New(sets)
}

func validateSet(s ModificationSet) error {
	if strings.TrimSpace(s.VersionID) == "" {
		return errors.New("empty version id")
	}
	if len(s.Modifications) == 0 {
		return fmt.Errorf("%s: no modifications", s.Key())
	}
	for _, m := range s.Modifications {
		if m.Name == "" {
			return fmt.Errorf("%s: modification without name", s.Key())
		}
		if m.Offset < 0 {
			return fmt.Errorf("%s: %s has negative offset %d", s.Key(), m.Name, m.Offset)
		}
		if len(m.Original) == 0 || len(m.Patched) == 0 {
			return fmt.Errorf("%s: %s has empty byte window", s.Key(), m.Name)
		}
		if m.Offset > math.MaxInt-max(len(m.Original), len(m.Patched)) {
			return fmt.Errorf("%s: %s offset 0x%X out of range", s.Key(), m.Name, m.Offset)
		}
	}
	return nil
}

// Len reports the number of sets.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sets)
}

// All returns every set in catalog order.
func (c *Catalog) All() []ModificationSet {
	if c == nil {
		return nil
	}
	out := make([]ModificationSet, len(c.sets))
	for i, s := range c.sets {
		out[i] = s.clone()
	}
	return out
}

// Lookup finds the set stored under the exact version id and hardware variant.
func (c *Catalog) Lookup(versionID, hardwareVariant string) (ModificationSet, bool) {
	if c == nil {
		return ModificationSet{}, false
	}
	i, ok := c.index[Key{VersionID: versionID, HardwareVariant: hardwareVariant}]
	if !ok {
		return ModificationSet{}, false
	}
	return c.sets[i].clone(), true
}

// Each calls fn for every set in order until fn returns false. The set passed
// to fn shares storage with the catalog and must not be modified.
func (c *Catalog) Each(fn func(ModificationSet) bool) {
	if c == nil {
		return
	}
	for _, s := range c.sets {
		if !fn(s) {
			return
		}
	}
}
