package catalog

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the on-disk form of additional modification sets.
//
//	sets:
//	  - version: ca430099
//	    variant: 5WK90020
//	    modifications:
//	      - {name: Jump, offset: 0x600D8, original: "DA 0A 6C DD", patched: "DA 0D F8 3B"}
type document struct {
	Sets []documentSet `yaml:"sets"`
}

type documentSet struct {
	Version       string                 `yaml:"version"`
	Variant       string                 `yaml:"variant,omitempty"`
	Modifications []documentModification `yaml:"modifications"`
}

type documentModification struct {
	Name     string  `yaml:"name"`
	Offset   yamlInt `yaml:"offset"`
	Original yamlHex `yaml:"original"`
	Patched  yamlHex `yaml:"patched"`
}

type yamlInt int

func (v *yamlInt) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := strconv.ParseInt(strings.TrimSpace(n.Value), 0, strconv.IntSize)
	if err != nil {
		return fmt.Errorf("line %d: invalid offset %q", n.Line, n.Value)
	}
	*v = yamlInt(parsed)
	return nil
}

type yamlHex []byte

func (v *yamlHex) UnmarshalYAML(n *yaml.Node) error {
	cleaned := strings.NewReplacer(" ", "", ",", "", "0x", "", "0X", "").Replace(n.Value)
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("line %d: invalid hex bytes %q: %v", n.Line, n.Value, err)
	}
	*v = b
	return nil
}

// ParseYAML decodes a catalog document into modification sets.
func ParseYAML(data []byte) ([]ModificationSet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	sets := make([]ModificationSet, 0, len(doc.Sets))
	for _, ds := range doc.Sets {
		s := ModificationSet{
			VersionID:       strings.TrimSpace(ds.Version),
			HardwareVariant: strings.TrimSpace(ds.Variant),
		}
		for _, dm := range ds.Modifications {
			s.Modifications = append(s.Modifications, Modification{
				Name:     strings.TrimSpace(dm.Name),
				Offset:   int(dm.Offset),
				Original: []byte(dm.Original),
				Patched:  []byte(dm.Patched),
			})
		}
		if err := validateSet(s); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, nil
}

// LoadYAML reads a catalog document from path.
func LoadYAML(path string) ([]ModificationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseYAML(data)
}

// Load returns the default catalog extended with the sets in path. An empty
// path yields the default catalog unchanged.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	extra, err := LoadYAML(path)
	if err != nil {
		return nil, err
	}
	return Merge(Default(), extra)
}
