package manifest

import (
	"encoding/json"
	"os"
	"time"

	"example.com/dmepatch/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Role   string `json:"role,omitempty"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Version   string    `json:"version,omitempty"`
	Variant   string    `json:"variant,omitempty"`
	Items     []Item    `json:"items"`
}

// Entry names a file to include and what it is in the session.
type Entry struct {
	Path string
	Role string
}

func Build(entries []Entry) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		hex, sz, err := common.Sha256OfFile(e.Path)
		if err != nil {
			return m, err
		}
		typ := "other"
		switch {
		case hasExt(e.Path, ".bin", ".ori", ".mod", ".bak"):
			typ = "firmware"
		case hasExt(e.Path, ".jsonl"):
			typ = "audit"
		case hasExt(e.Path, ".json"):
			typ = "json"
		case hasExt(e.Path, ".pdf"):
			typ = "pdf"
		}
		m.Items = append(m.Items, Item{Path: e.Path, Role: e.Role, Size: sz, Sha256: hex, Type: typ})
	}
	return m, nil
}

func hasExt(path string, exts ...string) bool {
	for _, e := range exts {
		if len(path) >= len(e) && path[len(path)-len(e):] == e {
			return true
		}
	}
	return false
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}
