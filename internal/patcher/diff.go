package patcher

import (
	"encoding/hex"
	"strings"

	"example.com/dmepatch/internal/catalog"
)

// DiffEntry shows the expected and current bytes of one modification.
type DiffEntry struct {
	Name     string `json:"name"`
	Offset   int    `json:"offset"`
	Status   Status `json:"status"`
	Original string `json:"original"`
	Patched  string `json:"patched"`
	Current  string `json:"current"`
}

// Diff lists every modification of set with its bytes as spaced upper-case hex.
func Diff(image []byte, set catalog.ModificationSet) []DiffEntry {
	states := States(image, set)
	out := make([]DiffEntry, len(set.Modifications))
	for i, m := range set.Modifications {
		out[i] = DiffEntry{
			Name:     m.Name,
			Offset:   m.Offset,
			Status:   states[i].Status,
			Original: HexString(m.Original),
			Patched:  HexString(m.Patched),
			Current:  HexString(states[i].Observed),
		}
	}
	return out
}

// HexString formats b as "DA 0B 5A 1C".
func HexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	enc := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(enc) + len(b))
	for i := 0; i < len(enc); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(enc[i : i+2])
	}
	return sb.String()
}
