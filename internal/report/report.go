package report

import (
	"encoding/json"
	"os"

	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/session"
)

// SaveSessionJSON writes the outcome of one apply or revert: detected version,
// per-site states before and after, log lines and image hashes.
func SaveSessionJSON(res *session.Result, out string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, append(b, '\n'), 0o644)
}

// LoadSessionJSON reads a report written by SaveSessionJSON. The catalog set and
// audit entries are not part of the file and come back empty.
func LoadSessionJSON(path string) (session.Result, error) {
	var res session.Result
	b, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	err = json.Unmarshal(b, &res)
	return res, err
}
