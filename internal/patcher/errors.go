package patcher

import (
	"fmt"
	"strings"
)

// ImageTooSmallError reports a modification whose byte window runs past the
// end of the image.
type ImageTooSmallError struct {
	Name   string
	Offset int
}

func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("file is too small to apply patch '%s' at offset 0x%X", e.Name, e.Offset)
}

// ValidationMismatchError reports bytes at a modification site that differ
// from the expected state.
type ValidationMismatchError struct {
	Offset   int
	Expected []byte
	Found    []byte
}

func (e *ValidationMismatchError) Error() string {
	return fmt.Sprintf("validation failed: data mismatch at offset 0x%X, expected %s, found %s; the file may be of the wrong version or already modified",
		e.Offset, hexList(e.Expected), hexList(e.Found))
}

func hexList(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
