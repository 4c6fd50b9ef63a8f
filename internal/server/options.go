package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
)

// DefaultMaxImageBytes bounds request bodies when Options leaves it unset.
const DefaultMaxImageBytes = 16 << 20

// Options configures server creation.
type Options struct {
	StorageDir string
	// Catalog defaults to catalog.Default.
	Catalog *catalog.Catalog
	// AuditLog, when set, receives one entry per modification of every
	// successful apply or revert.
	AuditLog      string
	MaxImageBytes int64
	Metrics       *common.Metrics
}

func (o Options) normalize() (Options, error) {
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if o.Catalog.Len() == 0 {
		return o, errors.New("catalog contains no modification sets")
	}
	if o.MaxImageBytes < 0 {
		return o, fmt.Errorf("max image size %d is negative", o.MaxImageBytes)
	}
	if o.MaxImageBytes == 0 {
		o.MaxImageBytes = DefaultMaxImageBytes
	}
	o.AuditLog = strings.TrimSpace(o.AuditLog)
	if o.AuditLog != "" && !filepath.IsAbs(o.AuditLog) {
		abs, err := filepath.Abs(o.AuditLog)
		if err != nil {
			return o, fmt.Errorf("audit log abs: %w", err)
		}
		o.AuditLog = abs
	}
	if o.Metrics == nil {
		o.Metrics = common.NewMetrics()
	}
	return o, nil
}
