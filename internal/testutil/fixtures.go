package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsst-dm/imgcrawl/internal/domain"
)

// UnscannedDataset builds a catalog entry with a single replica at the
// given site backed by resource.
func UnscannedDataset(path string, versionID int, site, resource string) domain.Dataset {
	return domain.Dataset{
		Path:       path,
		VersionID:  versionID,
		ScanStatus: domain.ScanStatusUnscanned,
		Locations:  []domain.Location{{Site: site, Resource: resource}},
	}
}

// WriteTempFile creates a file with the given contents under t's temp
// directory and returns its path.
func WriteTempFile(t *testing.T, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}
