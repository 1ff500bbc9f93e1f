package services

import (
	"fmt"

	"github.com/lsst-dm/imgcrawl/internal/clock"
	"github.com/lsst-dm/imgcrawl/internal/domain"
)

// LocationMissingError reports a dataset the catalog returned for our
// watched folder that has no replica at the watched site. This is a data
// condition, not a crawler fault; the dataset stays UNSCANNED.
type LocationMissingError struct {
	DatasetPath string
	Site        string
}

func (e *LocationMissingError) Error() string {
	return fmt.Sprintf("dataset %s has no location at site %s", e.DatasetPath, e.Site)
}

// ChecksumError reports a failure to read or hash the on-disk file backing
// a dataset replica.
type ChecksumError struct {
	DatasetPath string
	Resource    string
	Cause       error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum of %s (dataset %s) failed: %v", e.Resource, e.DatasetPath, e.Cause)
}

func (e *ChecksumError) Unwrap() error { return e.Cause }

// ScanExecutor verifies a single dataset replica at the configured site:
// resolve the local location, hash the file, and assemble the patch
// payload. It holds no per-dataset state and is safe to reuse across
// cycles.
type ScanExecutor struct {
	site     string
	metadata MetadataProvider
	clk      clock.Clock
}

func NewScanExecutor(site string, metadata MetadataProvider, clk clock.Clock) *ScanExecutor {
	if metadata == nil {
		metadata = NoopMetadataProvider{}
	}
	return &ScanExecutor{site: site, metadata: metadata, clk: clk}
}

// Scan verifies one dataset and returns the result to patch back.
// Failures come back as *LocationMissingError or *ChecksumError so the
// scheduler can classify them; no catalog write happens here.
func (e *ScanExecutor) Scan(dataset domain.Dataset) (domain.ScanResult, error) {
	loc, ok := ResolveLocation(dataset.Locations, e.site)
	if !ok {
		return domain.ScanResult{}, &LocationMissingError{DatasetPath: dataset.Path, Site: e.site}
	}

	checksum, size, err := ComputeChecksum(loc.Resource)
	if err != nil {
		return domain.ScanResult{}, &ChecksumError{DatasetPath: dataset.Path, Resource: loc.Resource, Cause: err}
	}

	result := domain.NewScanResult(size, checksum, e.clk.Now())
	if md := e.metadata.GetMetadata(loc.Resource); len(md) > 0 {
		result.VersionMetadata = md
	}
	return result, nil
}
