// Package domain holds the catalog data model and the crawl event types
// shared by all services.
package domain

import "time"

// ScanStatus is the catalog's verification state for a dataset at a site.
// The crawler only ever moves datasets from Unscanned to OK; it never
// creates or deletes catalog entries.
type ScanStatus string

const (
	ScanStatusUnscanned ScanStatus = "UNSCANNED"
	ScanStatusOK        ScanStatus = "OK"
	ScanStatusError     ScanStatus = "ERROR"
)

// Location is one replica of a dataset: the site it lives at and the
// absolute file-system path of the resource there.
type Location struct {
	Site     string `json:"site"`
	Resource string `json:"resource"`
}

// Dataset is one catalog entry. Path is the unique catalog identifier,
// not a file-system path; the file-system paths live in Locations.
type Dataset struct {
	Path       string     `json:"path"`
	VersionID  int        `json:"versionId"`
	ScanStatus ScanStatus `json:"scanStatus"`
	Locations  []Location `json:"locations"`
}

// ScanTimeLayout is the wire format for ScanResult.LocationScanned:
// ISO-8601 UTC with an explicit Z suffix.
const ScanTimeLayout = "2006-01-02T15:04:05Z"

// ScanResult is the patch payload sent back to the catalog after a
// successful verification. It is built fresh per dataset per cycle and
// never persisted locally.
type ScanResult struct {
	Size            int64          `json:"size"`
	Checksum        string         `json:"checksum"`
	LocationScanned string         `json:"locationScanned"`
	ScanStatus      ScanStatus     `json:"scanStatus"`
	VersionMetadata map[string]any `json:"versionMetadata,omitempty"`
}

// NewScanResult builds an OK result for the given verification data,
// stamping the scan time in the catalog's wire format.
func NewScanResult(size int64, checksum string, scannedAt time.Time) ScanResult {
	return ScanResult{
		Size:            size,
		Checksum:        checksum,
		LocationScanned: scannedAt.UTC().Format(ScanTimeLayout),
		ScanStatus:      ScanStatusOK,
	}
}
