package services

// MetadataProvider extracts version metadata from a dataset file for
// inclusion in the patch payload. Header extraction for FITS files is a
// planned extension; until a real provider exists the crawler runs with
// NoopMetadataProvider and omits versionMetadata from patches.
type MetadataProvider interface {
	// GetMetadata returns metadata for the file at resource, or nil when
	// there is nothing to report. Errors are deliberately absent from the
	// signature: metadata is best-effort and must never fail a scan.
	GetMetadata(resource string) map[string]any
}

// NoopMetadataProvider reports no metadata for any file.
type NoopMetadataProvider struct{}

func (NoopMetadataProvider) GetMetadata(string) map[string]any { return nil }
