package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lsst-dm/imgcrawl/internal/catalog"
	"github.com/lsst-dm/imgcrawl/internal/domain"
)

// FakeCatalog is an in-memory catalog with real scan-status semantics:
// Search returns only datasets still UNSCANNED under the folder, bounded
// by MaxResults, and Patch moves a dataset to the patched status. Unlike
// MockCatalog's scripted batches, it lets tests observe behavior across
// cycles: an unpatched dataset stays eligible for the next search.
type FakeCatalog struct {
	mu        sync.Mutex
	entries   map[string]*fakeEntry
	failPatch map[string]int
}

var _ catalog.Client = (*FakeCatalog)(nil)

type fakeEntry struct {
	dataset domain.Dataset
	result  *domain.ScanResult
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		entries:   make(map[string]*fakeEntry),
		failPatch: make(map[string]int),
	}
}

// Add registers a dataset. Path is the unique key.
func (f *FakeCatalog) Add(ds domain.Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[ds.Path] = &fakeEntry{dataset: ds}
}

// FailPatchTimes makes the next n Patch calls for path fail with a
// transport error, leaving the dataset's status untouched.
func (f *FakeCatalog) FailPatchTimes(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPatch[path] = n
}

func (f *FakeCatalog) Search(_ context.Context, req catalog.SearchRequest) ([]domain.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Dataset
	for _, e := range f.entries {
		if !strings.HasPrefix(e.dataset.Path, req.Path) {
			continue
		}
		if req.Query == catalog.QueryUnscanned && e.dataset.ScanStatus != domain.ScanStatusUnscanned {
			continue
		}
		out = append(out, e.dataset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	if req.MaxResults > 0 && len(out) > req.MaxResults {
		out = out[:req.MaxResults]
	}
	return out, nil
}

func (f *FakeCatalog) Patch(_ context.Context, datasetPath string, result domain.ScanResult, versionID int, site string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := f.failPatch[datasetPath]; n > 0 {
		f.failPatch[datasetPath] = n - 1
		return &catalog.TransportError{Op: "patch", StatusCode: 503, Message: "injected failure"}
	}

	e, ok := f.entries[datasetPath]
	if !ok || e.dataset.VersionID != versionID {
		return &catalog.TransportError{Op: "patch", StatusCode: 404, Message: "dataset not found"}
	}

	r := result
	e.result = &r
	e.dataset.ScanStatus = result.ScanStatus
	return nil
}

// Status reports the current scan status of a dataset.
func (f *FakeCatalog) Status(path string) domain.ScanStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[path]; ok {
		return e.dataset.ScanStatus
	}
	return ""
}

// Result returns the last patched result for a dataset.
func (f *FakeCatalog) Result(path string) (domain.ScanResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[path]; ok && e.result != nil {
		return *e.result, true
	}
	return domain.ScanResult{}, false
}

// CountByStatus tallies datasets in the given status.
func (f *FakeCatalog) CountByStatus(status domain.ScanStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.dataset.ScanStatus == status {
			n++
		}
	}
	return n
}
