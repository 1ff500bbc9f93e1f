package services

import "github.com/lsst-dm/imgcrawl/internal/domain"

// ResolveLocation picks the replica of a dataset that lives at the given
// site. Site comparison is exact and case-sensitive; when a dataset has
// several replicas at the same site the first one in catalog order wins.
// Returns ok=false when the dataset has no replica at the site, which the
// executor reports as a location-missing failure rather than an error in
// the crawler itself.
func ResolveLocation(locations []domain.Location, site string) (domain.Location, bool) {
	for _, loc := range locations {
		if loc.Site == site {
			return loc, true
		}
	}
	return domain.Location{}, false
}
