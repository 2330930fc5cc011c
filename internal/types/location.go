package types

import (
	"strings"

	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the latitude/longitude ranges.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b Coordinates) float64 {
	from := s2.LatLngFromDegrees(a.Lat, a.Lng)
	to := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return from.Distance(to).Radians() * earthRadiusKm
}

// Location is the canonical record every source is mapped into.
type Location struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Country     string       `json:"country"`
	State       string       `json:"state,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Population  *int64       `json:"population,omitempty"`
	IsPopular   bool         `json:"isPopular"`
}

// Valid reports whether the record can be handed to a caller.
func (l Location) Valid() bool {
	return strings.TrimSpace(l.ID) != "" &&
		strings.TrimSpace(l.Name) != "" &&
		strings.TrimSpace(l.Country) != ""
}

// DisplayName renders "Name, State, Country", skipping empty parts.
func (l Location) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Name, l.State, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// WithoutCoordinates returns a copy of the record with coordinates dropped.
func (l Location) WithoutCoordinates() Location {
	l.Coordinates = nil
	return l
}

// Country is a {code, name} pair as exposed by getCountries.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SearchRequest is the (query, country, limit) triple callers resolve.
// An empty Country means "all countries".
type SearchRequest struct {
	Query              string
	Country            string
	Limit              int
	IncludeCoordinates bool
}

// SearchResult is the bounded, ranked answer to a SearchRequest.
type SearchResult struct {
	Locations []Location `json:"locations"`
	Total     int        `json:"total"`
	HasMore   bool       `json:"hasMore"`
}

// EmptySearchResult is returned for rejected or unresolvable queries.
func EmptySearchResult() SearchResult {
	return SearchResult{Locations: []Location{}, Total: 0, HasMore: false}
}

// NewCity is the payload accepted by the addCity admin mutation.
type NewCity struct {
	Name        string       `json:"name"`
	Country     string       `json:"country"`
	State       string       `json:"state,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Population  *int64       `json:"population,omitempty"`
	IsPopular   bool         `json:"isPopular"`
}

// UpdatePopularityRequest is the body of the popularity toggle endpoint.
type UpdatePopularityRequest struct {
	IsPopular bool `json:"isPopular"`
}

// CacheStats mirrors getCacheStats.
type CacheStats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}
