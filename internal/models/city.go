package models

import (
	"strings"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

// CityRow is one row of the search_cities() result set and of the
// city lookups. Nullable columns are coalesced in SQL: an empty State,
// a false HasCoordinates and a zero Population mean "unknown".
type CityRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	State          string  `db:"state"`
	Country        string  `db:"country"`
	HasCoordinates bool    `db:"has_coordinates"`
	Latitude       float64 `db:"latitude"`
	Longitude      float64 `db:"longitude"`
	Population     int64   `db:"population"`
	IsPopular      bool    `db:"is_popular"`
}

// ToLocation maps the row 1:1 onto the canonical record.
func (r CityRow) ToLocation() types.Location {
	loc := types.Location{
		ID:        r.ID,
		Name:      strings.TrimSpace(r.Name),
		Country:   strings.TrimSpace(r.Country),
		State:     strings.TrimSpace(r.State),
		IsPopular: r.IsPopular,
	}
	if r.HasCoordinates {
		loc.Coordinates = &types.Coordinates{Lat: r.Latitude, Lng: r.Longitude}
	}
	if r.Population > 0 {
		p := r.Population
		loc.Population = &p
	}
	return loc
}

// CountryRow is a row of the countries table.
type CountryRow struct {
	Code string `db:"code"`
	Name string `db:"name"`
}

func (r CountryRow) ToCountry() types.Country {
	return types.Country{Code: strings.ToUpper(strings.TrimSpace(r.Code)), Name: strings.TrimSpace(r.Name)}
}
