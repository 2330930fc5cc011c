package api

import "github.com/FACorreiaa/go-location-resolver/internal/types"

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success" example:"true"`                           // Indicates if the operation was successful.
	Message string `json:"message,omitempty" example:"Operation successful"` // Optional success message.
	Error   string `json:"error,omitempty" example:"Resource not found"`     // Optional error message.
}

// LocationsResponse wraps a plain list of locations (popular, nearby).
type LocationsResponse struct {
	Locations []types.Location `json:"locations"`
	Count     int              `json:"count"`
}

// CountriesResponse wraps the country list.
type CountriesResponse struct {
	Countries []types.Country `json:"countries"`
}
