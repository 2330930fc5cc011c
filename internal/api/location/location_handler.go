package location

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-location-resolver/internal/api"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

const (
	maxLimit     = 100
	allCountries = "all"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Search(w http.ResponseWriter, r *http.Request)
	GetPopularCities(w http.ResponseWriter, r *http.Request)
	GetCountries(w http.ResponseWriter, r *http.Request)
	GetNearbyCities(w http.ResponseWriter, r *http.Request)
	GetLocationByID(w http.ResponseWriter, r *http.Request)
	AddCity(w http.ResponseWriter, r *http.Request)
	UpdateCityPopularity(w http.ResponseWriter, r *http.Request)
	ClearCache(w http.ResponseWriter, r *http.Request)
	GetCacheStats(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	service        Service
	logger         *slog.Logger
	defaultCountry string
}

// NewHandlerImpl creates the location HTTP handler. A request without a
// country parameter is resolved against defaultCountry.
func NewHandlerImpl(service Service, defaultCountry string, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		service:        service,
		logger:         logger,
		defaultCountry: defaultCountry,
	}
}

// Search godoc
// @Summary      Search locations
// @Description  Resolves a partial place name into a ranked list of locations.
// @Tags         Locations
// @Produce      json
// @Param        q           query string false "Partial place name (at least 2 characters)"
// @Param        country     query string false "Country name or code, 'all' for every country"
// @Param        limit       query int    false "Maximum results (1-100)"
// @Param        coordinates query bool   false "Include coordinates"
// @Success      200 {object} types.SearchResult
// @Failure      400 {object} api.Response "Invalid Input"
// @Router       /locations/search [get]
func (h *HandlerImpl) Search(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "Search")
	defer span.End()
	l := h.logger.With(slog.String("HandlerImpl", "Search"))

	limit, err := h.limit(r)
	if err != nil {
		l.DebugContext(ctx, "Invalid limit", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid limit")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	withCoordinates, err := api.QueryBool(r, "coordinates", false)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req := types.SearchRequest{
		Query:              r.URL.Query().Get("q"),
		Country:            h.country(r),
		Limit:              limit,
		IncludeCoordinates: withCoordinates,
	}
	span.SetAttributes(
		attribute.String("query", req.Query),
		attribute.String("country", req.Country),
		attribute.Int("limit", req.Limit),
	)

	result := h.service.Search(ctx, req)
	span.SetStatus(codes.Ok, "Search served")
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

// GetPopularCities godoc
// @Summary      Popular cities
// @Tags         Locations
// @Produce      json
// @Param        country query string false "Country name or code, 'all' for every country"
// @Param        limit   query int    false "Maximum results (1-100)"
// @Success      200 {object} api.LocationsResponse
// @Router       /locations/popular [get]
func (h *HandlerImpl) GetPopularCities(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "GetPopularCities")
	defer span.End()

	limit, err := h.limit(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	locations := h.service.GetPopularCities(ctx, h.country(r), limit)
	api.WriteJSONResponse(w, r, http.StatusOK, api.LocationsResponse{Locations: locations, Count: len(locations)})
}

// GetCountries godoc
// @Summary      List countries
// @Tags         Locations
// @Produce      json
// @Success      200 {object} api.CountriesResponse
// @Router       /locations/countries [get]
func (h *HandlerImpl) GetCountries(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "GetCountries")
	defer span.End()

	api.WriteJSONResponse(w, r, http.StatusOK, api.CountriesResponse{Countries: h.service.GetCountries(ctx)})
}

func (h *HandlerImpl) GetNearbyCities(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "GetNearbyCities")
	defer span.End()
	l := h.logger.With(slog.String("HandlerImpl", "GetNearbyCities"))

	lat, err := api.QueryFloat(r, "lat")
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	lng, err := api.QueryFloat(r, "lng")
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	locations, err := h.service.NearbyCities(ctx, types.Coordinates{Lat: lat, Lng: lng}, limit)
	if err != nil {
		l.DebugContext(ctx, "Rejected nearby lookup", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid coordinates")
		if errors.Is(err, ErrInvalidCoordinates) {
			api.ErrorResponse(w, r, http.StatusBadRequest, "Coordinates out of range")
		} else {
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to find nearby cities")
		}
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.LocationsResponse{Locations: locations, Count: len(locations)})
}

// GetLocationByID godoc
// @Summary      Get location by id
// @Tags         Locations
// @Produce      json
// @Param        id path string true "Location id"
// @Success      200 {object} types.Location
// @Failure      404 {object} api.Response "Location Not Found"
// @Router       /locations/{id} [get]
func (h *HandlerImpl) GetLocationByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "GetLocationByID", trace.WithAttributes(
		attribute.String("location.id", id),
	))
	defer span.End()

	loc := h.service.GetLocationByID(ctx, id)
	if loc == nil {
		span.SetStatus(codes.Error, "Location not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "Location not found")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, loc)
}

// AddCity godoc
// @Summary      Add a city
// @Tags         Locations
// @Accept       json
// @Produce      json
// @Param        city body types.NewCity true "City"
// @Success      201 {object} types.Location
// @Failure      400 {object} api.Response "Invalid Input"
// @Failure      422 {object} api.Response "City Not Stored"
// @Router       /locations/cities [post]
func (h *HandlerImpl) AddCity(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "AddCity")
	defer span.End()
	l := h.logger.With(slog.String("HandlerImpl", "AddCity"))

	var body types.NewCity
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Country) == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "name and country are required")
		return
	}

	loc := h.service.AddCity(ctx, body)
	if loc == nil {
		span.SetStatus(codes.Error, "City not stored")
		api.ErrorResponse(w, r, http.StatusUnprocessableEntity, "City could not be stored")
		return
	}
	span.SetStatus(codes.Ok, "City added")
	api.WriteJSONResponse(w, r, http.StatusCreated, loc)
}

// UpdateCityPopularity godoc
// @Summary      Toggle city popularity
// @Tags         Locations
// @Accept       json
// @Produce      json
// @Param        id   path string                        true "City id"
// @Param        body body types.UpdatePopularityRequest true "Popularity"
// @Success      200 {object} api.Response
// @Failure      404 {object} api.Response "City Not Found"
// @Router       /locations/cities/{id}/popularity [patch]
func (h *HandlerImpl) UpdateCityPopularity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := otel.Tracer("LocationHandler").Start(r.Context(), "UpdateCityPopularity", trace.WithAttributes(
		attribute.String("city.id", id),
	))
	defer span.End()

	var body types.UpdatePopularityRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if !h.service.UpdateCityPopularity(ctx, id, body.IsPopular) {
		span.SetStatus(codes.Error, "City not updated")
		api.ErrorResponse(w, r, http.StatusNotFound, "City not found")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{Success: true, Message: "City popularity updated"})
}

func (h *HandlerImpl) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()
	h.logger.InfoContext(r.Context(), "Location cache cleared")
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{Success: true, Message: "Cache cleared"})
}

func (h *HandlerImpl) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONResponse(w, r, http.StatusOK, h.service.CacheStats())
}

// country maps the request's country parameter: absent means the default
// operating country, "all" means no filter.
func (h *HandlerImpl) country(r *http.Request) string {
	q := r.URL.Query()
	if !q.Has("country") {
		return h.defaultCountry
	}
	country := strings.TrimSpace(q.Get("country"))
	if strings.EqualFold(country, allCountries) {
		return ""
	}
	return country
}

func (h *HandlerImpl) limit(r *http.Request) (int, error) {
	limit, err := api.QueryInt(r, "limit", defaultLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > maxLimit {
		return 0, errors.New("limit must be between 1 and 100")
	}
	return limit, nil
}
