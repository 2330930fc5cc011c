// Package geonames is the external geocoding source. It queries the GeoNames
// searchJSON endpoint for populated places and maps the rows onto canonical
// location records.
package geonames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-location-resolver/internal/cache"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

var (
	// ErrNotConfigured is returned when no GeoNames username (the API key) is set.
	ErrNotConfigured = errors.New("geonames username is not configured")
	// ErrUpstream wraps non-success statuses and error payloads from GeoNames.
	ErrUpstream = errors.New("geonames upstream error")
)

const (
	DefaultBaseURL = "http://api.geonames.org"

	featureClassPopulated = "P"
	orderByPopulation     = "population"
)

// CountryResolver maps a country name to the ISO2 code GeoNames expects.
type CountryResolver interface {
	ResolveCode(ctx context.Context, country string) (string, error)
}

type CountryResolverFunc func(ctx context.Context, country string) (string, error)

func (f CountryResolverFunc) ResolveCode(ctx context.Context, country string) (string, error) {
	return f(ctx, country)
}

type Config struct {
	Username  string
	BaseURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

type searchResponse struct {
	TotalResultsCount int        `json:"totalResultsCount"`
	Geonames          []geoname  `json:"geonames"`
	Status            *apiStatus `json:"status,omitempty"`
}

type apiStatus struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

type geoname struct {
	GeonameID   int64  `json:"geonameId"`
	Name        string `json:"name"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
	AdminName1  string `json:"adminName1"`
	Lat         string `json:"lat"`
	Lng         string `json:"lng"`
	Population  int64  `json:"population"`
}

type Client struct {
	logger    *slog.Logger
	cfg       Config
	http      *http.Client
	countries CountryResolver
	cache     *cache.Cache[[]types.Location]
	tempSeq   atomic.Int64
}

// NewClient builds the adapter. countries may be nil, in which case only
// two-letter country input is sent as a country filter.
func NewClient(cfg Config, countries CountryResolver, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	sourceCache, err := cache.New[[]types.Location](cfg.CacheTTL, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geonames source cache: %w", err)
	}

	return &Client{
		logger: logger,
		cfg:    cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		countries: countries,
		cache:     sourceCache,
	}, nil
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.Username) != ""
}

// Search returns populated places whose name starts with query, most
// populous first. Coordinates are only filled when includeCoordinates is set.
func (c *Client) Search(ctx context.Context, query, country string, limit int, includeCoordinates bool) ([]types.Location, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := otel.Tracer("GeoNamesClient").Start(ctx, "Search", trace.WithAttributes(
		attribute.String("query", query),
		attribute.String("country", country),
		attribute.Int("limit", limit),
	))
	defer span.End()

	l := c.logger.With(slog.String("method", "Search"), slog.String("query", query), slog.String("country", country))

	key := fmt.Sprintf("%s|%s|%d|%t", strings.ToLower(strings.TrimSpace(query)), strings.ToLower(country), limit, includeCoordinates)
	if cached, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return slices.Clone(cached), nil
	}

	params := url.Values{}
	params.Set("name_startsWith", strings.TrimSpace(query))
	params.Set("maxRows", strconv.Itoa(limit))
	params.Set("username", c.cfg.Username)
	params.Set("featureClass", featureClassPopulated)
	params.Set("orderby", orderByPopulation)

	filterByName := false
	if country = strings.TrimSpace(country); country != "" {
		code, err := c.resolveCountry(ctx, country)
		if err != nil {
			l.DebugContext(ctx, "Country code unresolved, filtering rows by country name", slog.Any("error", err))
			filterByName = true
		} else {
			params.Set("country", code)
		}
	}

	payload, err := c.fetch(ctx, c.cfg.BaseURL+"/searchJSON?"+params.Encode())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "GeoNames request failed")
		return nil, err
	}

	locations := make([]types.Location, 0, len(payload.Geonames))
	for _, row := range payload.Geonames {
		loc, err := c.toLocation(row, includeCoordinates)
		if err != nil {
			l.WarnContext(ctx, "Skipping malformed GeoNames row", slog.Int64("geonameId", row.GeonameID), slog.Any("error", err))
			continue
		}
		if filterByName && !strings.EqualFold(loc.Country, country) {
			continue
		}
		locations = append(locations, loc)
	}

	c.cache.Set(key, slices.Clone(locations))
	l.DebugContext(ctx, "GeoNames search completed", slog.Int("rows", len(payload.Geonames)), slog.Int("mapped", len(locations)))
	span.SetStatus(codes.Ok, "GeoNames search completed")
	return locations, nil
}

func (c *Client) resolveCountry(ctx context.Context, country string) (string, error) {
	if len(country) == 2 {
		return strings.ToUpper(country), nil
	}
	if c.countries == nil {
		return "", fmt.Errorf("no country resolver for %q", country)
	}
	return c.countries.ResolveCode(ctx, country)
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build GeoNames request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GeoNames request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode GeoNames response: %w", err)
	}
	// GeoNames reports quota and credential problems with a 200 and a status object
	if payload.Status != nil {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrUpstream, payload.Status.Message, payload.Status.Value)
	}
	if payload.Geonames == nil {
		return nil, fmt.Errorf("%w: response has no geonames list", ErrUpstream)
	}
	return &payload, nil
}

func (c *Client) toLocation(row geoname, includeCoordinates bool) (types.Location, error) {
	loc := types.Location{
		Name:    strings.TrimSpace(row.Name),
		Country: strings.TrimSpace(row.CountryName),
		State:   strings.TrimSpace(row.AdminName1),
	}
	if loc.Name == "" || loc.Country == "" {
		return types.Location{}, errors.New("missing name or country")
	}

	if row.GeonameID > 0 {
		loc.ID = "geonames-" + strconv.FormatInt(row.GeonameID, 10)
	} else {
		loc.ID = "temp-" + strconv.FormatInt(c.tempSeq.Add(1), 10)
	}

	if row.Population > 0 {
		p := row.Population
		loc.Population = &p
	}

	if includeCoordinates {
		lat, err := strconv.ParseFloat(strings.TrimSpace(row.Lat), 64)
		if err != nil {
			return types.Location{}, fmt.Errorf("invalid lat %q: %w", row.Lat, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(row.Lng), 64)
		if err != nil {
			return types.Location{}, fmt.Errorf("invalid lng %q: %w", row.Lng, err)
		}
		point := types.Coordinates{Lat: lat, Lng: lng}
		if !point.Valid() {
			return types.Location{}, fmt.Errorf("coordinates out of range: %v", point)
		}
		loc.Coordinates = &point
	}
	return loc, nil
}
