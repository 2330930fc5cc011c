package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/go-location-resolver/app/observability/metrics"
	"github.com/FACorreiaa/go-location-resolver/internal/api/city"
	"github.com/FACorreiaa/go-location-resolver/internal/cache"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

const (
	minQueryLength = 2
	defaultLimit   = 10
	countriesKey   = "countries"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

var _ Service = (*ServiceImpl)(nil)

// Service is the location resolution engine.
type Service interface {
	Search(ctx context.Context, req types.SearchRequest) types.SearchResult
	GetPopularCities(ctx context.Context, country string, limit int) []types.Location
	// GetLocationByID returns nil when no source knows the id.
	GetLocationByID(ctx context.Context, id string) *types.Location
	GetCountries(ctx context.Context) []types.Country
	NearbyCities(ctx context.Context, point types.Coordinates, limit int) ([]types.Location, error)

	// AddCity returns nil when the city could not be stored.
	AddCity(ctx context.Context, city types.NewCity) *types.Location
	UpdateCityPopularity(ctx context.Context, id string, isPopular bool) bool
	ClearCache()
	CacheStats() types.CacheStats
}

// Geocoder is the external geocoding source.
type Geocoder interface {
	Search(ctx context.Context, query, country string, limit int, includeCoordinates bool) ([]types.Location, error)
}

// CountryDirectory is the "all countries" reference source.
type CountryDirectory interface {
	ListCountries(ctx context.Context) ([]types.Country, error)
}

// Gazetteer is the static, in-memory source.
type Gazetteer interface {
	SearchStatic(query, country string) []types.Location
	FilterPopular(country string) []types.Location
	FindByID(id string) (types.Location, bool)
	Countries() []types.Country
	CountryCode(country string) (string, bool)
	Nearest(point types.Coordinates, limit int) []types.Location
}

type Config struct {
	CacheTimeout     time.Duration
	MaxCacheSize     int
	SourceTimeout    time.Duration
	FallbackToStatic bool
	DefaultCountry   string
}

// cachedValue is what the engine cache stores: a search result, a popular
// list (as a result without totals) or the country list.
type cachedValue struct {
	result    types.SearchResult
	countries []types.Country
}

type Option func(*ServiceImpl)

// WithClock replaces time.Now for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ServiceImpl) {
		s.now = now
	}
}

type ServiceImpl struct {
	logger    *slog.Logger
	cfg       Config
	db        city.Repository
	geocoder  Geocoder
	countries CountryDirectory
	gazetteer Gazetteer
	cache     *cache.Cache[cachedValue]
	group     singleflight.Group
	metrics   *metrics.AppMetrics
	now       func() time.Time
}

// NewService builds the engine. db, geocoder and countries may be nil, in
// which case the matching source always counts as failed.
func NewService(cfg Config, db city.Repository, geocoder Geocoder, countries CountryDirectory,
	gazetteer Gazetteer, logger *slog.Logger, opts ...Option) (*ServiceImpl, error) {
	if gazetteer == nil {
		return nil, errors.New("location service requires a gazetteer")
	}
	if cfg.SourceTimeout <= 0 {
		return nil, fmt.Errorf("invalid source timeout %s", cfg.SourceTimeout)
	}

	s := &ServiceImpl{
		logger:    logger,
		cfg:       cfg,
		db:        db,
		geocoder:  geocoder,
		countries: countries,
		gazetteer: gazetteer,
		metrics:   metrics.Get(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	c, err := cache.New[cachedValue](cfg.CacheTimeout, cfg.MaxCacheSize, cache.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create location cache: %w", err)
	}
	s.cache = c
	return s, nil
}

// RunCacheJanitor sweeps expired entries until ctx is done.
func (s *ServiceImpl) RunCacheJanitor(ctx context.Context, interval time.Duration) {
	s.cache.RunJanitor(ctx, interval)
}

func (s *ServiceImpl) Search(ctx context.Context, req types.SearchRequest) types.SearchResult {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "Search", trace.WithAttributes(
		attribute.String("query", req.Query),
		attribute.String("country", req.Country),
		attribute.Int("limit", req.Limit),
	))
	defer span.End()

	req = normalizeRequest(req)
	if utf8.RuneCountInString(req.Query) < minQueryLength {
		s.countSearch(ctx, "rejected")
		span.SetStatus(codes.Ok, "Query too short")
		return types.EmptySearchResult()
	}

	key := searchKey(req)
	if v, ok := s.cache.Get(key); ok {
		s.metrics.CacheHitsTotal.Add(ctx, 1)
		s.countSearch(ctx, "cache_hit")
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Served from cache")
		return cloneResult(v.result)
	}
	s.metrics.CacheMissesTotal.Add(ctx, 1)

	// The shared resolution outlives any single caller; each source call is
	// still bounded by SourceTimeout.
	ch := s.group.DoChan(key, func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx), req, key), nil
	})
	var result types.SearchResult
	select {
	case r := <-ch:
		result = r.Val.(types.SearchResult)
	case <-ctx.Done():
		s.countSearch(ctx, "abandoned")
		span.SetStatus(codes.Error, "Caller went away")
		return types.EmptySearchResult()
	}

	s.countSearch(ctx, "resolved")
	span.SetAttributes(attribute.Int("results.count", len(result.Locations)))
	span.SetStatus(codes.Ok, "Search resolved")
	return cloneResult(result)
}

func (s *ServiceImpl) resolve(ctx context.Context, req types.SearchRequest, key string) types.SearchResult {
	l := s.logger.With(slog.String("method", "Search"), slog.String("key", key))

	res := s.runFallback(ctx, req)
	merged := res.candidates
	types.SortByRelevance(merged, req.Query)

	total := max(len(merged), res.dbTotal)
	if len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}
	if !req.IncludeCoordinates {
		for i := range merged {
			merged[i] = merged[i].WithoutCoordinates()
		}
	}
	result := types.SearchResult{
		Locations: merged,
		Total:     total,
		HasMore:   total > req.Limit,
	}

	s.cache.Set(key, cachedValue{result: result})
	l.DebugContext(ctx, "Search resolved",
		slog.Int("count", len(result.Locations)),
		slog.Int("total", result.Total),
		slog.Any("sources", res.sources()))
	return result
}

func (s *ServiceImpl) GetPopularCities(ctx context.Context, country string, limit int) []types.Location {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "GetPopularCities", trace.WithAttributes(
		attribute.String("country", country),
		attribute.Int("limit", limit),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetPopularCities"))

	country = strings.TrimSpace(country)
	if limit <= 0 {
		limit = defaultLimit
	}
	key := "popular-" + countryKey(country) + "-" + strconv.Itoa(limit)
	if v, ok := s.cache.Get(key); ok {
		s.metrics.CacheHitsTotal.Add(ctx, 1)
		return slices.Clone(v.result.Locations)
	}
	s.metrics.CacheMissesTotal.Add(ctx, 1)

	var locations []types.Location
	if s.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		found, err := s.db.GetPopularCities(dbCtx, country, limit)
		cancel()
		if err != nil {
			l.WarnContext(ctx, "Database popular cities failed, using gazetteer", slog.Any("error", err))
		}
		locations = found
	}
	if len(locations) == 0 {
		locations = s.gazetteer.FilterPopular(country)
		if len(locations) > limit {
			locations = locations[:limit]
		}
	}

	if ctx.Err() == nil {
		s.cache.Set(key, cachedValue{result: types.SearchResult{Locations: locations, Total: len(locations)}})
	}
	span.SetAttributes(attribute.Int("results.count", len(locations)))
	span.SetStatus(codes.Ok, "Popular cities resolved")
	return slices.Clone(locations)
}

func (s *ServiceImpl) GetLocationByID(ctx context.Context, id string) *types.Location {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "GetLocationByID", trace.WithAttributes(
		attribute.String("location.id", id),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GetLocationByID"), slog.String("id", id))

	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	if s.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		loc, err := s.db.GetCityByID(dbCtx, id)
		cancel()
		switch {
		case err != nil:
			l.WarnContext(ctx, "Database lookup failed, scanning gazetteer", slog.Any("error", err))
		case loc != nil:
			span.SetStatus(codes.Ok, "Found in database")
			return loc
		}
	}

	if loc, ok := s.gazetteer.FindByID(id); ok {
		span.SetStatus(codes.Ok, "Found in gazetteer")
		return &loc
	}
	span.SetStatus(codes.Ok, "Not found")
	return nil
}

func (s *ServiceImpl) GetCountries(ctx context.Context) []types.Country {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "GetCountries")
	defer span.End()

	l := s.logger.With(slog.String("method", "GetCountries"))

	if v, ok := s.cache.Get(countriesKey); ok {
		s.metrics.CacheHitsTotal.Add(ctx, 1)
		return slices.Clone(v.countries)
	}
	s.metrics.CacheMissesTotal.Add(ctx, 1)

	countries, from := s.loadCountries(ctx, l)
	if ctx.Err() == nil {
		s.cache.Set(countriesKey, cachedValue{countries: countries})
	}
	span.SetAttributes(attribute.String("source", from), attribute.Int("results.count", len(countries)))
	span.SetStatus(codes.Ok, "Countries resolved")
	return slices.Clone(countries)
}

func (s *ServiceImpl) loadCountries(ctx context.Context, l *slog.Logger) ([]types.Country, string) {
	if s.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		countries, err := s.db.GetCountries(dbCtx)
		cancel()
		switch {
		case err != nil:
			l.WarnContext(ctx, "Database countries failed", slog.Any("error", err))
		case len(countries) == 0:
			l.WarnContext(ctx, "Database has no countries")
		default:
			return countries, string(sourceDatabase)
		}
	}

	if s.countries != nil {
		refCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		countries, err := s.countries.ListCountries(refCtx)
		cancel()
		if err == nil && len(countries) > 0 {
			return countries, "reference"
		}
		l.WarnContext(ctx, "Country reference API failed, using built-in list", slog.Any("error", err))
	}

	return s.fallbackCountries(), string(sourceStatic)
}

// fallbackCountries is the gazetteer's country list, guaranteed to contain
// the default operating country.
func (s *ServiceImpl) fallbackCountries() []types.Country {
	countries := s.gazetteer.Countries()
	def := strings.TrimSpace(s.cfg.DefaultCountry)
	if def == "" {
		return countries
	}
	if slices.ContainsFunc(countries, func(c types.Country) bool { return strings.EqualFold(c.Name, def) }) {
		return countries
	}
	code, _ := s.gazetteer.CountryCode(def)
	countries = append(countries, types.Country{Code: code, Name: def})
	slices.SortFunc(countries, func(a, b types.Country) int { return strings.Compare(a.Name, b.Name) })
	return countries
}

func (s *ServiceImpl) NearbyCities(ctx context.Context, point types.Coordinates, limit int) ([]types.Location, error) {
	_, span := otel.Tracer("LocationService").Start(ctx, "NearbyCities", trace.WithAttributes(
		attribute.Float64("lat", point.Lat),
		attribute.Float64("lng", point.Lng),
	))
	defer span.End()

	if !point.Valid() {
		span.SetStatus(codes.Error, "Invalid coordinates")
		return nil, fmt.Errorf("%w: lat=%f, lng=%f", ErrInvalidCoordinates, point.Lat, point.Lng)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	span.SetStatus(codes.Ok, "Nearby cities resolved")
	return s.gazetteer.Nearest(point, limit), nil
}

func (s *ServiceImpl) AddCity(ctx context.Context, newCity types.NewCity) *types.Location {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "AddCity", trace.WithAttributes(
		attribute.String("city.name", newCity.Name),
		attribute.String("city.country", newCity.Country),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "AddCity"))

	if s.db == nil {
		l.WarnContext(ctx, "Cannot add city without a database")
		span.SetStatus(codes.Error, "No database")
		return nil
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()
	loc, err := s.db.AddCity(dbCtx, newCity)
	if err != nil {
		l.WarnContext(ctx, "Failed to add city", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to add city")
		return nil
	}

	s.cache.Clear()
	l.InfoContext(ctx, "City added, cache invalidated", slog.String("id", loc.ID))
	span.SetStatus(codes.Ok, "City added")
	return loc
}

func (s *ServiceImpl) UpdateCityPopularity(ctx context.Context, id string, isPopular bool) bool {
	ctx, span := otel.Tracer("LocationService").Start(ctx, "UpdateCityPopularity", trace.WithAttributes(
		attribute.String("city.id", id),
		attribute.Bool("city.is_popular", isPopular),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateCityPopularity"), slog.String("id", id))

	if s.db == nil {
		l.WarnContext(ctx, "Cannot update city without a database")
		return false
	}
	dbCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()
	if err := s.db.UpdateCityPopularity(dbCtx, id, isPopular); err != nil {
		l.WarnContext(ctx, "Failed to update city popularity", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update popularity")
		return false
	}

	s.cache.Clear()
	l.InfoContext(ctx, "City popularity updated, cache invalidated")
	span.SetStatus(codes.Ok, "Popularity updated")
	return true
}

func (s *ServiceImpl) ClearCache() {
	s.cache.Clear()
}

func (s *ServiceImpl) CacheStats() types.CacheStats {
	st := s.cache.Stats()
	return types.CacheStats{Size: st.Size, Keys: st.Keys}
}

func (s *ServiceImpl) countSearch(ctx context.Context, outcome string) {
	s.metrics.SearchRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func normalizeRequest(req types.SearchRequest) types.SearchRequest {
	req.Query = strings.TrimSpace(req.Query)
	req.Country = strings.TrimSpace(req.Country)
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	return req
}

// searchKey is lower(query)|country-or-all|limit, plus |coords when the
// caller asked for coordinates.
func searchKey(req types.SearchRequest) string {
	key := strings.ToLower(req.Query) + "|" + countryKey(req.Country) + "|" + strconv.Itoa(req.Limit)
	if req.IncludeCoordinates {
		key += "|coords"
	}
	return key
}

func countryKey(country string) string {
	if country == "" {
		return "all"
	}
	return strings.ToLower(country)
}

func cloneResult(r types.SearchResult) types.SearchResult {
	r.Locations = slices.Clone(r.Locations)
	if r.Locations == nil {
		r.Locations = []types.Location{}
	}
	return r
}
