package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-location-resolver/app/observability/metrics"
	"github.com/FACorreiaa/go-location-resolver/internal/models"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

var (
	ErrNotFound       = errors.New("city not found")
	ErrUnknownCountry = errors.New("unknown country")
	ErrInvalidCity    = errors.New("city name and country are required")
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the database location source.
type Repository interface {
	SearchCities(ctx context.Context, query, country string, limit int) (types.SearchResult, error)
	GetPopularCities(ctx context.Context, country string, limit int) ([]types.Location, error)
	GetCountries(ctx context.Context) ([]types.Country, error)
	// GetCityByID returns nil, nil when no city has that id.
	GetCityByID(ctx context.Context, id string) (*types.Location, error)
	AddCity(ctx context.Context, city types.NewCity) (*types.Location, error)
	UpdateCityPopularity(ctx context.Context, id string, isPopular bool) error
}

// PgxPool is the subset of *pgxpool.Pool the repository uses.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type RepositoryImpl struct {
	logger  *slog.Logger
	pgpool  PgxPool
	metrics *metrics.AppMetrics
}

func NewCityRepository(pgpool PgxPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger:  logger,
		pgpool:  pgpool,
		metrics: metrics.Get(),
	}
}

// Columns shared by every single-city query, in CityRow scan order.
const citySelect = `
        SELECT
            c.id::text,
            c.name,
            COALESCE(s.name, ''),
            co.name,
            (c.latitude IS NOT NULL AND c.longitude IS NOT NULL),
            COALESCE(c.latitude, 0),
            COALESCE(c.longitude, 0),
            COALESCE(c.population, 0),
            c.is_popular
        FROM cities c
        JOIN countries co ON co.code = c.country_code
        LEFT JOIN states s ON s.id = c.state_id
    `

func (r *RepositoryImpl) SearchCities(ctx context.Context, query, country string, limit int) (types.SearchResult, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "SearchCities", trace.WithAttributes(
		attribute.String("query", query),
		attribute.String("country", country),
		attribute.Int("limit", limit),
	))
	defer span.End()
	start := time.Now()

	l := r.logger.With(slog.String("method", "SearchCities"))

	sql := `
        SELECT id, name, state, country, has_coordinates, latitude, longitude,
               population, is_popular, total_count
        FROM search_cities($1, $2, $3)
    `
	rows, err := r.pgpool.Query(ctx, sql, strings.TrimSpace(query), nullIfEmpty(country), limit)
	if err != nil {
		r.observe(ctx, "search_cities", start, err)
		l.DebugContext(ctx, "Failed to query search_cities", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return types.SearchResult{}, fmt.Errorf("failed to search cities: %w", err)
	}
	defer rows.Close()

	result := types.SearchResult{Locations: []types.Location{}}
	for rows.Next() {
		var row models.CityRow
		var total int64
		if err := rows.Scan(
			&row.ID, &row.Name, &row.State, &row.Country, &row.HasCoordinates,
			&row.Latitude, &row.Longitude, &row.Population, &row.IsPopular, &total,
		); err != nil {
			r.observe(ctx, "search_cities", start, err)
			span.RecordError(err)
			return types.SearchResult{}, fmt.Errorf("failed to scan city row: %w", err)
		}
		result.Locations = append(result.Locations, row.ToLocation())
		result.Total = int(total)
	}
	if err := rows.Err(); err != nil {
		r.observe(ctx, "search_cities", start, err)
		span.RecordError(err)
		return types.SearchResult{}, fmt.Errorf("error iterating city rows: %w", err)
	}
	r.observe(ctx, "search_cities", start, nil)

	if result.Total < len(result.Locations) {
		result.Total = len(result.Locations)
	}
	result.HasMore = result.Total > len(result.Locations)

	span.SetAttributes(attribute.Int("results.count", len(result.Locations)))
	span.SetStatus(codes.Ok, "Cities found")
	return result, nil
}

func (r *RepositoryImpl) GetPopularCities(ctx context.Context, country string, limit int) ([]types.Location, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "GetPopularCities", trace.WithAttributes(
		attribute.String("country", country),
		attribute.Int("limit", limit),
	))
	defer span.End()
	start := time.Now()

	sql := citySelect + `
        WHERE c.is_popular
          AND ($1::text IS NULL OR co.name ILIKE $1 OR co.code = UPPER($1))
        ORDER BY c.population DESC NULLS LAST, c.name
        LIMIT $2
    `
	locations, err := r.queryCities(ctx, sql, nullIfEmpty(country), limit)
	r.observe(ctx, "popular_cities", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to get popular cities: %w", err)
	}
	span.SetStatus(codes.Ok, "Popular cities found")
	return locations, nil
}

func (r *RepositoryImpl) GetCountries(ctx context.Context) ([]types.Country, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "GetCountries")
	defer span.End()
	start := time.Now()

	rows, err := r.pgpool.Query(ctx, `SELECT code, name FROM countries ORDER BY name`)
	if err != nil {
		r.observe(ctx, "countries", start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	countries := []types.Country{}
	for rows.Next() {
		var row models.CountryRow
		if err := rows.Scan(&row.Code, &row.Name); err != nil {
			r.observe(ctx, "countries", start, err)
			return nil, fmt.Errorf("failed to scan country row: %w", err)
		}
		countries = append(countries, row.ToCountry())
	}
	if err := rows.Err(); err != nil {
		r.observe(ctx, "countries", start, err)
		return nil, fmt.Errorf("error iterating country rows: %w", err)
	}
	r.observe(ctx, "countries", start, nil)

	span.SetStatus(codes.Ok, "Countries listed")
	return countries, nil
}

func (r *RepositoryImpl) GetCityByID(ctx context.Context, id string) (*types.Location, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "GetCityByID", trace.WithAttributes(
		attribute.String("city.id", id),
	))
	defer span.End()

	cityID, err := uuid.Parse(id)
	if err != nil {
		// not a database id (static or synthesized records)
		return nil, nil
	}

	start := time.Now()
	row, err := scanCity(r.pgpool.QueryRow(ctx, citySelect+` WHERE c.id = $1`, cityID))
	if errors.Is(err, pgx.ErrNoRows) {
		r.observe(ctx, "city_by_id", start, nil)
		return nil, nil
	}
	r.observe(ctx, "city_by_id", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find city: %w", err)
	}

	loc := row.ToLocation()
	span.SetStatus(codes.Ok, "City found")
	return &loc, nil
}

func (r *RepositoryImpl) AddCity(ctx context.Context, city types.NewCity) (*types.Location, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "AddCity", trace.WithAttributes(
		attribute.String("city.name", city.Name),
		attribute.String("city.country", city.Country),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "AddCity"))

	city.Name = strings.TrimSpace(city.Name)
	city.Country = strings.TrimSpace(city.Country)
	city.State = strings.TrimSpace(city.State)
	if city.Name == "" || city.Country == "" {
		return nil, ErrInvalidCity
	}
	if city.Coordinates != nil && !city.Coordinates.Valid() {
		return nil, fmt.Errorf("invalid coordinates: lat=%f, lng=%f", city.Coordinates.Lat, city.Coordinates.Lng)
	}

	start := time.Now()
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		r.observe(ctx, "add_city", start, err)
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var country models.CountryRow
	if err := tx.QueryRow(ctx,
		`SELECT code, name FROM countries WHERE name ILIKE $1 OR code = UPPER($1)`,
		city.Country,
	).Scan(&country.Code, &country.Name); err != nil {
		r.observe(ctx, "add_city", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCountry, city.Country)
		}
		return nil, fmt.Errorf("failed to resolve country: %w", err)
	}

	var stateID any
	if city.State != "" {
		var id string
		if err := tx.QueryRow(ctx, `
            INSERT INTO states (country_code, name) VALUES ($1, $2)
            ON CONFLICT (country_code, name) DO UPDATE SET name = EXCLUDED.name
            RETURNING id::text
        `, country.Code, city.State).Scan(&id); err != nil {
			r.observe(ctx, "add_city", start, err)
			return nil, fmt.Errorf("failed to upsert state: %w", err)
		}
		stateID = id
	}

	var lat, lng any
	if city.Coordinates != nil {
		lat, lng = city.Coordinates.Lat, city.Coordinates.Lng
	}
	var population any
	if city.Population != nil && *city.Population > 0 {
		population = *city.Population
	}

	var id string
	if err := tx.QueryRow(ctx, `
        INSERT INTO cities (name, state_id, country_code, latitude, longitude, population, is_popular)
        VALUES ($1, $2::uuid, $3, $4, $5, $6, $7)
        RETURNING id::text
    `, city.Name, stateID, country.Code, lat, lng, population, city.IsPopular).Scan(&id); err != nil {
		r.observe(ctx, "add_city", start, err)
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert city: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		r.observe(ctx, "add_city", start, err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.observe(ctx, "add_city", start, nil)

	loc := types.Location{
		ID:          id,
		Name:        city.Name,
		Country:     country.Name,
		State:       city.State,
		Coordinates: city.Coordinates,
		IsPopular:   city.IsPopular,
	}
	if population != nil {
		p := *city.Population
		loc.Population = &p
	}

	l.InfoContext(ctx, "City saved successfully", slog.String("name", loc.Name), slog.String("id", id))
	span.SetStatus(codes.Ok, "City added")
	return &loc, nil
}

func (r *RepositoryImpl) UpdateCityPopularity(ctx context.Context, id string, isPopular bool) error {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "UpdateCityPopularity", trace.WithAttributes(
		attribute.String("city.id", id),
		attribute.Bool("city.is_popular", isPopular),
	))
	defer span.End()

	cityID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	start := time.Now()
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE cities SET is_popular = $2, updated_at = NOW() WHERE id = $1`,
		cityID, isPopular,
	)
	r.observe(ctx, "update_popularity", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database update failed")
		return fmt.Errorf("failed to update city popularity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	span.SetStatus(codes.Ok, "City popularity updated")
	return nil
}

func (r *RepositoryImpl) queryCities(ctx context.Context, sql string, args ...any) ([]types.Location, error) {
	rows, err := r.pgpool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []types.Location{}
	for rows.Next() {
		row, err := scanCity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan city row: %w", err)
		}
		locations = append(locations, row.ToLocation())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

func scanCity(row pgx.Row) (models.CityRow, error) {
	var c models.CityRow
	err := row.Scan(
		&c.ID, &c.Name, &c.State, &c.Country, &c.HasCoordinates,
		&c.Latitude, &c.Longitude, &c.Population, &c.IsPopular,
	)
	return c, err
}

func (r *RepositoryImpl) observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	r.metrics.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		r.metrics.DbQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}

func nullIfEmpty(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}
