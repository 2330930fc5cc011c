package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-location-resolver/app/db"
	"github.com/FACorreiaa/go-location-resolver/config"
	"github.com/FACorreiaa/go-location-resolver/internal/api/city"
	"github.com/FACorreiaa/go-location-resolver/internal/api/countries"
	"github.com/FACorreiaa/go-location-resolver/internal/api/gazetteer"
	"github.com/FACorreiaa/go-location-resolver/internal/api/geonames"
	"github.com/FACorreiaa/go-location-resolver/internal/api/location"
)

const janitorInterval = time.Minute

// Engine is the resolution engine with its sources.
type Engine struct {
	Gazetteer *gazetteer.Gazetteer
	Geocoder  *geonames.Client
	Countries *countries.Client
	Service   *location.ServiceImpl

	gazetteerFile  string
	watchGazetteer bool
	logger         *slog.Logger
}

// NewEngine wires the gazetteer, the external clients and the orchestrator.
// repo may be nil when no database is available.
func NewEngine(cfg config.LocationConfig, repo city.Repository, logger *slog.Logger) (*Engine, error) {
	var (
		gaz *gazetteer.Gazetteer
		err error
	)
	if cfg.GazetteerFile != "" {
		gaz, err = gazetteer.NewFromFile(cfg.GazetteerFile, logger)
	} else {
		gaz, err = gazetteer.New(logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gazetteer: %w", err)
	}

	countriesClient := countries.NewClient(cfg.CountriesURL, cfg.SourceTimeout, logger)

	// Country names resolve through the local table first, then REST Countries.
	resolver := geonames.CountryResolverFunc(func(ctx context.Context, country string) (string, error) {
		if code, ok := gaz.CountryCode(country); ok {
			return code, nil
		}
		return countriesClient.ResolveCode(ctx, country)
	})

	geocoder, err := geonames.NewClient(geonames.Config{
		Username:  cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.SourceTimeout,
		CacheTTL:  cfg.SourceCacheTimeout,
		CacheSize: cfg.SourceCacheSize,
	}, resolver, logger)
	if err != nil {
		return nil, err
	}
	if !geocoder.Configured() {
		logger.Info("GeoNames username not set, external geocoding disabled")
	}

	service, err := location.NewService(location.Config{
		CacheTimeout:     cfg.CacheTimeout,
		MaxCacheSize:     cfg.MaxCacheSize,
		SourceTimeout:    cfg.SourceTimeout,
		FallbackToStatic: cfg.FallbackToStatic,
		DefaultCountry:   cfg.DefaultCountry,
	}, repo, geocoder, countriesClient, gaz, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Gazetteer:      gaz,
		Geocoder:       geocoder,
		Countries:      countriesClient,
		Service:        service,
		gazetteerFile:  cfg.GazetteerFile,
		watchGazetteer: cfg.WatchGazetteer,
		logger:         logger,
	}, nil
}

// Run starts the cache janitor and, when configured, the gazetteer file
// watcher. It blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.watchGazetteer && e.gazetteerFile != "" {
		if err := e.Gazetteer.Watch(ctx, e.gazetteerFile); err != nil {
			e.logger.ErrorContext(ctx, "Failed to start gazetteer watcher", slog.Any("error", err))
		}
	}
	e.Service.RunCacheJanitor(ctx, janitorInterval)
	return nil
}

// Container holds all application dependencies
type Container struct {
	Config          *config.Config
	Logger          *slog.Logger
	Pool            *pgxpool.Pool
	Engine          *Engine
	LocationHandler *location.HandlerImpl
}

// NewContainer connects to Postgres (when enabled), applies migrations and
// builds the engine and its HTTP handler. A database that cannot be reached
// is not fatal: the engine degrades to its external and static sources.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	var repo city.Repository
	if cfg.Repositories.Postgres.Enabled {
		pool, err := c.openDatabase(ctx)
		if err != nil {
			logger.WarnContext(ctx, "Database unavailable, continuing without it", slog.Any("error", err))
		} else {
			c.Pool = pool
			repo = city.NewCityRepository(pool, logger)
		}
	}

	engine, err := NewEngine(cfg.Location, repo, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine = engine
	c.LocationHandler = location.NewHandlerImpl(engine.Service, cfg.Location.DefaultCountry, logger)
	return c, nil
}

func (c *Container) openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	dbConfig, err := database.NewDatabaseConfig(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(dbConfig.ConnectionURL, c.Logger); err != nil {
		return nil, err
	}
	pool, err := database.Init(ctx, dbConfig.ConnectionURL, c.Logger)
	if err != nil {
		return nil, err
	}
	if !database.WaitForDB(ctx, pool, c.Logger) {
		pool.Close()
		return nil, fmt.Errorf("database not ready after waiting")
	}
	return pool, nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
