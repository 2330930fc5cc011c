package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	appLogger "github.com/FACorreiaa/go-location-resolver/app/logger"
	"github.com/FACorreiaa/go-location-resolver/internal/api/location"
)

// Config contains dependencies needed for the router setup
type Config struct {
	LocationHandler location.Handler
	Logger          *slog.Logger
	AllowedOrigins  []string
	// SearchRateLimit is the per-IP request budget per minute on the read
	// endpoints; zero disables limiting.
	SearchRateLimit int
	RequestTimeout  time.Duration
}

// SetupRouter builds the full HTTP surface: server-wide middleware, /ping
// and the /api/v1/locations routes.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5, "application/json"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1/locations", func(r chi.Router) {
		h := cfg.LocationHandler

		r.Group(func(r chi.Router) {
			if cfg.SearchRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.SearchRateLimit, time.Minute))
			}
			r.Get("/search", h.Search)
			r.Get("/popular", h.GetPopularCities)
			r.Get("/countries", h.GetCountries)
			r.Get("/nearby", h.GetNearbyCities)
		})

		r.Post("/cities", h.AddCity)
		r.Patch("/cities/{id}/popularity", h.UpdateCityPopularity)
		r.Delete("/cache", h.ClearCache)
		r.Get("/cache/stats", h.GetCacheStats)

		r.Get("/{id}", h.GetLocationByID)
	})

	return r
}
