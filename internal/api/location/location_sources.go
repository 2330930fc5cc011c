package location

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-location-resolver/internal/api/geonames"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

// sufficiencyThreshold is the candidate count below which the next source is consulted.
const sufficiencyThreshold = 3

var (
	errNoDatabase = errors.New("database source not wired")
	errNoGeocoder = errors.New("geocoder source not wired")
)

type source string

const (
	sourceDatabase source = "database"
	sourceGeocoder source = "geocoder"
	sourceStatic   source = "static"
)

// attempt is the outcome of one source call. A failed call carries err and
// no locations; the orchestrator never looks past that.
type attempt struct {
	source    source
	locations []types.Location
	total     int
	err       error
}

func (a attempt) ok() bool {
	return a.err == nil
}

type step int

const (
	stepDatabase step = iota
	stepGeocoder
	stepStatic
	stepDone
)

func (s step) String() string {
	switch s {
	case stepDatabase:
		return "database"
	case stepGeocoder:
		return "geocoder"
	case stepStatic:
		return "static"
	default:
		return "done"
	}
}

// nextStep decides the fallback transition from the current step given how
// many candidates have been accepted so far.
func nextStep(current step, candidates int, fallbackToStatic bool) step {
	switch current {
	case stepDatabase:
		if candidates >= sufficiencyThreshold {
			return stepDone
		}
		return stepGeocoder
	case stepGeocoder:
		if candidates == 0 && fallbackToStatic {
			return stepStatic
		}
		return stepDone
	default:
		return stepDone
	}
}

// resolution accumulates attempts in priority order.
type resolution struct {
	attempts   []attempt
	candidates []types.Location
	dbTotal    int

	seenIDs    map[string]struct{}
	identities map[string]source
}

func newResolution() *resolution {
	return &resolution{
		candidates: []types.Location{},
		seenIDs:    make(map[string]struct{}),
		identities: make(map[string]source),
	}
}

// accept merges an attempt into the candidate set. Earlier sources win: a
// record whose id is already present is dropped, and so is a record from a
// later source describing the same (name, state, country) place.
func (r *resolution) accept(a attempt) {
	r.attempts = append(r.attempts, a)
	if !a.ok() {
		return
	}
	if a.source == sourceDatabase {
		r.dbTotal = a.total
	}
	for _, loc := range a.locations {
		if !loc.Valid() {
			continue
		}
		if _, dup := r.seenIDs[loc.ID]; dup {
			continue
		}
		identity := identityKey(loc)
		if owner, dup := r.identities[identity]; dup && owner != a.source {
			continue
		}
		r.seenIDs[loc.ID] = struct{}{}
		if _, exists := r.identities[identity]; !exists {
			r.identities[identity] = a.source
		}
		r.candidates = append(r.candidates, loc)
	}
}

// sources lists the sources that contributed at least one candidate.
func (r *resolution) sources() []string {
	var out []string
	for _, a := range r.attempts {
		if a.ok() && len(a.locations) > 0 {
			out = append(out, string(a.source))
		}
	}
	return out
}

func identityKey(loc types.Location) string {
	return strings.ToLower(strings.TrimSpace(loc.Name)) + "|" +
		strings.ToLower(strings.TrimSpace(loc.State)) + "|" +
		strings.ToLower(strings.TrimSpace(loc.Country))
}

// runFallback walks Database -> Geocoder -> Static, short-circuiting per nextStep.
func (s *ServiceImpl) runFallback(ctx context.Context, req types.SearchRequest) *resolution {
	res := newResolution()
	for st := stepDatabase; st != stepDone; st = nextStep(st, len(res.candidates), s.cfg.FallbackToStatic) {
		switch st {
		case stepDatabase:
			res.accept(s.tryDatabase(ctx, req))
		case stepGeocoder:
			res.accept(s.tryGeocoder(ctx, req))
		case stepStatic:
			res.accept(s.tryStatic(ctx, req))
		}
	}
	return res
}

func (s *ServiceImpl) tryDatabase(ctx context.Context, req types.SearchRequest) attempt {
	if s.db == nil {
		return attempt{source: sourceDatabase, err: errNoDatabase}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.db.SearchCities(ctx, req.Query, req.Country, req.Limit)
	a := attempt{source: sourceDatabase, locations: result.Locations, total: result.Total, err: err}
	s.observeAttempt(ctx, a, start, req)
	return a
}

func (s *ServiceImpl) tryGeocoder(ctx context.Context, req types.SearchRequest) attempt {
	if s.geocoder == nil {
		return attempt{source: sourceGeocoder, err: errNoGeocoder}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	locations, err := s.geocoder.Search(ctx, req.Query, req.Country, req.Limit, req.IncludeCoordinates)
	a := attempt{source: sourceGeocoder, locations: locations, total: len(locations), err: err}
	s.observeAttempt(ctx, a, start, req)
	return a
}

func (s *ServiceImpl) tryStatic(ctx context.Context, req types.SearchRequest) attempt {
	start := time.Now()
	locations := s.gazetteer.SearchStatic(req.Query, req.Country)
	a := attempt{source: sourceStatic, locations: locations, total: len(locations)}
	s.observeAttempt(ctx, a, start, req)
	return a
}

func (s *ServiceImpl) observeAttempt(ctx context.Context, a attempt, start time.Time, req types.SearchRequest) {
	attrs := metric.WithAttributes(attribute.String("source", string(a.source)))
	s.metrics.SourceDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)

	l := s.logger.With(
		slog.String("source", string(a.source)),
		slog.String("query", req.Query),
		slog.String("country", req.Country),
	)
	switch {
	case a.ok():
		l.DebugContext(ctx, "Source answered", slog.Int("count", len(a.locations)))
	case errors.Is(a.err, geonames.ErrNotConfigured), errors.Is(a.err, errNoDatabase), errors.Is(a.err, errNoGeocoder):
		l.DebugContext(ctx, "Source skipped, not configured", slog.Any("reason", a.err))
	default:
		s.metrics.SourceErrorsTotal.Add(ctx, 1, attrs)
		l.WarnContext(ctx, "Source failed, continuing with fallback", slog.Any("error", a.err))
	}
}
