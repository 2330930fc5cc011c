// Package gazetteer is the last-resort location source: a curated,
// in-memory table of well-known places. A table is immutable once loaded;
// Reload swaps in a whole new table atomically.
package gazetteer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

//go:embed gazetteer.json
var embeddedTable []byte

// Entry is one curated place as stored in the table file.
type Entry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Population  int64   `json:"population"`
	IsPopular   bool    `json:"isPopular"`
}

func (e Entry) location() types.Location {
	loc := types.Location{
		ID:          e.ID,
		Name:        e.Name,
		Country:     e.Country,
		State:       e.State,
		Coordinates: &types.Coordinates{Lat: e.Lat, Lng: e.Lng},
		IsPopular:   e.IsPopular,
	}
	if e.Population > 0 {
		p := e.Population
		loc.Population = &p
	}
	return loc
}

func (e Entry) inCountry(country string) bool {
	if country == "" {
		return true
	}
	return strings.EqualFold(e.Country, country) || strings.EqualFold(e.CountryCode, country)
}

type table struct {
	entries   []Entry
	countries []types.Country
	codes     map[string]string // lowercased country name -> ISO2
}

type Gazetteer struct {
	logger *slog.Logger
	tbl    atomic.Pointer[table]
}

// New loads the embedded table.
func New(logger *slog.Logger) (*Gazetteer, error) {
	t, err := parseTable(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded gazetteer: %w", err)
	}
	g := &Gazetteer{logger: logger}
	g.tbl.Store(t)
	return g, nil
}

// NewFromFile loads the table from a JSON file in the embedded table's format.
func NewFromFile(path string, logger *slog.Logger) (*Gazetteer, error) {
	g := &Gazetteer{logger: logger}
	if err := g.Reload(path); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload replaces the table with the contents of path. On error the
// current table is kept.
func (g *Gazetteer) Reload(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read gazetteer file: %w", err)
	}
	t, err := parseTable(data)
	if err != nil {
		return fmt.Errorf("failed to parse gazetteer file %s: %w", path, err)
	}
	g.tbl.Store(t)
	g.logger.Info("Gazetteer loaded", slog.String("path", path), slog.Int("entries", len(t.entries)))
	return nil
}

func parseTable(data []byte) (*table, error) {
	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	t := &table{
		entries: make([]Entry, 0, len(raw)),
		codes:   make(map[string]string),
	}
	seen := make(map[string]struct{}, len(raw))
	for i, e := range raw {
		e.ID = strings.TrimSpace(e.ID)
		e.Name = strings.TrimSpace(e.Name)
		e.Country = strings.TrimSpace(e.Country)
		e.State = strings.TrimSpace(e.State)
		e.CountryCode = strings.ToUpper(strings.TrimSpace(e.CountryCode))
		if e.ID == "" || e.Name == "" || e.Country == "" {
			return nil, fmt.Errorf("entry %d: id, name and country are required", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("entry %d: duplicate id %q", i, e.ID)
		}
		if !(types.Coordinates{Lat: e.Lat, Lng: e.Lng}).Valid() {
			return nil, fmt.Errorf("entry %d (%s): coordinates out of range", i, e.ID)
		}
		seen[e.ID] = struct{}{}
		t.entries = append(t.entries, e)

		key := strings.ToLower(e.Country)
		if _, ok := t.codes[key]; !ok && e.CountryCode != "" {
			t.codes[key] = e.CountryCode
			t.countries = append(t.countries, types.Country{Code: e.CountryCode, Name: e.Country})
		}
	}
	slices.SortFunc(t.countries, func(a, b types.Country) int { return strings.Compare(a.Name, b.Name) })
	return t, nil
}

// SearchStatic returns ranked entries whose name or state contains query
// (case-insensitive), restricted to country when it is not empty.
func (g *Gazetteer) SearchStatic(query, country string) []types.Location {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []types.Location{}
	}
	country = strings.TrimSpace(country)

	out := []types.Location{}
	for _, e := range g.tbl.Load().entries {
		if !e.inCountry(country) {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.State), q) {
			out = append(out, e.location())
		}
	}
	types.SortByRelevance(out, q)
	return out
}

// FilterPopular returns the popular entries of country, most populous first.
func (g *Gazetteer) FilterPopular(country string) []types.Location {
	country = strings.TrimSpace(country)
	out := []types.Location{}
	for _, e := range g.tbl.Load().entries {
		if e.IsPopular && e.inCountry(country) {
			out = append(out, e.location())
		}
	}
	types.SortByRelevance(out, "")
	return out
}

func (g *Gazetteer) FindByID(id string) (types.Location, bool) {
	for _, e := range g.tbl.Load().entries {
		if e.ID == id {
			return e.location(), true
		}
	}
	return types.Location{}, false
}

// Countries lists the distinct countries present in the table, by name.
func (g *Gazetteer) Countries() []types.Country {
	return slices.Clone(g.tbl.Load().countries)
}

// CountryCode maps a country name (or an ISO2 code already) to its ISO2 code.
func (g *Gazetteer) CountryCode(country string) (string, bool) {
	c := strings.TrimSpace(country)
	if len(c) == 2 {
		return strings.ToUpper(c), true
	}
	code, ok := g.tbl.Load().codes[strings.ToLower(c)]
	return code, ok
}

// Nearest returns up to limit entries ordered by great-circle distance from point.
func (g *Gazetteer) Nearest(point types.Coordinates, limit int) []types.Location {
	type ranked struct {
		loc  types.Location
		dist float64
	}
	entries := g.tbl.Load().entries
	all := make([]ranked, 0, len(entries))
	for _, e := range entries {
		loc := e.location()
		all = append(all, ranked{loc: loc, dist: types.DistanceKm(point, *loc.Coordinates)})
	}
	slices.SortStableFunc(all, func(a, b ranked) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]types.Location, len(all))
	for i, r := range all {
		out[i] = r.loc
	}
	return out
}

func (g *Gazetteer) Len() int {
	return len(g.tbl.Load().entries)
}
