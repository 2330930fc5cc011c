// Package countries talks to the REST Countries reference API. It backs the
// last-resort country listing and maps country names to ISO2 codes for the
// geocoding source.
package countries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

var ErrNotFound = errors.New("country not found")

const DefaultBaseURL = "https://restcountries.com/v3.1"

type rcCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2 string `json:"cca2"`
}

type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	codes   *cache.Cache // normalized name -> ISO2
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		codes: cache.New(24*time.Hour, 1*time.Hour), // country codes barely change
	}
}

// ListCountries returns every country with a common name and a two-letter code, by name.
func (c *Client) ListCountries(ctx context.Context) ([]types.Country, error) {
	ctx, span := otel.Tracer("CountriesClient").Start(ctx, "ListCountries")
	defer span.End()

	var raw []rcCountry
	if err := c.get(ctx, c.baseURL+"/all?fields=name,cca2", &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "REST Countries request failed")
		return nil, err
	}

	out := make([]types.Country, 0, len(raw))
	for _, rc := range raw {
		country, ok := toCountry(rc)
		if !ok {
			continue
		}
		c.codes.Set(normalizeName(country.Name), country.Code, cache.DefaultExpiration)
		out = append(out, country)
	}
	if len(out) == 0 {
		err := fmt.Errorf("REST Countries returned no usable countries")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty payload")
		return nil, err
	}
	slices.SortFunc(out, func(a, b types.Country) int { return strings.Compare(a.Name, b.Name) })

	span.SetStatus(codes.Ok, "Countries listed")
	return out, nil
}

// ResolveCode maps a country name to its ISO2 code. Two-letter input is
// returned upper-cased without a lookup.
func (c *Client) ResolveCode(ctx context.Context, name string) (string, error) {
	q := strings.TrimSpace(name)
	if q == "" {
		return "", errors.New("empty country name")
	}
	if len(q) == 2 {
		return strings.ToUpper(q), nil
	}
	key := normalizeName(q)
	if code, found := c.codes.Get(key); found {
		return code.(string), nil
	}

	ctx, span := otel.Tracer("CountriesClient").Start(ctx, "ResolveCode", trace.WithAttributes(
		attribute.String("country.name", q),
	))
	defer span.End()

	var raw []rcCountry
	endpoint := fmt.Sprintf("%s/name/%s?fields=name,cca2", c.baseURL, url.PathEscape(q))
	if err := c.get(ctx, endpoint, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "REST Countries request failed")
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrNotFound
	}

	// exact common-name match first, otherwise the first entry
	target := raw[0]
	for _, rc := range raw {
		if strings.EqualFold(strings.TrimSpace(rc.Name.Common), q) {
			target = rc
			break
		}
	}
	country, ok := toCountry(target)
	if !ok {
		return "", fmt.Errorf("REST Countries returned an empty code for %q", q)
	}

	c.codes.Set(key, country.Code, cache.DefaultExpiration)
	span.SetStatus(codes.Ok, "Country resolved")
	return country.Code, nil
}

func (c *Client) get(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("REST Countries request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("REST Countries error: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode REST Countries response: %w", err)
	}
	return nil
}

func toCountry(rc rcCountry) (types.Country, bool) {
	country := types.Country{
		Code: strings.ToUpper(strings.TrimSpace(rc.CCA2)),
		Name: strings.TrimSpace(rc.Name.Common),
	}
	return country, len(country.Code) == 2 && country.Name != ""
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
