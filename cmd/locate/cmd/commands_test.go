package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-location-resolver/internal/api/gazetteer"
	"github.com/FACorreiaa/go-location-resolver/internal/api/location"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

func newTestService(t *testing.T) location.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gaz, err := gazetteer.New(logger)
	require.NoError(t, err)
	svc, err := location.NewService(location.Config{
		CacheTimeout:     time.Minute,
		MaxCacheSize:     10,
		SourceTimeout:    time.Second,
		FallbackToStatic: true,
		DefaultCountry:   "India",
	}, nil, nil, nil, gaz, logger)
	require.NoError(t, err)
	return svc
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(newTestService(t))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSearchCmd(t *testing.T) {
	out, err := run(t, "search", "Mum", "--json")
	require.NoError(t, err)

	var result types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Locations)
	assert.Equal(t, "Mumbai", result.Locations[0].Name)
	assert.Nil(t, result.Locations[0].Coordinates)

	out, err = run(t, "search", "san", "--country", "all", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "San Francisco")
	assert.Contains(t, out, "2 of ")
}

func TestPopularCmd(t *testing.T) {
	out, err := run(t, "popular", "-c", "Nepal", "--json")
	require.NoError(t, err)

	var locations []types.Location
	require.NoError(t, json.Unmarshal([]byte(out), &locations))
	require.Len(t, locations, 1)
	assert.Equal(t, "Kathmandu", locations[0].Name)
}

func TestCountriesCmd(t *testing.T) {
	out, err := run(t, "countries")
	require.NoError(t, err)
	assert.Contains(t, out, "IN")
	assert.Contains(t, out, "India")
}

func TestGetCmd(t *testing.T) {
	out, err := run(t, "get", "static-goa")
	require.NoError(t, err)
	assert.Contains(t, out, "Panaji, Goa, India")

	_, err = run(t, "get", "nowhere")
	require.Error(t, err)
}

func TestNearbyCmd(t *testing.T) {
	out, err := run(t, "nearby", "19.0", "72.9", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Mumbai")
	assert.Contains(t, out, " km")

	_, err = run(t, "nearby", "north", "72.9")
	require.Error(t, err)

	_, err = run(t, "nearby", "91", "0")
	require.ErrorIs(t, err, location.ErrInvalidCoordinates)
}
