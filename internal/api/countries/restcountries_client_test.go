package countries

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, 2*time.Second, logger), &calls
}

func TestClient_ListCountries(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/all", r.URL.Path)
		assert.Equal(t, "name,cca2", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"name":{"common":"Nepal"},"cca2":"np"},
			{"name":{"common":"India"},"cca2":"IN"},
			{"name":{"common":""},"cca2":"XX"},
			{"name":{"common":"Nowhere"},"cca2":""}
		]`)
	})

	got, err := client.ListCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Country{{Code: "IN", Name: "India"}, {Code: "NP", Name: "Nepal"}}, got)

	// listing warms the name -> code cache
	code, err := client.ResolveCode(context.Background(), "nepal")
	require.NoError(t, err)
	assert.Equal(t, "NP", code)
}

func TestClient_ListCountries_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListCountries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_ListCountries_Malformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"an array"}`)
	})

	_, err := client.ListCountries(context.Background())
	require.Error(t, err)
}

func TestClient_ResolveCode(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/name/India", r.URL.Path)
		_, _ = io.WriteString(w, `[
			{"name":{"common":"British Indian Ocean Territory"},"cca2":"IO"},
			{"name":{"common":"India"},"cca2":"IN"}
		]`)
	})

	code, err := client.ResolveCode(context.Background(), "India")
	require.NoError(t, err)
	assert.Equal(t, "IN", code)

	code, err = client.ResolveCode(context.Background(), " india ")
	require.NoError(t, err)
	assert.Equal(t, "IN", code)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from cache")
}

func TestClient_ResolveCode_TwoLetterShortcut(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	code, err := client.ResolveCode(context.Background(), "us")
	require.NoError(t, err)
	assert.Equal(t, "US", code)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_ResolveCode_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.ResolveCode(context.Background(), "Atlantis")
	require.ErrorIs(t, err, ErrNotFound)
}
