package location

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-location-resolver/internal/api"
	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Search(ctx context.Context, req types.SearchRequest) types.SearchResult {
	return m.Called(ctx, req).Get(0).(types.SearchResult)
}

func (m *MockService) GetPopularCities(ctx context.Context, country string, limit int) []types.Location {
	return m.Called(ctx, country, limit).Get(0).([]types.Location)
}

func (m *MockService) GetLocationByID(ctx context.Context, id string) *types.Location {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*types.Location)
}

func (m *MockService) GetCountries(ctx context.Context) []types.Country {
	return m.Called(ctx).Get(0).([]types.Country)
}

func (m *MockService) NearbyCities(ctx context.Context, point types.Coordinates, limit int) ([]types.Location, error) {
	args := m.Called(ctx, point, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Location), args.Error(1)
}

func (m *MockService) AddCity(ctx context.Context, city types.NewCity) *types.Location {
	args := m.Called(ctx, city)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*types.Location)
}

func (m *MockService) UpdateCityPopularity(ctx context.Context, id string, isPopular bool) bool {
	return m.Called(ctx, id, isPopular).Bool(0)
}

func (m *MockService) ClearCache() {
	m.Called()
}

func (m *MockService) CacheStats() types.CacheStats {
	return m.Called().Get(0).(types.CacheStats)
}

func setupHandlerTest(t *testing.T) (http.Handler, *MockService) {
	t.Helper()
	svc := new(MockService)
	t.Cleanup(func() { svc.AssertExpectations(t) })

	h := NewHandlerImpl(svc, "India", slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Get("/search", h.Search)
	r.Get("/popular", h.GetPopularCities)
	r.Get("/countries", h.GetCountries)
	r.Get("/nearby", h.GetNearbyCities)
	r.Post("/cities", h.AddCity)
	r.Patch("/cities/{id}/popularity", h.UpdateCityPopularity)
	r.Delete("/cache", h.ClearCache)
	r.Get("/cache/stats", h.GetCacheStats)
	r.Get("/{id}", h.GetLocationByID)
	return r, svc
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerImpl_Search(t *testing.T) {
	h, svc := setupHandlerTest(t)

	t.Run("defaults country and limit", func(t *testing.T) {
		want := types.SearchResult{Locations: []types.Location{mumbaiStatic.WithoutCoordinates()}, Total: 1}
		svc.On("Search", mock.Anything, types.SearchRequest{Query: "Mum", Country: "India", Limit: 10}).
			Return(want).Once()

		rec := serve(h, http.MethodGet, "/search?q=Mum", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got types.SearchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, want, got)
	})

	t.Run("all countries with coordinates", func(t *testing.T) {
		svc.On("Search", mock.Anything, types.SearchRequest{Query: "San", Country: "", Limit: 3, IncludeCoordinates: true}).
			Return(types.EmptySearchResult()).Once()

		rec := serve(h, http.MethodGet, "/search?q=San&country=ALL&limit=3&coordinates=true", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"locations":[],"total":0,"hasMore":false}`, rec.Body.String())
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		for _, target := range []string{"/search?q=Mum&limit=0", "/search?q=Mum&limit=101", "/search?q=Mum&limit=ten"} {
			rec := serve(h, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})

	t.Run("rejects bad coordinates flag", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/search?q=Mum&coordinates=maybe", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlerImpl_GetPopularCities(t *testing.T) {
	h, svc := setupHandlerTest(t)
	svc.On("GetPopularCities", mock.Anything, "Nepal", 3).
		Return([]types.Location{{ID: "static-kathmandu", Name: "Kathmandu", Country: "Nepal", IsPopular: true}}).Once()

	rec := serve(h, http.MethodGet, "/popular?country=Nepal&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.LocationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "Kathmandu", got.Locations[0].Name)
}

func TestHandlerImpl_GetCountries(t *testing.T) {
	h, svc := setupHandlerTest(t)
	svc.On("GetCountries", mock.Anything).Return([]types.Country{{Code: "IN", Name: "India"}}).Once()

	rec := serve(h, http.MethodGet, "/countries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"countries":[{"code":"IN","name":"India"}]}`, rec.Body.String())
}

func TestHandlerImpl_GetNearbyCities(t *testing.T) {
	h, svc := setupHandlerTest(t)

	svc.On("NearbyCities", mock.Anything, types.Coordinates{Lat: 19, Lng: 72.9}, 2).
		Return([]types.Location{mumbaiStatic}, nil).Once()
	rec := serve(h, http.MethodGet, "/nearby?lat=19&lng=72.9&limit=2", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.On("NearbyCities", mock.Anything, types.Coordinates{Lat: 95, Lng: 0}, 10).
		Return(nil, ErrInvalidCoordinates).Once()
	rec = serve(h, http.MethodGet, "/nearby?lat=95&lng=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/nearby?lat=19", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerImpl_GetLocationByID(t *testing.T) {
	h, svc := setupHandlerTest(t)

	svc.On("GetLocationByID", mock.Anything, "static-mumbai").Return(&mumbaiStatic).Once()
	rec := serve(h, http.MethodGet, "/static-mumbai", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Mumbai", got.Name)

	svc.On("GetLocationByID", mock.Anything, "missing").Return(nil).Once()
	rec = serve(h, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandlerImpl_AddCity(t *testing.T) {
	h, svc := setupHandlerTest(t)

	input := types.NewCity{Name: "Newtown", Country: "India"}
	stored := &types.Location{ID: "5f0c8c1e-3a55-4c1a-9a51-1f0b1a2c3d4e", Name: "Newtown", Country: "India"}
	svc.On("AddCity", mock.Anything, input).Return(stored).Once()

	rec := serve(h, http.MethodPost, "/cities", `{"name":"Newtown","country":"India"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	svc.On("AddCity", mock.Anything, types.NewCity{Name: "Nowhere", Country: "Atlantis"}).Return(nil).Once()
	rec = serve(h, http.MethodPost, "/cities", `{"name":"Nowhere","country":"Atlantis"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h, http.MethodPost, "/cities", `{"name":"Newtown"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/cities", `{"name":"Newtown","country":"India","mayor":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerImpl_UpdateCityPopularity(t *testing.T) {
	h, svc := setupHandlerTest(t)

	svc.On("UpdateCityPopularity", mock.Anything, "c1", true).Return(true).Once()
	rec := serve(h, http.MethodPatch, "/cities/c1/popularity", `{"isPopular":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.On("UpdateCityPopularity", mock.Anything, "c2", false).Return(false).Once()
	rec = serve(h, http.MethodPatch, "/cities/c2/popularity", `{"isPopular":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerImpl_Cache(t *testing.T) {
	h, svc := setupHandlerTest(t)

	svc.On("CacheStats").Return(types.CacheStats{Size: 1, Keys: []string{"countries"}}).Once()
	rec := serve(h, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"size":1,"keys":["countries"]}`, rec.Body.String())

	svc.On("ClearCache").Return().Once()
	rec = serve(h, http.MethodDelete, "/cache", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
