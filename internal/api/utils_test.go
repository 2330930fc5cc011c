package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, http.StatusNotFound, "Location not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"error":"Location not found"}`, rec.Body.String())
}

func TestDecodeJSONBody(t *testing.T) {
	type city struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"Pune"}`, ""},
		{"empty", ``, "request body is empty"},
		{"malformed", `{"name":`, "malformed JSON"},
		{"unknown field", `{"name":"Pune","mayor":"x"}`, `unknown field "mayor"`},
		{"wrong type", `{"name":7}`, `field "name" must be string`},
		{"trailing data", `{"name":"Pune"}{}`, "single JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst city
			err := DecodeJSONBody(httptest.NewRecorder(), req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Pune", dst.Name)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&coordinates=true&lat=19.07&bad=x", nil)

	n, err := QueryInt(req, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = QueryInt(req, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = QueryInt(req, "bad", 10)
	assert.Error(t, err)

	b, err := QueryBool(req, "coordinates", false)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = QueryBool(req, "bad", false)
	assert.Error(t, err)

	f, err := QueryFloat(req, "lat")
	require.NoError(t, err)
	assert.InDelta(t, 19.07, f, 1e-9)

	_, err = QueryFloat(req, "lng")
	assert.Error(t, err)
}
