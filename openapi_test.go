package autosense

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

func TestLoadAPIDocument(t *testing.T) {
	doc, err := LoadAPIDocument(context.Background())
	assert.True(t, err == nil)
	assert.True(t, doc.Paths.Find("/scan") != nil)
	assert.True(t, doc.Paths.Find("/journeys/{id}/sale") != nil)
}

func TestRequestValidator(t *testing.T) {
	validator, err := NewRequestValidator(context.Background())
	assert.True(t, err == nil)

	validate := func(method, target, body string) error {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return validator.Validate(req)
	}

	assert.True(t, validate(http.MethodGet, "/journeys/ABCDEF123456", "") == nil)
	assert.True(t, errors.Is(validate(http.MethodGet, "/journeys/abc", ""), errBadRequest))

	assert.True(t, validate(http.MethodGet, "/snapshot/KT68XYZ?condition=fair", "") == nil)
	assert.True(t, validate(http.MethodGet, "/snapshot/KT68XYZ?condition=mint", "") != nil)

	assert.True(t, validate(http.MethodPost, "/registration", `{"manual":"KT68XYZ","condition":"good"}`) == nil)
	assert.True(t, validate(http.MethodPost, "/registration", `{"manual":"KT68XYZ","condition":"shiny"}`) != nil)
	assert.True(t, validate(http.MethodPost, "/scan", `{"session":"abc"}`) != nil)

	// undocumented routes are not checked
	assert.True(t, validate(http.MethodGet, "/metrics", "") == nil)
}

func TestServerWithRequestValidation(t *testing.T) {
	env := newHTTPTestEnv(t)
	assert.True(t, env.server.EnableRequestValidation(context.Background()) == nil)
	handler := env.server.Routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/registration", strings.NewReader(`{"manual":"kt68xyz","condition":"shiny"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	assert.Equals(t, rec.Code, http.StatusBadRequest)

	// the validator leaves the body readable for the handler
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/registration", strings.NewReader(`{"manual":"kt68xyz","condition":"fair"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	assert.Equals(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), `"registration":"KT68XYZ"`))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartScanRequest(t, encodeTestImage(t, 200, 80, imaging.PNG), ""))
	assert.Equals(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	assert.Equals(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), `"openapi": "3.0.3"`))
}

func TestServerLimitsBodyBeforeValidation(t *testing.T) {
	env := newHTTPTestEnv(t)
	assert.True(t, env.server.EnableRequestValidation(context.Background()) == nil)
	handler := env.server.Routes()
	body := `{"manual":"kt68xyz","condition":"good","candidate":"` + strings.Repeat("X", 256) + `"}`

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/registration", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equals(t, send().Code, http.StatusOK)

	env.server.MaxUploadBytes = 64
	assert.Equals(t, send().Code, http.StatusBadRequest)
}
