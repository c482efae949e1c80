package autosense

import (
	"context"
	_ "embed"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed openapi.json
var openAPIDocument []byte

// LoadAPIDocument parses and validates the embedded OpenAPI description of
// the HTTP API.
func LoadAPIDocument(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load api document")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(err, "invalid api document")
	}
	return doc, nil
}

// RequestValidator rejects requests that do not match the API document.
// Routes the document does not describe pass through untouched.
type RequestValidator struct {
	router routers.Router
}

func NewRequestValidator(ctx context.Context) (*RequestValidator, error) {
	doc, err := LoadAPIDocument(ctx)
	if err != nil {
		return nil, err
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build api router")
	}
	return &RequestValidator{router: router}, nil
}

// Validate checks path, query and JSON bodies. Multipart bodies are left to
// the scan handler.
func (v *RequestValidator) Validate(req *http.Request) error {
	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return nil
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			ExcludeRequestBody: strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") || req.ContentLength == 0,
		},
	}
	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func (v *RequestValidator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := v.Validate(req); err != nil {
			log.Warn().Err(err).Str("component", "HTTP").Str("path", req.URL.Path).
				Msg("request does not match api document")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) handleAPIDocument(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(openAPIDocument); err != nil {
		log.Error().Err(err).Str("component", "HTTP").Msg("http write() failed")
	}
}
