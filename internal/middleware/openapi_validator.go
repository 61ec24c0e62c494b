package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"clubing-chat/internal/observability"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// SpecPath is the path to the OpenAPI document
	SpecPath string
	// ValidateRequests rejects requests that do not match the document
	ValidateRequests bool
	// ValidateResponses logs responses that do not match the document
	ValidateResponses bool
	// SkipPaths are path prefixes served outside the document (health, metrics, websocket)
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates requests outside production
// against the document at specPath.
func DefaultOpenAPIValidatorConfig(environment, specPath string) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:          environment != "production" && environment != "prod",
		SpecPath:         specPath,
		ValidateRequests: true,
		SkipPaths:        []string{"/health", "/metrics", "/ws"},
	}
}

type openAPIValidator struct {
	config *OpenAPIValidatorConfig
	router routers.Router
}

// OpenAPIValidator checks API traffic against the OpenAPI document. A nil or
// disabled config, or a document that cannot be loaded, yields a
// pass-through middleware.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	passthrough := func(next http.Handler) http.Handler { return next }

	if config == nil || !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passthrough
	}

	router, err := loadRouter(config.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passthrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	v := &openAPIValidator{config: config, router: router}
	return v.wrap
}

func loadRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return router, nil
}

func (v *openAPIValidator) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipPath(r.URL.Path, v.config.SkipPaths) {
			next.ServeHTTP(w, r)
			return
		}

		log := observability.FromContext(r.Context()).With(
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))

		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			if !v.config.ValidateRequests {
				next.ServeHTTP(w, r)
				return
			}
			log.Warn("request path not found in OpenAPI document")
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Path not found in OpenAPI spec: %s %s", r.Method, r.URL.Path))
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
		}

		if v.config.ValidateRequests {
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				log.Warn("request validation failed", slog.String("error", err.Error()))
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Request validation failed: %s", err.Error()))
				return
			}
		}

		if !v.config.ValidateResponses {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// The response is already written; mismatches are only logged.
		err = openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
			RequestValidationInput: input,
			Status:                 recorder.statusCode,
			Header:                 recorder.Header(),
			Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
			Options:                input.Options,
		})
		if err != nil {
			log.Warn("response validation failed",
				slog.Int("status", recorder.statusCode),
				slog.String("error", err.Error()))
		}
	})
}

// shouldSkipPath matches whole path segments, so "/health" skips
// "/health/ready" but not "/healthz".
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || strings.HasPrefix(path, strings.TrimSuffix(skipPath, "/")+"/") {
			return true
		}
	}
	return false
}

// responseRecorder tees the response so it can be validated afterwards.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
