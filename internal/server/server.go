package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"datacite-api/internal/authz"
	"datacite-api/internal/domain"
	"datacite-api/internal/metrics"
	"datacite-api/internal/upstream"
)

// Registry is the DOI facade the API dispatches to.
type Registry interface {
	ListDOIs(ctx context.Context, pageSize, pageNum int) (domain.DOIRecordList, error)
	GetDOI(ctx context.Context, doi string) (domain.DOIRecord, error)
	UpdateDOI(ctx context.Context, doi string, md domain.Metadata) (domain.DOIRecord, error)
	DeleteDOI(ctx context.Context, doi string) error
	ChangeDOIState(ctx context.Context, doi string, event domain.Event) (domain.DOIRecord, error)
}

// Authorizer decides whether a bearer token may use the API.
type Authorizer interface {
	Enabled() bool
	Authorize(ctx context.Context, token string) error
}

// Config for the HTTP API handler.
type Config struct {
	Registry Registry
	Auth     Authorizer
	BasePath string
	Version  string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"Not Found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the DOI API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server: authorizer is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(newRequestMiddleware(log, cfg.Metrics))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, log))
	hcfg := huma.DefaultConfig("DataCite API", version)
	hcfg.Info.Description = "A facade to the DOI functions of the DataCite REST API."
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerMetrics(router, cfg.Gatherer)
	registerHealth(group)
	registerDOIs(group, cfg.Registry)
	registerOpenAPI(router, api, basePath, cfg.Auth.Enabled())
	registerFallbacks(router)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps facade and gate errors onto the envelope. Upstream
// statuses are propagated unchanged.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": verr.Field, "reason": verr.Reason})
	}
	if errors.Is(err, authz.ErrNoCredentials) {
		return newAPIError(http.StatusUnauthorized, "not_authenticated", "Not authenticated", nil)
	}
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		details := map[string]any{"service": uerr.Service}
		message := http.StatusText(uerr.StatusCode)
		switch d := uerr.Detail.(type) {
		case upstream.StructuredDetail:
			details["upstream"] = d.Value()
		case upstream.TextDetail:
			message = string(d)
		}
		return newAPIError(uerr.StatusCode, "", message, details)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "not_authenticated"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// registerFallbacks answers unrouted requests with the error envelope. A raw
// '/' in a DOI suffix adds a path segment and lands here.
func registerFallbacks(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondStatusError(w, newAPIError(http.StatusNotFound, "route_not_found",
			"no route for "+req.URL.Path+"; send any '/' in a DOI suffix as %2F",
			map[string]any{"path": req.URL.Path}))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondStatusError(w, newAPIError(http.StatusMethodNotAllowed, "", "method "+req.Method+" not allowed", nil))
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		return
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, authEnabled bool) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if authEnabled {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: errSchema,
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:   "http",
		Scheme: "bearer",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>DataCite API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;. DOI suffixes containing '/' must be sent as %%2F.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
