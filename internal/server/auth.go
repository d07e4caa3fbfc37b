package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"datacite-api/internal/authz"
)

// newAuthMiddleware guards every route under basePath except health and the
// OpenAPI document. Each request is revalidated with the authorizer.
func newAuthMiddleware(basePath string, auth Authorizer, log *zap.Logger) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath || req.URL.Path == specPath || !auth.Enabled() {
				next.ServeHTTP(w, req)
				return
			}

			token, ok := authz.BearerToken(req.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondStatusError(w, handleError(authz.ErrNoCredentials))
				return
			}
			if err := auth.Authorize(req.Context(), token); err != nil {
				log.Debug("request rejected",
					zap.String("path", req.URL.Path),
					zap.String("request_id", requestIDFromContext(req.Context())),
					zap.Error(err),
				)
				if errors.Is(err, authz.ErrNoCredentials) {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
