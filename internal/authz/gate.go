// Package authz delegates bearer token validation to the accounts service.
package authz

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"datacite-api/internal/metrics"
	"datacite-api/internal/upstream"
)

const (
	DefaultTimeout     = 5 * time.Second
	DevelopmentTimeout = 300 * time.Second
)

// ErrNoCredentials is returned when a request carries no usable bearer token.
var ErrNoCredentials = errors.New("not authenticated")

// Config for the gate. Development relaxes TLS verification and the timeout
// for local accounts mocks.
type Config struct {
	NoAuth         bool
	AccountsAPIURL string
	Audience       string
	Scope          string
	AllowedRoles   []string
	Development    bool

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Gate decides whether a request may proceed. Every call is revalidated
// upstream; results are not cached.
type Gate struct {
	cfg     Config
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewGate(cfg Config) *Gate {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.Development)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		cfg:     cfg,
		http:    httpClient,
		log:     log.With(zap.String("service", upstream.ServiceAccounts)),
		metrics: cfg.Metrics,
	}
}

func newHTTPClient(development bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	timeout := DefaultTimeout
	if development {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		timeout = DevelopmentTimeout
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Enabled is false when the deployment runs without authentication.
func (g *Gate) Enabled() bool { return !g.cfg.NoAuth }

type authorizationRequest struct {
	Token      string   `json:"token"`
	Audience   string   `json:"audience"`
	Scope      string   `json:"scope"`
	SuperRoles []string `json:"super_roles"`
}

// Authorize asks the accounts service whether token grants access. A nil
// error means the request may proceed.
func (g *Gate) Authorize(ctx context.Context, token string) error {
	if !g.Enabled() {
		g.metrics.ObserveAuthorization("disabled")
		return nil
	}
	if strings.TrimSpace(token) == "" {
		g.metrics.ObserveAuthorization("unauthenticated")
		return ErrNoCredentials
	}
	roles := g.cfg.AllowedRoles
	if roles == nil {
		roles = []string{}
	}
	body, err := json.Marshal(authorizationRequest{
		Token:      token,
		Audience:   g.cfg.Audience,
		Scope:      g.cfg.Scope,
		SuperRoles: roles,
	})
	if err != nil {
		return fmt.Errorf("encode authorization request: %w", err)
	}
	endpoint := strings.TrimRight(g.cfg.AccountsAPIURL, "/") + "/authorization/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := g.http.Do(req)
	if err != nil {
		g.metrics.ObserveUpstream(upstream.ServiceAccounts, http.MethodPost, http.StatusServiceUnavailable, time.Since(start))
		g.metrics.ObserveAuthorization("unavailable")
		g.log.Warn("accounts service unreachable", zap.Error(err))
		return upstream.Unavailable(upstream.ServiceAccounts, err)
	}
	defer res.Body.Close()
	g.metrics.ObserveUpstream(upstream.ServiceAccounts, http.MethodPost, res.StatusCode, time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		g.metrics.ObserveAuthorization("denied")
		g.log.Info("authorization denied",
			zap.Int("status", res.StatusCode),
			zap.String("subject", Subject(token)),
		)
		return upstream.FromResponse(upstream.ServiceAccounts, res)
	}
	g.metrics.ObserveAuthorization("allowed")
	return nil
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme ends at the first space; everything after it is the token.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Subject returns the unverified "sub" claim of a JWT for log correlation.
// It must never be used for access decisions.
func Subject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
