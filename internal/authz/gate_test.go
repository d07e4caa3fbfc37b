package authz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"datacite-api/internal/metrics"
	"datacite-api/internal/upstream"
)

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	token, ok = BearerToken("Bearer a b")
	assert.True(t, ok)
	assert.Equal(t, "a b", token)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Basic dXNlcjpwYXNz", "Bearerabc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestSubject(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", Subject(signed))
	assert.Equal(t, "", Subject("opaque-token"))
}

func TestDisabledGateAllowsEverything(t *testing.T) {
	g := NewGate(Config{NoAuth: true})
	assert.False(t, g.Enabled())
	assert.NoError(t, g.Authorize(context.Background(), ""))
}

func TestMissingTokenRejectedWithoutUpstreamCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	t.Cleanup(srv.Close)

	g := NewGate(Config{AccountsAPIURL: srv.URL})
	err := g.Authorize(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, 0, calls)
}

func TestAuthorizeSendsValidationRequest(t *testing.T) {
	var got authorizationRequest
	var path string
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		header = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"user_id":"u1"}`)
	}))
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	g := NewGate(Config{
		AccountsAPIURL: srv.URL + "/",
		Audience:       "datacite-api",
		Scope:          "DataCite",
		AllowedRoles:   []string{"admin", "curator"},
		Logger:         zaptest.NewLogger(t),
		Metrics:        m,
	})
	require.NoError(t, g.Authorize(context.Background(), "tok"))

	assert.Equal(t, "/authorization/", path)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "application/json", header.Get("Accept"))
	assert.Equal(t, authorizationRequest{
		Token:      "tok",
		Audience:   "datacite-api",
		Scope:      "DataCite",
		SuperRoles: []string{"admin", "curator"},
	}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorizationDecisions.WithLabelValues("allowed")))
}

func TestAuthorizeDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"detail":"Insufficient privileges"}`)
	}))
	t.Cleanup(srv.Close)

	g := NewGate(Config{AccountsAPIURL: srv.URL, Logger: zaptest.NewLogger(t)})
	err := g.Authorize(context.Background(), "tok")
	var uerr *upstream.Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusForbidden, uerr.StatusCode)
	assert.Equal(t, upstream.ServiceAccounts, uerr.Service)
	detail, ok := uerr.Detail.(upstream.StructuredDetail)
	require.True(t, ok)
	assert.JSONEq(t, `{"detail":"Insufficient privileges"}`, string(detail.Body))
}

func TestAuthorizeDeniedPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "nope")
	}))
	t.Cleanup(srv.Close)

	err := NewGate(Config{AccountsAPIURL: srv.URL}).Authorize(context.Background(), "tok")
	var uerr *upstream.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusUnauthorized, uerr.StatusCode)
	assert.Equal(t, upstream.TextDetail("Unauthorized"), uerr.Detail)
}

func TestAuthorizeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewGate(Config{AccountsAPIURL: url}).Authorize(context.Background(), "tok")
	assert.True(t, upstream.IsUnavailable(err))
}

func TestAuthorizeTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	g := NewGate(Config{
		AccountsAPIURL: srv.URL,
		HTTPClient:     &http.Client{Timeout: 50 * time.Millisecond},
		Logger:         zaptest.NewLogger(t),
	})
	err := g.Authorize(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, upstream.IsUnavailable(err))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode(err))
}

func TestTLSVerificationOnlyRelaxedInDevelopment(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	err := NewGate(Config{AccountsAPIURL: srv.URL}).Authorize(context.Background(), "tok")
	assert.True(t, upstream.IsUnavailable(err), "self-signed certificate must be rejected outside development")

	err = NewGate(Config{AccountsAPIURL: srv.URL, Development: true}).Authorize(context.Background(), "tok")
	assert.NoError(t, err)
}

func TestClientTimeouts(t *testing.T) {
	prod := newHTTPClient(false)
	assert.Equal(t, DefaultTimeout, prod.Timeout)
	tr := prod.Transport.(*http.Transport)
	assert.True(t, tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify)

	dev := newHTTPClient(true)
	assert.Equal(t, DevelopmentTimeout, dev.Timeout)
	devTLS := dev.Transport.(*http.Transport).TLSClientConfig
	require.NotNil(t, devTLS)
	assert.True(t, devTLS.InsecureSkipVerify)
}
