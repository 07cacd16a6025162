package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/app/collector/controller"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

type fakeBackend struct {
	readyErr error
	failed   map[string]any
	retried  []string
	heightAt map[int64]uint64
}

func (b *fakeBackend) Ready(context.Context) error { return b.readyErr }

func (b *fakeBackend) PoolEndpoints() []rpc.Endpoint {
	return []rpc.Endpoint{{URL: "http://node1700.thunderstake.io/", Height: 100}}
}

func (b *fakeBackend) ProbedEndpoints(context.Context) ([]models.RPCEndpoint, error) {
	return []models.RPCEndpoint{
		{Endpoint: "http://node1700.thunderstake.io/", Status: rpc.EndpointAccepted, Height: 100},
		{Endpoint: "http://node1701.thunderstake.io/", Status: rpc.EndpointLagging, Height: 90},
	}, nil
}

func (b *fakeBackend) Services() []string { return []string{"nodes", "rewards"} }

func (b *fakeBackend) FailedUnits(_ context.Context, service string) (any, error) {
	units, ok := b.failed[service]
	if !ok {
		return nil, &activity.ErrUnknownService{Service: service}
	}
	return units, nil
}

func (b *fakeBackend) RetryFailed(_ context.Context, service string) (activity.Summary, error) {
	if _, ok := b.failed[service]; !ok {
		return activity.Summary{}, &activity.ErrUnknownService{Service: service}
	}
	b.retried = append(b.retried, service)
	return activity.Summary{Succeeded: 2, Failed: 1}, nil
}

func (b *fakeBackend) HeightAtTime(_ context.Context, ts time.Time) (uint64, error) {
	h, ok := b.heightAt[ts.Unix()]
	if !ok {
		return 0, errors.New("rpc down")
	}
	return h, nil
}

const (
	testToken  = "s3cret-token"
	testSecret = "session-secret"
)

func newController(t *testing.T, backend *fakeBackend) *controller.Controller {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return &controller.Controller{
		Backend:    backend,
		Logger:     zaptest.NewLogger(t),
		AdminToken: testToken,
		Users:      map[string]controller.User{"admin": {Username: "admin", Hash: hash, Role: "admin"}},
		JWTSecret:  []byte(testSecret),
		SessionTTL: time.Hour,
	}
}

func serve(t *testing.T, c *controller.Controller, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	controller.WithCORS(c.NewRouter()).ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestHealthAndReady(t *testing.T) {
	backend := &fakeBackend{}
	c := newController(t, backend)

	rec := serve(t, c, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, c, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	backend.readyErr = errors.New("db down")
	rec = serve(t, c, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	c := newController(t, &fakeBackend{})
	rec := serve(t, c, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAuth(t *testing.T) {
	c := newController(t, &fakeBackend{})

	tests := []struct {
		name string
		set  func(r *http.Request)
		want int
	}{
		{"none", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testToken) }, http.StatusOK},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"basic", func(r *http.Request) { r.SetBasicAuth("admin", "hunter2") }, http.StatusOK},
		{"wrong basic", func(r *http.Request) { r.SetBasicAuth("admin", "hunter3") }, http.StatusUnauthorized},
		{"unknown user", func(r *http.Request) { r.SetBasicAuth("root", "hunter2") }, http.StatusUnauthorized},
		{"foreign session", func(r *http.Request) {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin", "exp": time.Now().Add(time.Hour).Unix()})
			ss, err := tok.SignedString([]byte("other-secret"))
			require.NoError(t, err)
			r.AddCookie(&http.Cookie{Name: "pi_session", Value: ss})
		}, http.StatusUnauthorized},
		{"expired session", func(r *http.Request) {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin", "exp": time.Now().Add(-time.Hour).Unix()})
			ss, err := tok.SignedString([]byte(testSecret))
			require.NoError(t, err)
			r.AddCookie(&http.Cookie{Name: "pi_session", Value: ss})
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
			tt.set(req)
			assert.Equal(t, tt.want, serve(t, c, req).Code)
		})
	}
}

func TestEmptyAdminTokenDisablesTokenAuth(t *testing.T) {
	c := newController(t, &fakeBackend{})
	c.AdminToken = ""
	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Authorization", "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, serve(t, c, req).Code)
}

func TestLoginIssuesSession(t *testing.T) {
	c := newController(t, &fakeBackend{})

	rec := serve(t, c, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, c, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, c, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"hunter2"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "pi_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.AddCookie(cookies[0])
	rec = serve(t, c, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var services []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &services))
	assert.Equal(t, []string{"nodes", "rewards"}, services)

	rec = serve(t, c, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEndpoints(t *testing.T) {
	c := newController(t, &fakeBackend{})
	rec := serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/endpoints", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pool   []rpc.Endpoint       `json:"pool"`
		Probes []models.RPCEndpoint `json:"probes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Pool, 1)
	assert.Len(t, body.Probes, 2)
	assert.Equal(t, rpc.EndpointLagging, body.Probes[1].Status)
}

func TestFailedAndRetry(t *testing.T) {
	backend := &fakeBackend{failed: map[string]any{"rewards": []uint64{70000, 70002}}}
	c := newController(t, backend)

	rec := serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/services/rewards/failed", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"service":"rewards","failed":[70000,70002]}`, rec.Body.String())

	rec = serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/services/nope/failed", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, c, authed(httptest.NewRequest(http.MethodPost, "/api/services/rewards/retry", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"succeeded":2,"failed":1,"skipped":0}`, rec.Body.String())
	assert.Equal(t, []string{"rewards"}, backend.retried)

	rec = serve(t, c, authed(httptest.NewRequest(http.MethodPost, "/api/services/nope/retry", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeight(t *testing.T) {
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newController(t, &fakeBackend{heightAt: map[int64]uint64{ts.Unix(): 85000}})

	for _, q := range []string{"2023-01-01T00:00:00Z", "1672531200"} {
		rec := serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/height?time="+q, nil)))
		require.Equal(t, http.StatusOK, rec.Code, q)
		assert.JSONEq(t, `{"time":"2023-01-01T00:00:00Z","height":85000}`, rec.Body.String())
	}

	rec := serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/height", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/height?time=yesterday", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, c, authed(httptest.NewRequest(http.MethodGet, "/api/height?time=1", nil)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	c := newController(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodOptions, "/api/services", nil)
	req.Header.Set("Origin", "https://poktinfo.example")
	rec := serve(t, c, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://poktinfo.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewController(t *testing.T) {
	cfg := config.FromEnv().Collector
	cfg.AdminUser = "ops"
	cfg.AdminPassword = "pw"
	c, err := controller.NewController(&fakeBackend{}, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	require.Contains(t, c.Users, "ops")

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.SetBasicAuth("ops", "pw")
	assert.Equal(t, http.StatusOK, serve(t, c, req).Code)
}
