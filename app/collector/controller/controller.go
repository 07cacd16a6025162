package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

// Backend is the part of the collector the admin API reads from and drives.
type Backend interface {
	Ready(ctx context.Context) error
	PoolEndpoints() []rpc.Endpoint
	ProbedEndpoints(ctx context.Context) ([]models.RPCEndpoint, error)
	Services() []string
	FailedUnits(ctx context.Context, service string) (any, error)
	RetryFailed(ctx context.Context, service string) (activity.Summary, error)
	HeightAtTime(ctx context.Context, ts time.Time) (uint64, error)
}

// User is an operator allowed to log in.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type Controller struct {
	Backend    Backend
	Logger     *zap.Logger
	AdminToken string
	Users      map[string]User
	JWTSecret  []byte
	SessionTTL time.Duration
	Secure     bool
}

// NewController builds the admin API from the collector settings. The admin password may be
// given in clear or as a bcrypt hash.
func NewController(backend Backend, logger *zap.Logger, cfg config.Collector) (*Controller, error) {
	hash, err := utils.HashOrRead(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}
	return &Controller{
		Backend:    backend,
		Logger:     logger,
		AdminToken: cfg.AdminToken,
		Users: map[string]User{
			cfg.AdminUser: {Username: cfg.AdminUser, Hash: hash, Role: "admin"},
		},
		JWTSecret:  []byte(cfg.SessionSecret),
		SessionTTL: 8 * time.Hour,
		Secure:     utils.Env("ENVIRONMENT", "") == "production",
	}, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter returns the admin API routes.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	r.HandleFunc("/readyz", c.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	r.Handle("/api/endpoints", c.RequireAuth(http.HandlerFunc(c.HandleEndpoints))).Methods(http.MethodGet)
	r.Handle("/api/services", c.RequireAuth(http.HandlerFunc(c.HandleServices))).Methods(http.MethodGet)
	r.Handle("/api/services/{service}/failed", c.RequireAuth(http.HandlerFunc(c.HandleFailed))).Methods(http.MethodGet)
	r.Handle("/api/services/{service}/retry", c.RequireAuth(http.HandlerFunc(c.HandleRetry))).Methods(http.MethodPost)
	r.Handle("/api/height", c.RequireAuth(http.HandlerFunc(c.HandleHeight))).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
