package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
)

// HandleReady answers 503 until the collector can reach its database.
func (c *Controller) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := c.Backend.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleEndpoints lists the pool and the last probe of every candidate.
func (c *Controller) HandleEndpoints(w http.ResponseWriter, r *http.Request) {
	probes, err := c.Backend.ProbedEndpoints(r.Context())
	if err != nil {
		c.Logger.Error("List endpoints failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list endpoints")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":   c.Backend.PoolEndpoints(),
		"probes": probes,
	})
}

func (c *Controller) HandleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Backend.Services())
}

// HandleFailed lists the units of a service whose last result is fail.
func (c *Controller) HandleFailed(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	units, err := c.Backend.FailedUnits(r.Context(), service)
	if err != nil {
		c.serviceError(w, service, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": service, "failed": units})
}

// HandleRetry reruns the failed units of a service and reports the outcome counts.
func (c *Controller) HandleRetry(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	sum, err := c.Backend.RetryFailed(r.Context(), service)
	if err != nil {
		c.serviceError(w, service, err)
		return
	}
	c.Logger.Info("Retried failed units", zap.String("service", service),
		zap.Int("succeeded", sum.Succeeded), zap.Int("failed", sum.Failed), zap.Int("skipped", sum.Skipped))
	writeJSON(w, http.StatusOK, sum)
}

func (c *Controller) serviceError(w http.ResponseWriter, service string, err error) {
	var unknown *activity.ErrUnknownService
	if errors.As(err, &unknown) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	c.Logger.Error("Service request failed", zap.String("service", service), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "service request failed")
}

// HandleHeight resolves ?time= (RFC 3339 or unix seconds) to a height.
func (c *Controller) HandleHeight(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("time")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "time is required")
		return
	}
	ts, err := parseTime(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "time must be RFC 3339 or unix seconds")
		return
	}
	h, err := c.Backend.HeightAtTime(r.Context(), ts)
	if err != nil {
		c.Logger.Error("Height resolution failed", zap.Time("time", ts), zap.Error(err))
		writeError(w, http.StatusBadGateway, "height resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time": ts, "height": h})
}

func parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
