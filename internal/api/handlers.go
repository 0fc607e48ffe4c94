// Package api exposes the connector's HTTP surface: health, metrics, and run
// statistics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/darc-connector/internal/classifier"
	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

const healthCheckTimeout = 5 * time.Second

// Pinger checks a dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports the most recent pipeline run.
type StatsSource interface {
	LastStats() *domain.RunStats
}

// Handler serves the connector's HTTP endpoints.
type Handler struct {
	serviceName    string
	serviceVersion string
	store          Pinger
	classifiers    []classifier.Classifier
	stats          StatsSource
	logger         logger.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	serviceName, serviceVersion string,
	store Pinger,
	classifiers []classifier.Classifier,
	stats StatsSource,
	log logger.Logger,
) *Handler {
	return &Handler{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		store:          store,
		classifiers:    classifiers,
		stats:          stats,
		logger:         log,
	}
}

// HealthCheck reports the connector's dependency health. Any failing
// dependency turns the response into 503 with per-check detail.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if pingErr := h.store.Ping(ctx); pingErr != nil {
		checks["database"] = pingErr.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	for _, cl := range h.classifiers {
		key := "classifier_" + cl.Version()
		if healthErr := cl.Health(ctx); healthErr != nil {
			checks[key] = healthErr.Error()
			healthy = false
		} else {
			checks[key] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
		h.logger.Warn("health check failed", logger.Any("checks", checks))
	}

	c.JSON(status, gin.H{
		"service": h.serviceName,
		"version": h.serviceVersion,
		"status":  state,
		"checks":  checks,
	})
}

// Stats returns the most recent completed run's statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats := h.stats.LastStats()
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no runs completed yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
