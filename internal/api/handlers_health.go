/**
 * @description
 * Health endpoint reporting the service status and the reachability of its
 * backing stores. Each check is a ping closure injected from main, so the
 * handler stays free of driver imports.
 *
 * @dependencies
 * - net/http, time: Standard Go libraries.
 */

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthChecks carries the connectivity checks of the backing stores. A nil
// check reports the dependency as not configured.
type HealthChecks struct {
	Database func(ctx context.Context) error
	Redis    func(ctx context.Context) error
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Redis     string    `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler handles GET /v1/health. The response is 200 with a degraded
// status when a configured dependency is unreachable, so monitors always get
// a full report.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := healthResponse{Status: "healthy", Timestamp: time.Now().UTC()}
	report.Database = dependencyStatus(ctx, h.health.Database)
	report.Redis = dependencyStatus(ctx, h.health.Redis)
	if report.Database == "disconnected" || report.Redis == "disconnected" {
		report.Status = "degraded"
	}

	respondData(w, http.StatusOK, "", report)
}

func dependencyStatus(ctx context.Context, check func(ctx context.Context) error) string {
	if check == nil {
		return "not_configured"
	}
	if err := check(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
