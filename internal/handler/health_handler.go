package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go-auth-service/internal/logger"
	"go-auth-service/internal/model"
)

type pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db pinger
}

// NewHealthHandler builds a liveness handler. db may be nil when the service
// runs on in-memory stores.
func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Health(ctx); err != nil {
			logger.FromContext(r.Context()).Warn("database health check failed", "error", err)
			status["status"] = "degraded"
			status["database"] = "unreachable"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(model.APIResponse{Success: false, Data: status})
			return
		}
		status["database"] = "ok"
	}

	writeSuccess(w, http.StatusOK, status)
}
