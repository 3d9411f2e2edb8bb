package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mathtutor/chat-gateway/internal/providers"
)

type HealthHandler struct {
	registry *providers.Registry
	logger   *slog.Logger
}

func NewHealthHandler(registry *providers.Registry, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"models": h.registry.Models(),
	}); err != nil {
		h.logger.Error("Failed to write health check response", "error", err)
	}
}
