package handler

import (
	"net/http"

	"agricam/internal/logger"
	"agricam/internal/service"
)

func HealthHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, manager.Health())
	}
}
