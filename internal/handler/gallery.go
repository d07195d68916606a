package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"agricam/internal/logger"
	"agricam/internal/service"
)

// ViewImageHandler serves a stored image given by the "path" query parameter,
// relative to the image directory (for example 2025-01-01/101500_a1b2c3_cam_a.jpg).
func ViewImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := r.URL.Query().Get("path")
		if rel == "" {
			writeBadRequest(w, logger, "path parameter is required")
			return
		}
		if !filepath.IsLocal(rel) {
			writeError(w, logger, service.ErrInvalidPath)
			return
		}

		filePath := filepath.Join(manager.GetStore().BaseDir(), rel)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}
