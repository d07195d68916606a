package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"agricam/internal/dto"
	"agricam/internal/logger"
	"agricam/internal/repository"
	"agricam/internal/service"
)

// maxBodyBytes caps request bodies; every request type here is a few fields.
const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := errorStatus(err)
	switch {
	case repository.IsPolicy(err):
		logger.Info("Request rejected by profile policy: %v", err)
	case status >= http.StatusInternalServerError:
		logger.Error("Request failed: %v", err)
	default:
		logger.Warning("Request rejected: %v", err)
	}
	writeJSON(w, logger, status, dto.ErrorResponse{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, logger *logger.Logger, msg string) {
	writeJSON(w, logger, http.StatusBadRequest, dto.ErrorResponse{Error: msg})
}

// errorStatus maps service and repository errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrProfileIsCurrent),
		errors.Is(err, service.ErrInvalidPath),
		errors.Is(err, service.ErrLoopRunning),
		errors.Is(err, service.ErrLoopNotRunning),
		errors.Is(err, service.ErrIntervalTooShort):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
