package handler

import (
	"net/http"
	"strconv"
	"strings"

	"agricam/internal/dto"
	"agricam/internal/logger"
	"agricam/internal/service"
)

// DefaultProfileLimit is used by /profile/list when no limit is given.
const DefaultProfileLimit = 100

// CreateProfileHandler focuses, locks and stores a new current profile. It
// blocks for up to the profile focus timeout.
func CreateProfileHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CreateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, logger, "Invalid request body: "+err.Error())
			return
		}
		req.OperatorID = strings.TrimSpace(req.OperatorID)
		if req.OperatorID == "" {
			writeBadRequest(w, logger, "operator_id is required")
			return
		}
		if req.FocusDistanceCm != nil && *req.FocusDistanceCm <= 0 {
			writeBadRequest(w, logger, "focus_distance_cm must be positive")
			return
		}

		p, err := manager.CreateProfile(r.Context(), req.OperatorID, req.Notes, req.FocusDistanceCm)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, p)
	}
}

func CurrentProfileHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := manager.GetCurrentProfile()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if p == nil {
			writeJSON(w, logger, http.StatusNotFound, dto.ErrorResponse{Error: "no current profile"})
			return
		}
		writeJSON(w, logger, http.StatusOK, p)
	}
}

func ListProfilesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), DefaultProfileLimit)
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil || offset < 0 {
			offset = 0
		}

		list, err := manager.ListProfiles(limit, offset)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

func GetProfileHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := manager.GetProfile(r.PathValue("id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, p)
	}
}

func SelectProfileHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := manager.SelectProfile(id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.SelectProfileResponse{
			Success:   true,
			ProfileID: id,
			Message:   "Profile selected",
		})
	}
}

func DeleteProfileHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := manager.DeleteProfile(id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.MessageResponse{
			Success: true,
			Message: "Profile " + id + " deleted",
		})
	}
}
