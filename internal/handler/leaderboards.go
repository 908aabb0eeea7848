package handler

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/logger"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/model"
	"github.com/Zemanzo/quantum-conundrum-leaderboards-server/internal/service"
)

// LeaderboardHandler handles HTTP requests for leaderboard views and manual
// shift submissions.
type LeaderboardHandler struct {
	service *service.Leaderboards
	logger  *logger.Logger
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(svc *service.Leaderboards, l *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{service: svc, logger: l}
}

// HandleAllRuns handles GET /api/runs requests.
func (h *LeaderboardHandler) HandleAllRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.AllRankedRuns(r.Context())
	if err != nil {
		h.logger.Error("listing ranked runs", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	writeJSON(w, http.StatusOK, emptyAsSlice(runs))
}

// HandleAllShifts handles GET /api/shifts requests.
func (h *LeaderboardHandler) HandleAllShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.service.AllRankedShifts(r.Context())
	if err != nil {
		h.logger.Error("listing ranked shifts", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	writeJSON(w, http.StatusOK, emptyAsSlice(shifts))
}

// HandleLevelRuns handles GET /api/levels/{level_id}/runs requests. The
// refresh it forces is subject to the per-level cooldown.
func (h *LeaderboardHandler) HandleLevelRuns(w http.ResponseWriter, r *http.Request) {
	levelID := chi.URLParam(r, "level_id")
	if levelID == "" || len(levelID) > 16 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid level id"))
		return
	}

	runs, err := h.service.LevelRuns(r.Context(), levelID, time.Now())
	if err != nil {
		h.logger.Error("listing level runs", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	writeJSON(w, http.StatusOK, emptyAsSlice(runs))
}

// HandleAllUsers handles GET /api/users requests.
func (h *LeaderboardHandler) HandleAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.AllUsers(r.Context())
	if err != nil {
		h.logger.Error("listing users", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	writeJSON(w, http.StatusOK, emptyAsSlice(users))
}

// HandleSubmitShift handles POST /api/shifts requests.
func (h *LeaderboardHandler) HandleSubmitShift(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	defer r.Body.Close()

	var req model.ShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	err := h.service.SubmitShift(r.Context(), clientIP(r), req, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionsDisabled):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
		case errors.Is(err, service.ErrSubmissionLocked):
			writeJSON(w, http.StatusTooManyRequests, errorResponse(err.Error()))
		case errors.Is(err, service.ErrInvalidPassword):
			writeJSON(w, http.StatusUnauthorized, errorResponse(err.Error()))
		case isValidationError(err):
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		default:
			h.logger.Error("submitting shift", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrLevelIDRequired) ||
		errors.Is(err, service.ErrUserIDRequired) ||
		errors.Is(err, service.ErrShiftsRequired) ||
		errors.Is(err, service.ErrInvalidLagAbuse)
}

// clientIP extracts the remote host for admission control.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// emptyAsSlice keeps empty results encoding as [] instead of null.
func emptyAsSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}
